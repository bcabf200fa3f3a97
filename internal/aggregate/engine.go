// Package aggregate merges listings and search results from every
// connected account into one view. Provider calls fan out concurrently
// and every branch is waited for; a failing branch degrades the result
// instead of sinking it.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unidrive/unidrive/internal/account"
	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// DefaultCallTimeout bounds each provider call. The engine owns the
// timeout so adapters stay timeout-free.
const DefaultCallTimeout = 30 * time.Second

// Warning describes one branch of a fan-out that failed while others
// succeeded.
type Warning struct {
	Service item.Service `json:"service"`
	Account string       `json:"account"`
	Message string       `json:"message"`
}

// ReauthPrompt tells the caller an account's credential was rejected
// and cleared, and where to send the user to reconnect it.
type ReauthPrompt struct {
	Service item.Service `json:"service"`
	Account string       `json:"account"`
	URL     string       `json:"url,omitempty"`
}

// Listing is the merged outcome of a fan-out. Items are sorted
// folders-first, case-insensitive by name. PerService indexes the same
// items by owning service.
type Listing struct {
	Items      []item.Item                  `json:"items"`
	PerService map[item.Service][]item.Item `json:"perService,omitempty"`
	Warnings   []Warning                    `json:"warnings,omitempty"`
	Reauth     []ReauthPrompt               `json:"reauth,omitempty"`
}

// ReauthURLFunc produces a fresh consent URL for a service whose
// credential was rejected. May be nil; prompts then carry no URL.
type ReauthURLFunc func(service item.Service) (string, error)

// Engine fans provider calls out across accounts and merges the
// results.
type Engine struct {
	registry account.Registry
	store    credstore.Store
	adapters provider.Set
	logger   *slog.Logger

	// callTimeout holds nanoseconds; atomic because a config reload
	// may adjust it while fan-outs are in flight.
	callTimeout atomic.Int64
	reauthURL   ReauthURLFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout.Store(int64(d)) }
}

// WithReauthURL installs the consent URL generator used for
// ReauthPrompt entries.
func WithReauthURL(fn ReauthURLFunc) Option {
	return func(e *Engine) { e.reauthURL = fn }
}

// New wires an Engine over the given registry, credential store, and
// adapters.
func New(
	registry account.Registry,
	store credstore.Store,
	adapters provider.Set,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		registry: registry,
		store:    store,
		adapters: adapters,
		logger:   logger,
	}
	e.callTimeout.Store(int64(DefaultCallTimeout))

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetCallTimeout adjusts the per-call timeout at runtime. In-flight
// calls keep the timeout they started with.
func (e *Engine) SetCallTimeout(d time.Duration) {
	if d > 0 {
		e.callTimeout.Store(int64(d))
	}
}

// target is one branch of a fan-out.
type target struct {
	acct     account.Account
	folderID string
}

// outcome is the result slot for one branch. Slots are pre-sized so
// branches never share mutable state.
type outcome struct {
	items []item.Item
	err   error
}

// ListFolder lists one folder, or — for the zero FolderRef — the roots
// of every connected account merged into a single listing. Partial
// failure yields items plus warnings; only a total failure is an
// error. No connected accounts at root is an empty listing, not an
// error.
func (e *Engine) ListFolder(ctx context.Context, ref item.FolderRef) (Listing, error) {
	var targets []target

	if ref.AllRoots() {
		accounts, err := e.registry.List(ctx)
		if err != nil {
			return Listing{}, fmt.Errorf("aggregate: enumerating accounts: %w", err)
		}

		for _, a := range accounts {
			targets = append(targets, target{acct: a, folderID: item.RootFolderID})
		}
	} else {
		acct, err := e.account(ctx, ref.Service, ref.Account)
		if err != nil {
			return Listing{}, err
		}

		targets = append(targets, target{acct: acct, folderID: ref.FolderID})
	}

	if len(targets) == 0 {
		e.logger.Debug("no connected accounts, returning empty listing")
		return Listing{}, nil
	}

	outcomes := e.fanOut(ctx, targets, func(ctx context.Context, t target, cred *credstore.Record) ([]item.Item, error) {
		adapter, ok := e.adapters[t.acct.Service]
		if !ok {
			return nil, fmt.Errorf("aggregate: no adapter for service %q", t.acct.Service)
		}

		return adapter.ListChildren(ctx, cred, t.acct.ID, t.folderID)
	})

	return e.merge(ctx, targets, outcomes)
}

// Search runs the query against every active service that has at least
// one connected account, using the first account per service in
// enumeration order. A blank query makes no provider calls.
func (e *Engine) Search(ctx context.Context, query string, activeServices []item.Service) (Listing, error) {
	if strings.TrimSpace(query) == "" {
		return Listing{}, nil
	}

	accounts, err := e.registry.List(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("aggregate: enumerating accounts: %w", err)
	}

	active := make(map[item.Service]bool, len(activeServices))
	for _, s := range activeServices {
		active[s] = true
	}

	seen := make(map[item.Service]bool)

	var targets []target

	for _, a := range accounts {
		if !active[a.Service] || seen[a.Service] {
			continue
		}

		seen[a.Service] = true
		targets = append(targets, target{acct: a})
	}

	if len(targets) == 0 {
		return Listing{}, nil
	}

	outcomes := e.fanOut(ctx, targets, func(ctx context.Context, t target, cred *credstore.Record) ([]item.Item, error) {
		adapter, ok := e.adapters[t.acct.Service]
		if !ok {
			return nil, fmt.Errorf("aggregate: no adapter for service %q", t.acct.Service)
		}

		return adapter.Search(ctx, cred, t.acct.ID, query)
	})

	return e.merge(ctx, targets, outcomes)
}

// OpenLink resolves a browsable URL for one item. An Unauthorized
// response clears the stored credential before the error is returned.
func (e *Engine) OpenLink(ctx context.Context, service item.Service, accountID, itemID string) (string, error) {
	adapter, ok := e.adapters[service]
	if !ok {
		return "", fmt.Errorf("aggregate: no adapter for service %q", service)
	}

	cred, ok, err := e.store.Get(ctx, service, accountID)
	if err != nil {
		return "", fmt.Errorf("aggregate: loading credential: %w", err)
	}

	if !ok {
		return "", &provider.CallError{
			Service: service,
			Account: accountID,
			Message: "no stored credential",
			Err:     provider.ErrUnauthorized,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(e.callTimeout.Load()))
	defer cancel()

	url, err := adapter.ResolveOpenLink(callCtx, cred, accountID, itemID)
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) {
			e.invalidate(ctx, service, accountID)
		}

		return "", err
	}

	return url, nil
}

// fanOut runs call once per target concurrently and collects every
// outcome. Branches never return errors through the group: failures
// land in their slot so one bad branch cannot cancel its siblings.
func (e *Engine) fanOut(
	ctx context.Context,
	targets []target,
	call func(ctx context.Context, t target, cred *credstore.Record) ([]item.Item, error),
) []outcome {
	outcomes := make([]outcome, len(targets))

	g, ctx := errgroup.WithContext(ctx)

	for i, t := range targets {
		g.Go(func() error {
			cred, ok, err := e.store.Get(ctx, t.acct.Service, t.acct.ID)
			if err != nil {
				outcomes[i].err = fmt.Errorf("aggregate: loading credential: %w", err)
				return nil
			}

			if !ok {
				outcomes[i].err = &provider.CallError{
					Service: t.acct.Service,
					Account: t.acct.ID,
					Message: "no stored credential",
					Err:     provider.ErrUnauthorized,
				}

				return nil
			}

			callCtx, cancel := context.WithTimeout(ctx, time.Duration(e.callTimeout.Load()))
			defer cancel()

			items, err := call(callCtx, t, cred)
			outcomes[i] = outcome{items: items, err: err}

			return nil
		})
	}

	// Branches always return nil; Wait is a completion barrier.
	_ = g.Wait()

	return outcomes
}

// merge folds per-branch outcomes into one Listing. Items are
// annotated with their owning account before sorting so the view can
// label same-named entries from different accounts.
func (e *Engine) merge(ctx context.Context, targets []target, outcomes []outcome) (Listing, error) {
	var (
		listing   Listing
		successes int
		lastErr   error
	)

	for i, t := range targets {
		out := outcomes[i]

		if out.err != nil {
			lastErr = out.err

			e.logger.Warn("provider call failed",
				slog.String("service", string(t.acct.Service)),
				slog.String("account", t.acct.ID),
				slog.String("error", out.err.Error()),
			)

			listing.Warnings = append(listing.Warnings, Warning{
				Service: t.acct.Service,
				Account: t.acct.ID,
				Message: out.err.Error(),
			})

			if errors.Is(out.err, provider.ErrUnauthorized) {
				e.invalidate(ctx, t.acct.Service, t.acct.ID)
				listing.Reauth = append(listing.Reauth, e.reauthPrompt(t.acct))
			}

			continue
		}

		successes++

		for j := range out.items {
			out.items[j].AccountName = t.acct.Name
			out.items[j].AccountEmail = t.acct.Email
		}

		listing.Items = append(listing.Items, out.items...)
	}

	if successes == 0 && lastErr != nil {
		return Listing{}, lastErr
	}

	item.Sort(listing.Items)

	if len(listing.Items) > 0 {
		listing.PerService = make(map[item.Service][]item.Item)
		for _, it := range listing.Items {
			listing.PerService[it.Service] = append(listing.PerService[it.Service], it)
		}
	}

	return listing, nil
}

// invalidate clears a rejected credential so the next use prompts for
// reconnection rather than repeating a doomed call.
func (e *Engine) invalidate(ctx context.Context, service item.Service, accountID string) {
	if err := e.store.Clear(ctx, service, accountID); err != nil {
		e.logger.Warn("clearing rejected credential failed",
			slog.String("service", string(service)),
			slog.String("account", accountID),
			slog.String("error", err.Error()),
		)

		return
	}

	e.logger.Info("cleared rejected credential",
		slog.String("service", string(service)),
		slog.String("account", accountID),
	)
}

func (e *Engine) reauthPrompt(acct account.Account) ReauthPrompt {
	prompt := ReauthPrompt{Service: acct.Service, Account: acct.ID}

	if e.reauthURL != nil {
		url, err := e.reauthURL(acct.Service)
		if err != nil {
			e.logger.Warn("building reauth URL failed",
				slog.String("service", string(acct.Service)),
				slog.String("error", err.Error()),
			)
		} else {
			prompt.URL = url
		}
	}

	return prompt
}

// account resolves a single account from the registry.
func (e *Engine) account(ctx context.Context, service item.Service, accountID string) (account.Account, error) {
	accounts, err := e.registry.ByService(ctx, service)
	if err != nil {
		return account.Account{}, fmt.Errorf("aggregate: enumerating accounts: %w", err)
	}

	for _, a := range accounts {
		if a.ID == accountID {
			return a, nil
		}
	}

	return account.Account{}, fmt.Errorf("aggregate: unknown account %s/%s", service, accountID)
}
