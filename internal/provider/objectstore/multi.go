package objectstore

import (
	"context"
	"log/slog"

	"github.com/unidrive/unidrive/internal/credstore"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/provider"
)

// Multi exposes several configured buckets as one object-store
// service, one account per bucket. Calls dispatch on the account ID,
// which is the bucket entry's name.
type Multi struct {
	adapters map[string]*Adapter
	logger   *slog.Logger
}

// NewMulti creates an empty bucket set.
func NewMulti(logger *slog.Logger) *Multi {
	if logger == nil {
		logger = slog.Default()
	}

	return &Multi{adapters: make(map[string]*Adapter), logger: logger}
}

// Add registers a bucket under the given account ID.
func (m *Multi) Add(accountID string, cfg Config) {
	m.adapters[accountID] = New(cfg, m.logger)
}

// Bucket returns the single-bucket adapter for one account ID, for
// callers that verify credentials before registering the account.
func (m *Multi) Bucket(accountID string) (*Adapter, bool) {
	a, ok := m.adapters[accountID]
	return a, ok
}

// Service implements provider.Adapter.
func (m *Multi) Service() item.Service {
	return item.ServiceObjectStore
}

func (m *Multi) pick(accountID string) (*Adapter, error) {
	a, ok := m.adapters[accountID]
	if !ok {
		return nil, &provider.CallError{
			Service: item.ServiceObjectStore,
			Account: accountID,
			Message: "no bucket configured for this account",
			Err:     provider.ErrNotFound,
		}
	}

	return a, nil
}

// ListChildren implements provider.Adapter.
func (m *Multi) ListChildren(
	ctx context.Context, cred *credstore.Record, accountID, folderID string,
) ([]item.Item, error) {
	a, err := m.pick(accountID)
	if err != nil {
		return nil, err
	}

	return a.ListChildren(ctx, cred, accountID, folderID)
}

// Search implements provider.Adapter.
func (m *Multi) Search(
	ctx context.Context, cred *credstore.Record, accountID, query string,
) ([]item.Item, error) {
	a, err := m.pick(accountID)
	if err != nil {
		return nil, err
	}

	return a.Search(ctx, cred, accountID, query)
}

// ResolveOpenLink implements provider.Adapter.
func (m *Multi) ResolveOpenLink(
	ctx context.Context, cred *credstore.Record, accountID, itemID string,
) (string, error) {
	a, err := m.pick(accountID)
	if err != nil {
		return "", err
	}

	return a.ResolveOpenLink(ctx, cred, accountID, itemID)
}

// CurrentAccount implements provider.Adapter. Identification needs a
// bucket, so it only works when exactly one is configured; connecting
// a specific bucket goes through Bucket instead.
func (m *Multi) CurrentAccount(ctx context.Context, cred *credstore.Record) (provider.Identity, error) {
	if len(m.adapters) == 1 {
		for _, a := range m.adapters {
			return a.CurrentAccount(ctx, cred)
		}
	}

	return provider.Identity{}, &provider.CallError{
		Service: item.ServiceObjectStore,
		Message: "bucket must be named when several are configured",
		Err:     provider.ErrNotFound,
	}
}
