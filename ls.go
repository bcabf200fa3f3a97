package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/aggregate"
	"github.com/unidrive/unidrive/internal/item"
	"github.com/unidrive/unidrive/internal/nav"
	"github.com/unidrive/unidrive/internal/provider"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [location]",
		Short: "List a folder across all connected accounts",
		Long: `List folder contents. With no argument, the aggregated root of
every connected account. The location argument is the query string the
API and the location feed emit, e.g.
"folder=abc123&service=googledrive&account=user-1".`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLs,
	}
}

func runLs(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	loc := nav.RootLocation()
	if len(args) == 1 {
		loc = nav.ParseLocationString(args[0])
	}

	listing, err := listWithRetry(ctx, a.engine, loc.Ref())
	if err != nil {
		return err
	}

	printWarnings(listing)

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(listing)
	}

	if len(listing.Items) == 0 {
		statusf("Empty.\n")
		return nil
	}

	printItems(listing.Items)

	return nil
}

// folderLister is the slice of the aggregation engine ls needs.
type folderLister interface {
	ListFolder(ctx context.Context, ref item.FolderRef) (aggregate.Listing, error)
}

// listWithRetry retries a fully failed listing once on a transient or
// rate-limited outcome, honoring a provider-supplied Retry-After.
// Partial results return immediately; only total failure is worth a
// second attempt.
func listWithRetry(ctx context.Context, engine folderLister, ref item.FolderRef) (aggregate.Listing, error) {
	listing, err := engine.ListFolder(ctx, ref)
	if err == nil {
		return listing, nil
	}

	if !errors.Is(err, provider.ErrTransient) && !errors.Is(err, provider.ErrRateLimited) {
		return listing, err
	}

	delay := provider.Backoff(0)

	var callErr *provider.CallError
	if errors.As(err, &callErr) && callErr.RetryAfter > 0 {
		delay = callErr.RetryAfter
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return aggregate.Listing{}, ctx.Err()
	}

	return engine.ListFolder(ctx, ref)
}

// printWarnings surfaces partial failures and reauth prompts on stderr
// so stdout stays clean for the listing itself.
func printWarnings(listing aggregate.Listing) {
	for _, w := range listing.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s/%s: %s\n", w.Service, w.Account, w.Message)
	}

	for _, r := range listing.Reauth {
		if r.URL != "" {
			fmt.Fprintf(os.Stderr, "Account %s/%s needs to be reconnected: %s\n", r.Service, r.Account, r.URL)
		} else {
			fmt.Fprintf(os.Stderr, "Account %s/%s needs to be reconnected: run 'unidrive login %s'\n",
				r.Service, r.Account, r.Service)
		}
	}
}
