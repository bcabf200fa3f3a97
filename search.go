package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/item"
)

var flagSearchServices []string

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search file names across connected accounts",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().StringSliceVar(&flagSearchServices, "services", nil,
		"restrict the search to these services (default all)")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	services := item.Services()
	if len(flagSearchServices) > 0 {
		services = services[:0]
		for _, s := range flagSearchServices {
			services = append(services, item.Service(s))
		}
	}

	listing, err := a.engine.Search(ctx, args[0], services)
	if err != nil {
		return err
	}

	printWarnings(listing)

	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(listing)
	}

	if len(listing.Items) == 0 {
		statusf("No matches.\n")
		return nil
	}

	printItems(listing.Items)

	return nil
}
