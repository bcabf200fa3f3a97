package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/item"
)

var flagOpenPrint bool

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <service> <account> <item>",
		Short: "Open an item in the provider's web UI",
		Args:  cobra.ExactArgs(3),
		RunE:  runOpen,
	}

	cmd.Flags().BoolVar(&flagOpenPrint, "print", false, "print the link instead of launching a browser")

	return cmd
}

func runOpen(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	url, err := a.engine.OpenLink(ctx, item.Service(args[0]), args[1], args[2])
	if err != nil {
		return err
	}

	if flagOpenPrint {
		fmt.Println(url)
		return nil
	}

	if err := openBrowser(url); err != nil {
		// Fall back to printing so the user can open it by hand.
		fmt.Println(url)
	}

	return nil
}
