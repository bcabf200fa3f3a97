package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/item"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout [service] [account]",
		Short: "Disconnect accounts and clear stored credentials",
		Long: `Disconnect accounts. With no arguments, every account is removed.
With a service, every account of that service. With a service and an
account ID, just that account.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runLogout,
	}
}

func runLogout(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch len(args) {
	case 2:
		service := item.Service(args[0])
		if !service.Known() {
			return fmt.Errorf("unknown service %q", args[0])
		}

		if err := a.auth.Disconnect(ctx, service, args[1]); err != nil {
			return err
		}

		statusf("Disconnected %s account %s.\n", service, args[1])
	case 1:
		service := item.Service(args[0])
		if !service.Known() {
			return fmt.Errorf("unknown service %q", args[0])
		}

		accounts, err := a.registry.ByService(ctx, service)
		if err != nil {
			return err
		}

		for _, acct := range accounts {
			if err := a.auth.Disconnect(ctx, service, acct.ID); err != nil {
				return err
			}
		}

		statusf("Disconnected %d %s account(s).\n", len(accounts), service)
	default:
		accounts, err := a.registry.List(ctx)
		if err != nil {
			return err
		}

		for _, acct := range accounts {
			if err := a.auth.Disconnect(ctx, acct.Service, acct.ID); err != nil {
				return err
			}
		}

		statusf("Disconnected %d account(s).\n", len(accounts))
	}

	return nil
}
