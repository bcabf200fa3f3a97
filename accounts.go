package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List connected accounts",
		RunE:  runAccounts,
	}
}

// accountsOutput is the JSON schema for `accounts --json`.
type accountsOutput struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.registry.List(ctx)
	if err != nil {
		return err
	}

	if flagJSON {
		out := make([]accountsOutput, 0, len(accounts))
		for _, acct := range accounts {
			out = append(out, accountsOutput{
				ID:      acct.ID,
				Service: string(acct.Service),
				Name:    acct.Name,
				Email:   acct.Email,
			})
		}

		return json.NewEncoder(os.Stdout).Encode(out)
	}

	if len(accounts) == 0 {
		statusf("No accounts connected. Run 'unidrive login <service>' to add one.\n")
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, acct := range accounts {
		rows = append(rows, []string{string(acct.Service), acct.ID, acct.Name, acct.Email})
	}

	printTable(os.Stdout, []string{"SERVICE", "ACCOUNT", "NAME", "EMAIL"}, rows)

	return nil
}
