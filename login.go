package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/item"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <service> [bucket]",
		Short: "Connect a cloud storage account",
		Long: `Connect an account for one of: googledrive, onedrive, dropbox,
objectstore.

OAuth services open a browser for consent. The object store service
takes a configured bucket name plus static credentials from
--key-id/--secret or UNIDRIVE_S3_KEY_ID/UNIDRIVE_S3_SECRET.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runLogin,
	}

	cmd.Flags().String("key-id", "", "object store access key ID")
	cmd.Flags().String("secret", "", "object store secret access key")

	return cmd
}

func runLogin(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	service := item.Service(args[0])
	if !service.Known() {
		return fmt.Errorf("unknown service %q (want googledrive, onedrive, dropbox, or objectstore)", args[0])
	}

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if service == item.ServiceObjectStore {
		return loginBucket(cmd, args, a)
	}

	acct, err := a.auth.BrowserLogin(ctx, service, openBrowser)
	if err != nil {
		return err
	}

	statusf("Connected %s account %s", service, acct.ID)

	if acct.Email != "" {
		statusf(" (%s)", acct.Email)
	}

	statusf(".\n")

	return nil
}

// loginBucket connects a configured S3-compatible bucket using static
// credentials.
func loginBucket(cmd *cobra.Command, args []string, a *app) error {
	if len(args) < 2 {
		return fmt.Errorf("bucket name required: unidrive login objectstore <bucket>")
	}

	name := args[1]

	adapter, ok := a.buckets.Bucket(name)
	if !ok {
		return fmt.Errorf("no [[bucket]] entry named %q in the config file", name)
	}

	keyID, _ := cmd.Flags().GetString("key-id")
	if keyID == "" {
		keyID = os.Getenv("UNIDRIVE_S3_KEY_ID")
	}

	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("UNIDRIVE_S3_SECRET")
	}

	if keyID == "" || secret == "" {
		return fmt.Errorf("object store credentials required (--key-id/--secret or UNIDRIVE_S3_KEY_ID/UNIDRIVE_S3_SECRET)")
	}

	ctx := cmd.Context()

	if _, err := a.auth.ConnectStatic(ctx, item.ServiceObjectStore, name, adapter, keyID, secret); err != nil {
		return err
	}

	statusf("Connected bucket %s.\n", name)

	return nil
}

// openBrowser launches the platform browser for the given URL.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
