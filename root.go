// Command unidrive aggregates files across Google Drive, OneDrive,
// Dropbox, and S3-compatible buckets into one browsable, searchable
// view, served over a local JSON API or driven from the CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// loadedCfg holds the effective configuration resolved by
// PersistentPreRunE, available to all subcommands afterward.
var loadedCfg *config.Config

// logLevel backs every handler buildLogger creates, so a config reload
// can retarget the level of a running server.
var logLevel = new(slog.LevelVar)

// newRootCmd builds the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "unidrive",
		Short:   "Multi-cloud file browser",
		Long:    "Browse and search Google Drive, OneDrive, Dropbox, and S3 buckets as one drive.",
		Version: version,
		// Silence cobra's default error/usage printing — handled in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// Secrets may live in a .env next to the binary; absence is fine.
			_ = godotenv.Load()

			cfg, err := config.Resolve(flagConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			loadedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newOpenCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the loaded config
// and CLI flags. A "auto" log format picks text on a terminal and JSON
// otherwise, so piped output stays machine-readable.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	format := "auto"

	if loadedCfg != nil {
		level = parseLogLevel(loadedCfg.Logging.LogLevel)
		format = loadedCfg.Logging.LogFormat
	}

	// CLI flags override config.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	logLevel.Set(level)

	opts := &slog.HandlerOptions{Level: logLevel}

	useText := format == "text" ||
		(format != "json" && isatty.IsTerminal(os.Stderr.Fd()))

	if useText {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// parseLogLevel maps a config log_level value to a slog level. Unknown
// values mean info.
func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// applyLogLevel retargets the running log level from a reloaded config.
// Explicit CLI flags keep winning over the file.
func applyLogLevel(s string) {
	if flagVerbose || flagQuiet {
		return
	}

	logLevel.Set(parseLogLevel(s))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
