package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/unidrive/unidrive/internal/config"
	"github.com/unidrive/unidrive/internal/httpapi"
	"github.com/unidrive/unidrive/internal/nav"
)

// serverShutdownTimeout is how long in-flight requests get to drain.
const serverShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation API server",
		Long: `Serve the JSON API: aggregated listings, cross-service search,
open-link resolution, account management, OAuth callbacks, and the
websocket location feed.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := shutdownContext(cmd.Context(), logger)

	a, err := newApp(ctx, loadedCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// One server per session database.
	storePath, err := expandHome(loadedCfg.Store.Path)
	if err != nil {
		return err
	}

	cleanupPID, err := writePIDFile(filepath.Join(filepath.Dir(storePath), "unidrive.pid"))
	if err != nil {
		return err
	}
	defer cleanupPID()

	// Log level and the per-call timeout pick up config file edits
	// without a restart; listen address and store settings need one.
	holder := config.NewHolder(loadedCfg, config.EffectivePath(flagConfigPath))
	holder.OnReload(func(cfg *config.Config) {
		applyLogLevel(cfg.Logging.LogLevel)

		if d, timeoutErr := cfg.CallTimeout(); timeoutErr == nil {
			a.engine.SetCallTimeout(d)
		} else {
			logger.Warn("reloaded call_timeout invalid, keeping previous",
				slog.String("error", timeoutErr.Error()))
		}
	})

	if err := holder.Watch(ctx, logger); err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	broadcaster := nav.NewBroadcaster()
	defer broadcaster.Close()

	machine := nav.NewMachine(broadcaster, logger)

	handler := httpapi.NewHandler(
		a.engine, machine, broadcaster, a.auth, a.registry,
		loadedCfg.Server.BaseURL, logger,
	)

	srv := &http.Server{
		Addr:              loadedCfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("server listening",
			slog.String("addr", loadedCfg.Server.ListenAddr),
			slog.String("base_url", loadedCfg.Server.BaseURL),
		)

		if serveErr := srv.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining server: %w", err)
	}

	logger.Info("server stopped")

	return nil
}
