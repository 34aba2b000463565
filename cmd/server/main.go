package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/bookkeeper/internal/application"
	"github.com/JonMunkholm/bookkeeper/internal/config"
	"github.com/JonMunkholm/bookkeeper/internal/logging"
	"github.com/JonMunkholm/bookkeeper/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"backups", cfg.Backup.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run serves until SIGINT/SIGTERM, then drains running mutations and
// pending backups before closing the store.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	service := app.Service
	server := web.NewServer(service, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		service.StartBackupScheduler(gctx, cfg.Backup.Interval)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Wait for running imports and reconciliations (with timeout)
		if st := service.Status(); st.Mutations.Active > 0 {
			slog.Info("waiting for mutations to complete", "active", st.Mutations.Active)
			if err := service.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("mutations did not complete in time", "error", err)
			}
		}

		if err := service.WaitForBackups(shutdownCtx); err != nil {
			slog.Warn("backups did not complete in time", "error", err)
		}
		return nil
	})

	return g.Wait()
}
