// Package application assembles the ledger from configuration: the store,
// the backup manager and the service that the server and the CLI drive.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/bookkeeper/internal/backup"
	"github.com/JonMunkholm/bookkeeper/internal/classify"
	"github.com/JonMunkholm/bookkeeper/internal/config"
	"github.com/JonMunkholm/bookkeeper/internal/core"
	"github.com/JonMunkholm/bookkeeper/internal/importer"
	"github.com/JonMunkholm/bookkeeper/internal/store"
	"github.com/JonMunkholm/bookkeeper/internal/store/memory"
	"github.com/JonMunkholm/bookkeeper/internal/store/postgres"
)

// App owns everything Build opened.
type App struct {
	Config  *config.Config
	Store   store.Store
	Backups *backup.Manager // nil when backups are disabled
	Service *core.Service

	closers []io.Closer
}

// Build opens the configured store and backup sink and wires the service.
// On error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = st
	app.closers = append(app.closers, st)

	if cfg.Backup.Enabled {
		sink, err := openSink(ctx, cfg.Backup)
		if err != nil {
			app.Close()
			return nil, err
		}
		if c, ok := sink.(io.Closer); ok {
			app.closers = append(app.closers, c)
		}
		app.Backups = backup.NewManager(sink, cfg.Backup.Keep)
	}

	opts, err := ServiceOptions(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = core.NewService(st, app.Backups, opts)
	return app, nil
}

// ServiceOptions maps the configuration onto service options.
func ServiceOptions(cfg *config.Config) (core.Options, error) {
	rules, err := classify.ParseRules(cfg.Classifier.Rules)
	if err != nil {
		return core.Options{}, fmt.Errorf("classifier rules: %w", err)
	}
	if cfg.Import.ContextCheckInterval > 0 {
		importer.ContextCheckInterval = cfg.Import.ContextCheckInterval
	}

	return core.Options{
		Import: importer.Options{
			DefaultGroup:   cfg.Import.DefaultGroup,
			UsageMaxLength: cfg.Import.UsageMaxLength,
			Duplicates: importer.Detector{
				Window:    cfg.Import.DuplicateWindow,
				Tolerance: cfg.Import.AmountTolerance,
			},
			Transfer: importer.TransferRule{
				Categories:      cfg.Transfer.Categories,
				CashAccount:     cfg.Transfer.CashAccount,
				CheckingAccount: cfg.Transfer.CheckingAccount,
			},
		},
		Rules:          rules,
		Learn:          cfg.Classifier.Learn,
		MinProbability: cfg.Classifier.MinProbability,
		MaxFileBytes:   cfg.Import.MaxFileSize,
		MaxWait:        cfg.Import.MaxWaitTime,
		ImportTimeout:  cfg.Import.Timeout,
		BackupTimeout:  cfg.Backup.Timeout,
		Currency:       cfg.Import.Currency,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Database.Migrate {
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return nil, err
			}
		}
		st, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "name", databaseName(cfg.Database.URL))
		return st, nil

	case config.DriverMemory, "":
		if cfg.Store.Path == "" {
			slog.Info("using in-memory ledger")
			return memory.New(), nil
		}
		st, err := memory.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		slog.Info("opened ledger file", "path", cfg.Store.Path)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func openSink(ctx context.Context, cfg config.BackupConfig) (backup.Sink, error) {
	if cfg.GCSBucket != "" {
		sink, err := backup.NewGCSSink(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("open backup bucket %s: %w", cfg.GCSBucket, err)
		}
		slog.Info("backups enabled", "bucket", cfg.GCSBucket, "prefix", cfg.GCSPrefix, "keep", cfg.Keep)
		return sink, nil
	}
	slog.Info("backups enabled", "dir", cfg.Dir, "keep", cfg.Keep)
	return backup.DirSink{Dir: cfg.Dir}, nil
}

// databaseName returns the database part of a connection URL for logging.
func databaseName(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Close releases the store and the backup sink in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
