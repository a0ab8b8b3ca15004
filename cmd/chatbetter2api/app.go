package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/accounts/cache"
	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/credentials"
	"github.com/hzcy/chatbetter2api/pkg/jobs"
	"github.com/hzcy/chatbetter2api/pkg/models"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// app holds the components shared by the server and the maintenance
// commands.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Collector
	store     *accounts.SQLiteStore
	mirror    cache.Mirror
	manager   *accounts.Manager
	client    *upstream.Client
	refresher *credentials.Refresher
	catalog   *models.Catalog
	runner    *jobs.Runner
}

// newApp opens the store and the cache mirror and builds everything that
// depends on them. The caller must Close the app.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
	}

	store, err := accounts.NewSQLiteStore(accounts.SQLiteConfig{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
		DisableWAL:  cfg.Storage.DisableWAL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	a.store = store

	mirror, err := cache.FromConfig(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create cache mirror: %w", err)
	}
	a.mirror = mirror

	managerOpts := []accounts.ManagerOption{accounts.WithMetrics(a.metrics)}
	if mirror != nil {
		managerOpts = append(managerOpts, accounts.WithCache(cache.NewAccountCache(mirror, cfg.Cache.KeyPrefix, cfg.Cache.TTL)))
	}
	a.manager = accounts.NewManager(store, managerOpts...)

	client, err := upstream.New(cfg.Upstream, upstream.WithMetrics(a.metrics))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	a.client = client

	a.refresher = credentials.NewRefresher(client, a.manager, a.metrics)
	a.catalog = models.NewCatalog(cfg.Models.Path)
	a.runner = jobs.NewRunner(a.manager, a.refresher,
		jobs.WithCatalog(a.catalog, client),
		jobs.WithWorkers(cfg.Jobs.RefreshWorkers),
		jobs.WithMetrics(a.metrics),
	)

	slog.Debug("components initialized",
		"storage_driver", cfg.Storage.Driver,
		"storage_path", cfg.Storage.Path,
		"cache_backend", cfg.Cache.Backend,
	)
	return a, nil
}

// Close releases the cache mirror and the store.
func (a *app) Close() error {
	var errs []error
	if a.mirror != nil {
		errs = append(errs, a.mirror.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
