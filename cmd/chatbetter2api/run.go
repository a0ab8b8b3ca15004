package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hzcy/chatbetter2api/pkg/channel"
	"github.com/hzcy/chatbetter2api/pkg/cli"
	"github.com/hzcy/chatbetter2api/pkg/completion"
	"github.com/hzcy/chatbetter2api/pkg/config"
	"github.com/hzcy/chatbetter2api/pkg/jobs"
	"github.com/hzcy/chatbetter2api/pkg/proxy/handlers"
	"github.com/hzcy/chatbetter2api/pkg/server"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/health"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/tokens"
	"github.com/hzcy/chatbetter2api/pkg/transform"
)

const healthCheckTimeout = 5 * time.Second

type runOptions struct {
	listenAddress string
	dryRun        bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the API server",
		Long: `Start the API server with the background jobs.

Examples:
  # Start with default config
  chatbetter2api run

  # Override listen address
  chatbetter2api run --listen 0.0.0.0:8080

  # Validate config without starting the server
  chatbetter2api run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if opts.listenAddress != "" {
				cfg.Server.ListenAddress = opts.listenAddress
			}
			if opts.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
				return nil
			}

			ctx, stop := cli.SetupSignalHandler(cmd.Context())
			defer stop()
			return cli.NewCommandError("run", runServer(ctx, cfg))
		},
	}

	cmd.Flags().StringVarP(&opts.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate config without starting the server")
	return cmd
}

// runServer wires every component and serves until ctx is cancelled.
func runServer(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dialer, err := channel.NewWebsocketDialer(channel.DialerConfig{
		ProxyURL:         cfg.Upstream.ProxyURL,
		HandshakeTimeout: cfg.Channel.DialTimeout,
		WriteTimeout:     cfg.Channel.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create websocket dialer: %w", err)
	}
	handshaker := channel.NewHandshaker(dialer, channel.HandshakerConfig{
		URL:        cfg.Upstream.WebsocketURL,
		UserAgent:  cfg.Upstream.UserAgent,
		Origin:     cfg.Upstream.BaseURL,
		AckTimeout: cfg.Channel.AckTimeout,
	}, a.metrics)

	pool := channel.NewPool(channel.WithMetrics(a.metrics))
	defer pool.Close()

	localizer, err := transform.NewImageLocalizer(a.client, transform.LocalizerConfig{
		Dir:     cfg.Files.Dir,
		Domain:  cfg.Files.Domain,
		Timeout: cfg.Files.DownloadTimeout,
	}, a.metrics)
	if err != nil {
		return err
	}

	if err := a.catalog.Load(); err != nil {
		slog.Warn("model catalog not loaded", "path", cfg.Models.Path, "error", err)
	}
	if !cfg.Models.DisableWatch {
		go func() {
			if err := a.catalog.Watch(ctx); err != nil {
				slog.Warn("model catalog watcher stopped", "error", err)
			}
		}()
	}

	orchestrator := completion.New(completion.Deps{
		Accounts:  a.manager,
		Refresher: a.refresher,
		Chats:     a.client,
		Channels:  pool,
		Open:      handshaker.Open,
	}, completion.Config{
		MaxAttempts:       cfg.Completion.MaxAttempts,
		ElevatedThreshold: cfg.Completion.ElevatedThreshold,
		DefaultModel:      cfg.Completion.DefaultModel,
		IdleTimeout:       cfg.Completion.IdleTimeout,
	},
		completion.WithEstimator(tokens.New(cfg.Completion.Tokenizer)),
		completion.WithLocalizer(localizer),
		completion.WithCatalog(a.catalog),
		completion.WithMetrics(a.metrics),
	)

	if err := a.runner.RefreshCache(ctx); err != nil {
		slog.Warn("initial cache refresh failed", "error", err)
	}

	scheduler := jobs.NewScheduler(a.runner, cfg.Jobs)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	srv := server.NewServer(cfg.Server, cfg.Auth, server.Deps{
		Completer: handlers.FromOrchestrator(orchestrator),
		Models:    a.catalog,
		Admin: handlers.NewAdminHandler(a.store,
			handlers.WithSyncer(a.manager),
			handlers.WithAccountRefresher(a.refresher),
			handlers.WithModelRefresher(a.runner),
		),
		FilesDir:    cfg.Files.Dir,
		Health:      newChecker(a),
		Version:     versionInfo(),
		Metrics:     metricsCollector(a, cfg),
		MetricsPath: cfg.Telemetry.Metrics.Path,
	})

	return srv.Start(ctx)
}

// newChecker registers the readiness checks. Only the store gates
// readiness; the others degrade it.
func newChecker(a *app) *health.Checker {
	checker := health.New(healthCheckTimeout)
	checker.Register("store", health.PingCheck(a.store), health.Critical)
	if a.mirror != nil {
		checker.Register("cache", health.PingCheck(a.mirror), health.Optional)
	}
	checker.Register("models", health.CatalogCheck(a.catalog), health.Optional)
	checker.Register("accounts", health.AccountsCheck(a.store), health.Optional)
	return checker
}

// metricsCollector returns the collector to expose, or nil when metrics are
// disabled.
func metricsCollector(a *app, cfg *config.Config) *metrics.Collector {
	if cfg.Telemetry.Metrics.Disabled {
		return nil
	}
	return a.metrics
}
