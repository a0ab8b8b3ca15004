package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/cli"
	"github.com/hzcy/chatbetter2api/pkg/models"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// DefaultRefreshWorkers bounds concurrent refreshes when no limit is set.
const DefaultRefreshWorkers = 20

// ErrNoCatalogSource is returned by RefreshModels when the runner has no
// catalog or no source.
var ErrNoCatalogSource = errors.New("model catalog refresh is not configured")

// Refresher renews the credentials of one account.
type Refresher interface {
	Refresh(ctx context.Context, acct *accounts.Account) error
}

// Runner executes the maintenance operations.
type Runner struct {
	manager   *accounts.Manager
	refresher Refresher
	catalog   *models.Catalog
	source    models.Source
	workers   int
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCatalog enables RefreshModels.
func WithCatalog(catalog *models.Catalog, source models.Source) RunnerOption {
	return func(r *Runner) {
		r.catalog = catalog
		r.source = source
	}
}

// WithWorkers bounds concurrent refreshes.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMetrics records job metrics.
func WithMetrics(c *metrics.Collector) RunnerOption {
	return func(r *Runner) {
		r.metrics = c
	}
}

// NewRunner creates a Runner.
func NewRunner(manager *accounts.Manager, refresher Refresher, opts ...RunnerOption) *Runner {
	r := &Runner{
		manager:   manager,
		refresher: refresher,
		workers:   DefaultRefreshWorkers,
		logger:    slog.Default().With("component", "jobs"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshSummary reports the outcome of a bulk refresh.
type RefreshSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

// RefreshAll refreshes every non-deleted account, disabled ones included,
// with at most the configured number of refreshes in flight. A failed
// account does not stop the others; the refresher disables it. progress
// may be nil.
func (r *Runner) RefreshAll(ctx context.Context, progress cli.ProgressReporter) (RefreshSummary, error) {
	accts, err := r.manager.Store().ListRefreshable(ctx)
	if err != nil {
		return RefreshSummary{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	summary := RefreshSummary{Total: len(accts)}
	if progress != nil {
		progress.Start(int64(len(accts)))
	}

	var done, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, acct := range accts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.refresher.Refresh(gctx, acct); err != nil {
				failed.Add(1)
				r.logger.WarnContext(gctx, "account refresh failed", "account_id", acct.ID, "error", err)
			}
			n := done.Add(1)
			if progress != nil {
				progress.Update(n)
			}
			return nil
		})
	}
	err = g.Wait()

	summary.Failed = int(failed.Load())
	summary.Succeeded = int(done.Load()) - summary.Failed
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return summary, err
	}
	if progress != nil {
		progress.Finish()
	}

	r.logger.InfoContext(ctx, "bulk refresh finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ResetCounts zeroes the usage counters of enabled accounts.
func (r *Runner) ResetCounts(ctx context.Context) (int64, error) {
	n, err := r.manager.ResetCounts(ctx)
	if err != nil {
		return n, err
	}
	r.logger.InfoContext(ctx, "usage counters reset", "accounts", n)
	return n, nil
}

// RefreshCache rebuilds the cache mirror from the store.
func (r *Runner) RefreshCache(ctx context.Context) error {
	return r.manager.RefreshCache(ctx)
}

// RefreshModels fetches the model catalog with the enabled account whose
// access token expires last.
func (r *Runner) RefreshModels(ctx context.Context) error {
	if r.catalog == nil || r.source == nil {
		return ErrNoCatalogSource
	}

	acct, err := r.freshestAccount(ctx)
	if err != nil {
		return err
	}
	return r.catalog.Refresh(ctx, r.source, upstream.Auth{Token: acct.Token, AccessToken: acct.AccessToken})
}

func (r *Runner) freshestAccount(ctx context.Context) (*accounts.Account, error) {
	accts, err := r.manager.Store().ListSelectable(ctx, accounts.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	var best *accounts.Account
	for _, a := range accts {
		if best == nil || a.TokenExpires.After(best.TokenExpires) {
			best = a
		}
	}
	if best == nil {
		return nil, accounts.ErrNoAvailableAccount
	}
	return best, nil
}
