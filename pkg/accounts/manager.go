package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hzcy/chatbetter2api/pkg/accounts/cache"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
)

const cacheName = "accounts"

// Manager selects, leases and releases accounts. It keeps the cache mirror
// consistent with the store and works without a mirror at all.
type Manager struct {
	store   Store
	cache   *cache.AccountCache
	metrics *metrics.Collector
	logger  *slog.Logger

	inFlight atomic.Int64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCache enables the cache mirror.
func WithCache(c *cache.AccountCache) ManagerOption {
	return func(m *Manager) {
		m.cache = c
	}
}

// WithMetrics records selection metrics.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		logger: slog.Default().With("component", "accounts.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the persistent store.
func (m *Manager) Store() Store {
	return m.store
}

// Lease is the claim on an account for one client request.
type Lease struct {
	// Account is the selected account with its updated usage counter.
	Account *Account

	// Tier is the tier the account was served for.
	Tier Tier

	manager *Manager
	once    sync.Once
}

// Release returns the lease to the manager. Safe to call more than once and
// on a nil lease.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.manager.release(l)
	})
}

// Select picks an account for tier and bumps its usage counter. Elevated
// requests degrade to standard when no elevated account is available.
func (m *Manager) Select(ctx context.Context, tier Tier) (*Lease, error) {
	acct, source, err := m.pick(ctx, tier)
	servedTier := tier
	if errors.Is(err, ErrNoAvailableAccount) && tier == TierElevated {
		m.logger.WarnContext(ctx, "no elevated account available, falling back to standard")
		acct, _, err = m.pick(ctx, TierStandard)
		source = "fallback"
		servedTier = TierStandard
	}
	if err != nil {
		if errors.Is(err, ErrNoAvailableAccount) {
			m.metrics.RecordAccountSelectionFailure(tier.String())
		}
		return nil, err
	}

	count, err := m.store.IncrementUsage(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record usage of account %d: %w", acct.ID, err)
	}
	acct.Count = count

	m.mirrorUsage(ctx, servedTier, acct, source == "cache")

	m.metrics.RecordAccountSelection(tier.String(), source)
	m.metrics.SetLeasesInFlight(m.inFlight.Add(1))

	m.logger.DebugContext(ctx, "account selected",
		"account_id", acct.ID,
		"tier", servedTier.String(),
		"source", source,
		"count", acct.Count,
	)

	return &Lease{Account: acct, Tier: servedTier, manager: m}, nil
}

// pick returns a selectable account of tier without side effects on usage.
func (m *Manager) pick(ctx context.Context, tier Tier) (*Account, string, error) {
	if acct := m.pickCached(ctx, tier); acct != nil {
		return acct, "cache", nil
	}

	candidates, err := m.store.ListSelectable(ctx, tier)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list %s accounts: %w", tier, err)
	}
	if len(candidates) == 0 {
		return nil, "", ErrNoAvailableAccount
	}
	return candidates[0], "store", nil
}

// pickCached returns the cached candidate after re-validating it against the
// store, or nil when the cache cannot serve the request.
func (m *Manager) pickCached(ctx context.Context, tier Tier) *Account {
	if m.cache == nil {
		return nil
	}

	entry, err := m.cache.Pick(ctx, tier.Namespace())
	if errors.Is(err, cache.ErrMiss) {
		m.metrics.RecordCacheMiss(cacheName)
		return nil
	}
	if err != nil {
		m.metrics.RecordCacheError(cacheName)
		m.logger.WarnContext(ctx, "account cache unavailable, using store", "error", err)
		return nil
	}

	acct, err := m.store.Get(ctx, entry.ID)
	if err == nil && acct.Selectable() && (tier == TierStandard || acct.Tier() == TierElevated) {
		m.metrics.RecordCacheHit(cacheName)
		return acct
	}

	// Stale entry: drop it so the next selection does not pick it again.
	m.metrics.RecordCacheMiss(cacheName)
	if rmErr := m.cache.Remove(ctx, tier.Namespace(), entry.ID); rmErr != nil {
		m.logger.WarnContext(ctx, "failed to evict stale cache entry", "account_id", entry.ID, "error", rmErr)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		m.logger.WarnContext(ctx, "failed to validate cached account", "account_id", entry.ID, "error", err)
	}
	return nil
}

// mirrorUsage copies the new counter into the cache. Failures are logged only.
func (m *Manager) mirrorUsage(ctx context.Context, tier Tier, acct *Account, cached bool) {
	if m.cache == nil {
		return
	}

	var err error
	if cached {
		err = m.cache.IncrementCount(ctx, tier.Namespace(), acct.ID)
	} else {
		err = m.cache.Put(ctx, tier.Namespace(), acct.CacheEntry())
	}
	if err != nil {
		m.metrics.RecordCacheError(cacheName)
		m.logger.WarnContext(ctx, "failed to mirror account usage", "account_id", acct.ID, "error", err)
	}
}

// Release returns a lease. Release is advisory: the account stays
// selectable while leased, so this only updates in-flight bookkeeping.
func (m *Manager) Release(l *Lease) {
	l.Release()
}

func (m *Manager) release(l *Lease) {
	m.metrics.SetLeasesInFlight(m.inFlight.Add(-1))
	m.logger.Debug("account released", "account_id", l.Account.ID)
}

// InFlight returns the number of leases not yet released.
func (m *Manager) InFlight() int64 {
	return m.inFlight.Load()
}

// RefreshCache clears and repopulates both tiers of the mirror from the store.
func (m *Manager) RefreshCache(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}

	for _, tier := range []Tier{TierStandard, TierElevated} {
		accts, err := m.store.ListSelectable(ctx, tier)
		if err != nil {
			return fmt.Errorf("failed to list %s accounts: %w", tier, err)
		}

		entries := make([]cache.Entry, 0, len(accts))
		for _, a := range accts {
			entries = append(entries, a.CacheEntry())
		}
		if err := m.cache.Replace(ctx, tier.Namespace(), entries); err != nil {
			m.metrics.RecordCacheError(cacheName)
			return fmt.Errorf("failed to refresh %s cache: %w", tier, err)
		}
		m.metrics.UpdateCacheSize(string(tier.Namespace()), len(entries))
	}

	m.logger.DebugContext(ctx, "account cache refreshed")
	return nil
}

// ResetCounts zeroes the usage counters of enabled accounts and rewrites
// the mirror.
func (m *Manager) ResetCounts(ctx context.Context) (int64, error) {
	n, err := m.store.ResetCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset usage counters: %w", err)
	}
	m.metrics.RecordCounterReset(n)

	if err := m.RefreshCache(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// Sync mirrors the current state of acct: selectable accounts are written
// to their tiers, others are evicted from both.
func (m *Manager) Sync(ctx context.Context, acct *Account) {
	if m.cache == nil {
		return
	}

	var err error
	if acct.Selectable() {
		err = m.cache.Put(ctx, TierStandard.Namespace(), acct.CacheEntry())
		if err == nil && acct.Tier() == TierElevated {
			err = m.cache.Put(ctx, TierElevated.Namespace(), acct.CacheEntry())
		}
		if err == nil && acct.Tier() != TierElevated {
			err = m.cache.Remove(ctx, TierElevated.Namespace(), acct.ID)
		}
	} else {
		err = m.cache.Remove(ctx, TierStandard.Namespace(), acct.ID)
		if err == nil {
			err = m.cache.Remove(ctx, TierElevated.Namespace(), acct.ID)
		}
	}

	if err != nil {
		m.metrics.RecordCacheError(cacheName)
		m.logger.WarnContext(ctx, "failed to sync account cache", "account_id", acct.ID, "error", err)
	}
}
