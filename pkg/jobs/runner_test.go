package jobs

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/cli"
	"github.com/hzcy/chatbetter2api/pkg/models"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

type fakeRefresher struct {
	mu      sync.Mutex
	calls   []int64
	fail    map[int64]bool
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeRefresher) Refresh(_ context.Context, acct *accounts.Account) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, acct.ID)
	if f.fail[acct.ID] {
		return errors.New("refresh rejected")
	}
	return nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSource struct {
	data []byte
	auth upstream.Auth
}

func (f *fakeSource) Models(_ context.Context, auth upstream.Auth) ([]byte, error) {
	f.auth = auth
	return f.data, nil
}

func newTestManager(t *testing.T) (*accounts.SQLiteStore, *accounts.Manager) {
	t.Helper()

	store, err := accounts.NewSQLiteStore(accounts.SQLiteConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "accounts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, accounts.NewManager(store)
}

func seed(t *testing.T, store accounts.Store, email string, patch accounts.Patch) *accounts.Account {
	t.Helper()

	a, err := store.Create(context.Background(), accounts.NewAccount{
		Email:       email,
		Token:       "tok-" + email,
		AccessToken: "jwt-" + email,
	})
	require.NoError(t, err)
	a, err = store.Update(context.Background(), a.ID, patch)
	require.NoError(t, err)
	return a
}

func ptr[T any](v T) *T { return &v }

func TestRunner_RefreshAll(t *testing.T) {
	store, manager := newTestManager(t)
	ctx := context.Background()

	seed(t, store, "a@example.com", accounts.Patch{})
	off := seed(t, store, "off@example.com", accounts.Patch{Enabled: ptr(false)})
	bad := seed(t, store, "bad@example.com", accounts.Patch{})
	gone := seed(t, store, "gone@example.com", accounts.Patch{})
	require.NoError(t, store.SoftDelete(ctx, gone.ID))

	refresher := &fakeRefresher{fail: map[int64]bool{bad.ID: true}}
	r := NewRunner(manager, refresher)

	var out bytes.Buffer
	summary, err := r.RefreshAll(ctx, cli.NewProgressReporter(&out))
	require.NoError(t, err)

	assert.Equal(t, RefreshSummary{Total: 3, Succeeded: 2, Failed: 1}, summary)
	assert.Contains(t, refresher.calls, off.ID, "disabled accounts are refreshed too")
	assert.NotContains(t, refresher.calls, gone.ID)
	assert.Contains(t, out.String(), "(3/3)")
}

func TestRunner_RefreshAllBoundsConcurrency(t *testing.T) {
	store, manager := newTestManager(t)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com", "f@x.com"} {
		seed(t, store, email, accounts.Patch{})
	}

	refresher := &fakeRefresher{delay: 20 * time.Millisecond}
	r := NewRunner(manager, refresher, WithWorkers(2))

	summary, err := r.RefreshAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Succeeded)
	assert.LessOrEqual(t, refresher.maxSeen.Load(), int32(2))
	assert.Equal(t, 6, refresher.count())
}

func TestRunner_RefreshAllCancelled(t *testing.T) {
	store, manager := newTestManager(t)
	seed(t, store, "a@example.com", accounts.Patch{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	refresher := &fakeRefresher{}
	_, err := NewRunner(manager, refresher).RefreshAll(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, refresher.count())
}

func TestRunner_ResetCounts(t *testing.T) {
	store, manager := newTestManager(t)
	a := seed(t, store, "a@example.com", accounts.Patch{Count: ptr(int64(7))})

	n, err := NewRunner(manager, &fakeRefresher{}).ResetCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Count)
}

func TestRunner_RefreshModelsUsesFreshestAccount(t *testing.T) {
	store, manager := newTestManager(t)
	now := time.Now()
	seed(t, store, "old@example.com", accounts.Patch{TokenExpires: ptr(now.Add(time.Minute))})
	seed(t, store, "new@example.com", accounts.Patch{TokenExpires: ptr(now.Add(time.Hour)), Count: ptr(int64(50))})
	seed(t, store, "off@example.com", accounts.Patch{TokenExpires: ptr(now.Add(48 * time.Hour)), Enabled: ptr(false)})

	catalog := models.NewCatalog(filepath.Join(t.TempDir(), "models.json"))
	src := &fakeSource{data: []byte(`{"data":[{"id":"gpt-5"}]}`)}
	r := NewRunner(manager, &fakeRefresher{}, WithCatalog(catalog, src))

	require.NoError(t, r.RefreshModels(context.Background()))
	assert.Equal(t, "tok-new@example.com", src.auth.Token)
	assert.Equal(t, "jwt-new@example.com", src.auth.AccessToken)

	raw, err := catalog.Raw()
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"id":"gpt-5"}]}`, string(raw))
}

func TestRunner_RefreshModelsErrors(t *testing.T) {
	_, manager := newTestManager(t)

	err := NewRunner(manager, &fakeRefresher{}).RefreshModels(context.Background())
	assert.ErrorIs(t, err, ErrNoCatalogSource)

	catalog := models.NewCatalog(filepath.Join(t.TempDir(), "models.json"))
	r := NewRunner(manager, &fakeRefresher{}, WithCatalog(catalog, &fakeSource{}))
	assert.ErrorIs(t, r.RefreshModels(context.Background()), accounts.ErrNoAvailableAccount)
}
