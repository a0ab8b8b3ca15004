package accounts

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens a fresh store in a temporary directory.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(SQLiteConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "accounts.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seed creates an account and applies patch to it.
func seed(t *testing.T, store Store, email string, patch Patch) *Account {
	t.Helper()

	a, err := store.Create(context.Background(), NewAccount{Email: email, Token: "tok-" + email})
	require.NoError(t, err)

	a, err = store.Update(context.Background(), a.ID, patch)
	require.NoError(t, err)
	return a
}

func ptr[T any](v T) *T { return &v }

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, NewAccount{
		Email:         "a@example.com",
		Token:         "bearer",
		AccessToken:   "jwt",
		AccountType:   "paid",
		SilentCookies: map[string]string{"fe_device_x": "1", "fe_refresh_x": "2"},
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
	assert.Equal(t, "bearer", got.Token)
	assert.True(t, got.Enabled, "a token enables the account")
	assert.Equal(t, TierElevated, got.Tier())
	assert.Equal(t, "2", got.SilentCookies["fe_refresh_x"])
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), got.CookiesExpires, time.Minute)
	assert.Zero(t, got.Count)
}

func TestSQLiteStore_CreateWithoutTokenIsDisabled(t *testing.T) {
	store := newTestStore(t)

	a, err := store.Create(context.Background(), NewAccount{Email: "pending@example.com"})
	require.NoError(t, err)
	assert.False(t, a.Enabled)
}

func TestSQLiteStore_CreateUpsertsByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, NewAccount{Email: "dup@example.com", AccessToken: "old"})
	require.NoError(t, err)

	second, err := store.Create(ctx, NewAccount{Email: "dup@example.com", Token: "new-token"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "new-token", second.Token)
	assert.Equal(t, "old", second.AccessToken, "empty fields are kept")
	assert.True(t, second.Enabled)
}

func TestSQLiteStore_ListSelectableOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	busy := seed(t, store, "busy@example.com", Patch{Count: ptr(int64(10))})
	stale := seed(t, store, "stale@example.com", Patch{Count: ptr(int64(1)), TokenExpires: ptr(now.Add(time.Minute))})
	fresh := seed(t, store, "fresh@example.com", Patch{Count: ptr(int64(1)), TokenExpires: ptr(now.Add(time.Hour))})
	seed(t, store, "off@example.com", Patch{Enabled: ptr(false)})
	gone := seed(t, store, "gone@example.com", Patch{})
	require.NoError(t, store.SoftDelete(ctx, gone.ID))

	list, err := store.ListSelectable(ctx, TierStandard)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, fresh.ID, list[0].ID, "ties on count prefer the later token expiry")
	assert.Equal(t, stale.ID, list[1].ID)
	assert.Equal(t, busy.ID, list[2].ID)

	elevated, err := store.ListSelectable(ctx, TierElevated)
	require.NoError(t, err)
	assert.Empty(t, elevated)
}

func TestSQLiteStore_IncrementUsageIsAtomic(t *testing.T) {
	store := newTestStore(t)
	a := seed(t, store, "hot@example.com", Patch{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementUsage(context.Background(), a.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Count)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.IncrementUsage(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.SetEnabled(ctx, 42, true), ErrNotFound)

	a := seed(t, store, "x@example.com", Patch{})
	require.NoError(t, store.SoftDelete(ctx, a.ID))
	_, err = store.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, ErrNotFound), "deleted accounts are invisible")
	assert.ErrorIs(t, store.SoftDelete(ctx, a.ID), ErrNotFound)
}

func TestSQLiteStore_UpdateCredentialsAndIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seed(t, store, "c@example.com", Patch{Enabled: ptr(false)})

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	require.NoError(t, store.UpdateCredentials(ctx, a.ID, Credentials{
		SilentCookies:  map[string]string{"fe_refresh_1": "r"},
		CookiesExpires: time.Now().Add(30 * 24 * time.Hour),
		AccessToken:    "new-jwt",
		TokenExpires:   exp,
	}))
	require.NoError(t, store.UpdateIdentity(ctx, a.ID, Identity{AccountType: "paid"}))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "new-jwt", got.AccessToken)
	assert.True(t, exp.Equal(got.TokenExpires))
	assert.Equal(t, "tok-c@example.com", got.Token, "empty identity token keeps the old one")
	assert.Equal(t, "paid", got.AccountType)
}

func TestSQLiteStore_ListAndResetCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, "one@example.com", Patch{Count: ptr(int64(3))})
	seed(t, store, "two@example.com", Patch{Count: ptr(int64(5))})
	seed(t, store, "three@other.com", Patch{Count: ptr(int64(7)), Enabled: ptr(false)})

	page, total, err := store.List(ctx, ListOptions{Search: "example", SortBy: "count", SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "two@example.com", page[0].Email)

	n, err := store.ResetCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "disabled accounts keep their counters")

	all, _, err := store.List(ctx, ListOptions{SortBy: "no_such_column"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(7), all[2].Count)
}

func TestSQLiteStore_ListRefreshableIncludesDisabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed(t, store, "on@example.com", Patch{})
	seed(t, store, "off@example.com", Patch{Enabled: ptr(false)})
	gone := seed(t, store, "gone@example.com", Patch{})
	require.NoError(t, store.SoftDelete(ctx, gone.ID))

	list, err := store.ListRefreshable(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDSN(t *testing.T) {
	assert.Contains(t, dsn(SQLiteConfig{Driver: "sqlite", Path: "a.db", BusyTimeout: time.Second}), "_pragma=busy_timeout(1000)")
	assert.Contains(t, dsn(SQLiteConfig{Driver: "sqlite3", Path: "a.db", BusyTimeout: time.Second}), "_busy_timeout=1000")
	assert.Contains(t, dsn(SQLiteConfig{Driver: "sqlite3", Path: "a.db", DisableWAL: true}), "_journal_mode=DELETE")
}
