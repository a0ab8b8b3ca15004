// Package accounts manages the pool of upstream identities.
//
// # Overview
//
// An Account is one upstream login: its bearer token, the cookie set used to
// mint short-lived access tokens, and a usage counter. Accounts are never
// hard-deleted; a soft-deleted or disabled account is never selected.
//
// # Selection
//
// Manager.Select tries the cache mirror first and re-validates the cached
// candidate against the Store. On a miss, a stale entry or a failing cache it
// asks the Store for enabled accounts ordered by usage count ascending, then
// token expiry descending. Elevated requests degrade to the standard tier
// when no paid account is available. Every selection increments the usage
// counter with a single UPDATE.
//
// # Leases
//
// A Lease is advisory. Releasing it updates in-flight bookkeeping but never
// changes whether the account can be selected again, so one account may
// serve several concurrent requests.
//
// # Storage
//
// SQLiteStore works with either the pure Go driver ("sqlite", modernc) or
// the cgo driver ("sqlite3", mattn):
//
//	store, err := accounts.NewSQLiteStore(accounts.SQLiteConfig{
//	    Driver: "sqlite",
//	    Path:   "data/chatbetter2api.db",
//	})
//	manager := accounts.NewManager(store, accounts.WithCache(accountCache))
//
//	lease, err := manager.Select(ctx, accounts.TierStandard)
//	defer lease.Release()
package accounts
