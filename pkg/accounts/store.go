package accounts

import "context"

// Store persists accounts. Deleted accounts are invisible to every read.
type Store interface {
	// Get returns the account with id or ErrNotFound.
	Get(ctx context.Context, id int64) (*Account, error)

	// GetByEmail returns the account registered under email or ErrNotFound.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// List returns a page of accounts and the total matching count.
	List(ctx context.Context, opts ListOptions) ([]*Account, int, error)

	// ListSelectable returns enabled accounts of the tier ordered by
	// ascending usage count, then descending token expiry.
	ListSelectable(ctx context.Context, tier Tier) ([]*Account, error)

	// ListRefreshable returns every account that is not deleted,
	// including disabled ones.
	ListRefreshable(ctx context.Context) ([]*Account, error)

	// Create registers an account or updates the one with the same email.
	Create(ctx context.Context, in NewAccount) (*Account, error)

	// Update applies patch and returns the updated account.
	Update(ctx context.Context, id int64, patch Patch) (*Account, error)

	// IncrementUsage atomically bumps the usage counter and returns the new value.
	IncrementUsage(ctx context.Context, id int64) (int64, error)

	// UpdateCredentials stores refreshed access material and enables the account.
	UpdateCredentials(ctx context.Context, id int64, creds Credentials) error

	// UpdateIdentity stores sign-in derived fields. Empty fields are kept.
	UpdateIdentity(ctx context.Context, id int64, ident Identity) error

	// SetEnabled flips the enabled flag.
	SetEnabled(ctx context.Context, id int64, enabled bool) error

	// SoftDelete marks the account deleted.
	SoftDelete(ctx context.Context, id int64) error

	// ResetCounts zeroes the usage counter of enabled accounts and returns
	// how many rows changed.
	ResetCounts(ctx context.Context) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}
