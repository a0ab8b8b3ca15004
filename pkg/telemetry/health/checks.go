package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
)

// Pinger is implemented by the account store and the cache mirror.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports whether p answers a ping.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// Document is implemented by the model catalog.
type Document interface {
	Raw() ([]byte, error)
}

// CatalogCheck reports whether the model catalog has been loaded.
func CatalogCheck(d Document) CheckFunc {
	return func(ctx context.Context) error {
		_, err := d.Raw()
		return err
	}
}

// SelectableLister is implemented by the account store.
type SelectableLister interface {
	ListSelectable(ctx context.Context, tier accounts.Tier) ([]*accounts.Account, error)
}

// ErrNoSelectableAccount is reported when no account can serve requests.
var ErrNoSelectableAccount = errors.New("no selectable account")

// AccountsCheck reports whether at least one standard account is
// selectable.
func AccountsCheck(l SelectableLister) CheckFunc {
	return func(ctx context.Context) error {
		list, err := l.ListSelectable(ctx, accounts.TierStandard)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		if len(list) == 0 {
			return ErrNoSelectableAccount
		}
		return nil
	}
}
