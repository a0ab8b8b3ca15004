package accounts

import (
	"strconv"
	"time"

	"github.com/hzcy/chatbetter2api/pkg/accounts/cache"
)

// Tier classifies accounts. Requests above the token threshold are routed to
// elevated accounts.
type Tier int

const (
	// TierStandard is any selectable account.
	TierStandard Tier = iota

	// TierElevated is a selectable paid account.
	TierElevated
)

// String returns the tier name.
func (t Tier) String() string {
	if t == TierElevated {
		return "elevated"
	}
	return "standard"
}

// Namespace returns the cache namespace that mirrors the tier.
func (t Tier) Namespace() cache.Namespace {
	if t == TierElevated {
		return cache.NamespaceElevated
	}
	return cache.NamespaceStandard
}

// AccountTypePaid marks an account as elevated.
const AccountTypePaid = "paid"

// Account is an upstream identity.
type Account struct {
	ID             int64             `json:"id"`
	Email          string            `json:"account"`
	Token          string            `json:"token,omitempty"`
	SilentCookies  map[string]string `json:"silent_cookies,omitempty"`
	CookiesExpires time.Time         `json:"cookies_expires,omitzero"`
	Auth           string            `json:"auth,omitempty"`
	AccessToken    string            `json:"access_token,omitempty"`
	TokenExpires   time.Time         `json:"token_expires,omitzero"`
	Enabled        bool              `json:"enable"`
	Count          int64             `json:"count"`
	AccountType    string            `json:"account_type,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
}

// Tier derives the tier from the account type.
func (a *Account) Tier() Tier {
	if a.AccountType == AccountTypePaid {
		return TierElevated
	}
	return TierStandard
}

// Key identifies the account for channel pooling.
func (a *Account) Key() string {
	if a.Email != "" {
		return a.Email
	}
	return strconv.FormatInt(a.ID, 10)
}

// Selectable reports whether the account may be handed out.
func (a *Account) Selectable() bool {
	return a.Enabled && a.DeletedAt == nil
}

// CacheEntry returns the mirrored fields of the account.
func (a *Account) CacheEntry() cache.Entry {
	return cache.Entry{
		ID:          a.ID,
		Email:       a.Email,
		Token:       a.Token,
		AccessToken: a.AccessToken,
		AccountType: a.AccountType,
		Count:       a.Count,
		Enabled:     a.Enabled,
	}
}

// NewAccount carries the fields accepted when registering an account.
// Registering an email that already exists updates the non-empty fields.
type NewAccount struct {
	Email         string            `json:"account"`
	Token         string            `json:"token,omitempty"`
	AccessToken   string            `json:"access_token,omitempty"`
	Auth          string            `json:"auth,omitempty"`
	AccountType   string            `json:"account_type,omitempty"`
	SilentCookies map[string]string `json:"cookies,omitempty"`
}

// Patch updates selected account fields. Nil fields are left unchanged.
type Patch struct {
	Email          *string           `json:"account,omitempty"`
	Token          *string           `json:"token,omitempty"`
	AccessToken    *string           `json:"access_token,omitempty"`
	Auth           *string           `json:"auth,omitempty"`
	AccountType    *string           `json:"account_type,omitempty"`
	SilentCookies  map[string]string `json:"silent_cookies,omitempty"`
	CookiesExpires *time.Time        `json:"cookies_expires,omitzero"`
	TokenExpires   *time.Time        `json:"token_expires,omitzero"`
	Enabled        *bool             `json:"enable,omitempty"`
	Count          *int64            `json:"count,omitempty"`
}

// Credentials is the access material minted by a silent refresh.
type Credentials struct {
	SilentCookies  map[string]string
	CookiesExpires time.Time
	AccessToken    string
	TokenExpires   time.Time
}

// Identity is the sign-in derived part of an account.
type Identity struct {
	Token       string
	AccountType string
	Auth        string
}

// ListOptions controls account listing.
type ListOptions struct {
	Skip  int
	Limit int

	// Search filters by email substring.
	Search string

	// SortBy is a column name; unknown columns fall back to id.
	SortBy   string
	SortDesc bool
}
