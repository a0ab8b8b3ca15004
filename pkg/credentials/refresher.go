package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hzcy/chatbetter2api/pkg/accounts"
	"github.com/hzcy/chatbetter2api/pkg/telemetry/metrics"
	"github.com/hzcy/chatbetter2api/pkg/upstream"
)

// ErrRefreshFailed is returned when an account's credentials could not be
// renewed. The account has been disabled.
var ErrRefreshFailed = errors.New("credential refresh failed")

const (
	// CookieLifetime is how long a refreshed cookie set is trusted.
	CookieLifetime = 30 * 24 * time.Hour

	// TokenLifetime is how long a refreshed access token is considered usable.
	TokenLifetime = 15 * time.Minute
)

var requiredCookiePrefixes = []string{"fe_device", "fe_refresh"}

// AuthClient is the subset of the upstream client a Refresher needs.
type AuthClient interface {
	SilentRefresh(ctx context.Context, cookies map[string]string) (*upstream.SilentGrant, error)
	SignIn(ctx context.Context, accessToken string) (*upstream.Identity, error)
	AuthInfo(ctx context.Context, auth upstream.Auth) (*upstream.Identity, error)
}

// Refresher renews account credentials and keeps the store and the cache
// mirror in step.
type Refresher struct {
	client  AuthClient
	manager *accounts.Manager
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(client AuthClient, manager *accounts.Manager, collector *metrics.Collector) *Refresher {
	return &Refresher{
		client:  client,
		manager: manager,
		metrics: collector,
		logger:  slog.Default().With("component", "credentials"),
		now:     time.Now,
	}
}

// Refresh renews acct's access token and updates acct in place. On failure
// the account is disabled, persisted and evicted from the cache, and the
// returned error wraps ErrRefreshFailed.
func (r *Refresher) Refresh(ctx context.Context, acct *accounts.Account) error {
	grant, err := r.exchange(ctx, acct)
	if err != nil {
		r.metrics.RecordCredentialRefresh("failure")
		r.disable(ctx, acct, err)
		return fmt.Errorf("%w: account %d: %w", ErrRefreshFailed, acct.ID, err)
	}

	now := r.now()
	creds := accounts.Credentials{
		SilentCookies:  grant.Cookies,
		CookiesExpires: now.Add(CookieLifetime),
		AccessToken:    grant.AccessToken,
		TokenExpires:   now.Add(TokenLifetime),
	}
	store := r.manager.Store()
	if err := store.UpdateCredentials(ctx, acct.ID, creds); err != nil {
		r.metrics.RecordCredentialRefresh("store_error")
		return fmt.Errorf("failed to store refreshed credentials of account %d: %w", acct.ID, err)
	}

	acct.SilentCookies = creds.SilentCookies
	acct.CookiesExpires = creds.CookiesExpires
	acct.AccessToken = creds.AccessToken
	acct.TokenExpires = creds.TokenExpires
	acct.Enabled = true

	r.refreshIdentity(ctx, acct)

	if fresh, err := store.Get(ctx, acct.ID); err == nil {
		*acct = *fresh
	} else {
		r.logger.WarnContext(ctx, "failed to reload refreshed account", "account_id", acct.ID, "error", err)
	}
	r.manager.Sync(ctx, acct)

	r.metrics.RecordCredentialRefresh("success")
	r.logger.InfoContext(ctx, "credentials refreshed",
		"account_id", acct.ID,
		"account", acct.Email,
		"tier", acct.Tier().String(),
	)
	return nil
}

// RefreshByID loads the account and refreshes it.
func (r *Refresher) RefreshByID(ctx context.Context, id int64) (*accounts.Account, error) {
	acct, err := r.manager.Store().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx, acct); err != nil {
		return acct, err
	}
	return acct, nil
}

// exchange performs the silent refresh and validates the grant.
func (r *Refresher) exchange(ctx context.Context, acct *accounts.Account) (*upstream.SilentGrant, error) {
	if len(acct.SilentCookies) == 0 {
		return nil, errors.New("account has no session cookies")
	}

	grant, err := r.client.SilentRefresh(ctx, acct.SilentCookies)
	if err != nil {
		return nil, err
	}

	for _, prefix := range requiredCookiePrefixes {
		if !hasCookiePrefix(grant.Cookies, prefix) {
			return nil, fmt.Errorf("refresh response lacks %s cookies", prefix)
		}
	}

	if exp, ok := tokenExpiry(grant.AccessToken); ok && !exp.After(r.now()) {
		return nil, fmt.Errorf("refresh returned an access token that expired at %s", exp.Format(time.RFC3339))
	}
	return grant, nil
}

// refreshIdentity re-derives the primary token and account type. Failures
// are logged only.
func (r *Refresher) refreshIdentity(ctx context.Context, acct *accounts.Account) {
	token := acct.Token
	if token == "" {
		signed, err := r.client.SignIn(ctx, acct.AccessToken)
		if err != nil || signed.Token == "" {
			r.metrics.RecordCredentialRefresh("identity_failure")
			r.logger.WarnContext(ctx, "sign-in with access token failed", "account_id", acct.ID, "error", err)
			return
		}
		token = signed.Token
	}

	info, err := r.client.AuthInfo(ctx, upstream.Auth{Token: token, AccessToken: acct.AccessToken})
	if err != nil {
		r.metrics.RecordCredentialRefresh("identity_failure")
		r.logger.WarnContext(ctx, "failed to fetch account info", "account_id", acct.ID, "error", err)
		// Keep a token obtained from sign-in even without the account info.
		if token != acct.Token {
			r.storeIdentity(ctx, acct, accounts.Identity{Token: token})
		}
		return
	}

	r.storeIdentity(ctx, acct, accounts.Identity{
		Token:       token,
		AccountType: info.AccountType,
		Auth:        string(info.Raw),
	})
}

func (r *Refresher) storeIdentity(ctx context.Context, acct *accounts.Account, ident accounts.Identity) {
	if err := r.manager.Store().UpdateIdentity(ctx, acct.ID, ident); err != nil {
		r.logger.WarnContext(ctx, "failed to store account identity", "account_id", acct.ID, "error", err)
	}
}

// disable marks acct unusable after a failed refresh.
func (r *Refresher) disable(ctx context.Context, acct *accounts.Account, cause error) {
	acct.Enabled = false
	if err := r.manager.Store().SetEnabled(ctx, acct.ID, false); err != nil && !errors.Is(err, accounts.ErrNotFound) {
		r.logger.ErrorContext(ctx, "failed to disable account", "account_id", acct.ID, "error", err)
	}
	r.manager.Sync(ctx, acct)

	r.logger.WarnContext(ctx, "credential refresh failed, account disabled",
		"account_id", acct.ID,
		"account", acct.Email,
		"error", cause,
	)
}

func hasCookiePrefix(cookies map[string]string, prefix string) bool {
	for name := range cookies {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	switch exp := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(exp), 0), true
	default:
		return time.Time{}, false
	}
}
