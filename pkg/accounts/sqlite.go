package accounts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver (cgo)
	_ "modernc.org/sqlite"          // sqlite driver (pure Go)
)

// cookieLifetime is how long a freshly issued cookie set is trusted.
const cookieLifetime = 30 * 24 * time.Hour

// SQLiteConfig contains configuration for the SQLite account store.
type SQLiteConfig struct {
	// Driver selects the database/sql driver: "sqlite" (modernc, pure Go)
	// or "sqlite3" (mattn, cgo).
	// Default: "sqlite"
	Driver string

	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// DisableWAL turns off write-ahead logging.
	DisableWAL bool
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, NewStorageError(cfg.Driver, "mkdir", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn(cfg))
	if err != nil {
		return nil, NewStorageError(cfg.Driver, "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, NewStorageError(cfg.Driver, "create_schema", err)
	}

	logger := slog.Default().With("component", "accounts.sqlite")
	logger.Info("account store initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", !cfg.DisableWAL,
	)

	return &SQLiteStore{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
		now:    time.Now,
	}, nil
}

// dsn builds the driver specific connection string.
func dsn(cfg SQLiteConfig) string {
	journal := "WAL"
	if cfg.DisableWAL {
		journal = "DELETE"
	}
	ms := cfg.BusyTimeout.Milliseconds()

	if cfg.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=%s&_synchronous=NORMAL", cfg.Path, ms, journal)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(NORMAL)", cfg.Path, ms, journal)
}

func (s *SQLiteStore) storageErr(op string, err error) error {
	return NewStorageError(s.driver, op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a                                             Account
		email, token, cookies, auth, access, acctType sql.NullString
		cookiesExp, tokenExp, created, updated, delAt sql.NullInt64
		enabled                                       int
	)

	err := row.Scan(&a.ID, &email, &token, &cookies, &cookiesExp, &auth, &access,
		&tokenExp, &created, &updated, &enabled, &delAt, &a.Count, &acctType)
	if err != nil {
		return nil, err
	}

	a.Email = email.String
	a.Token = token.String
	a.Auth = auth.String
	a.AccessToken = access.String
	a.AccountType = acctType.String
	a.Enabled = enabled == 1
	a.CookiesExpires = fromUnix(cookiesExp)
	a.TokenExpires = fromUnix(tokenExp)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	if delAt.Valid {
		t := time.Unix(delAt.Int64, 0)
		a.DeletedAt = &t
	}
	if cookies.String != "" {
		if err := json.Unmarshal([]byte(cookies.String), &a.SilentCookies); err != nil {
			a.SilentCookies = nil
		}
	}

	return &a, nil
}

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0)
}

func toUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func encodeCookies(c map[string]string) (any, error) {
	if len(c) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Get returns the account with id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM tokens WHERE id = ? AND deleted_at IS NULL`, id)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageErr("get", err)
	}
	return a, nil
}

// GetByEmail returns the account registered under email.
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM tokens WHERE account = ? AND deleted_at IS NULL ORDER BY id LIMIT 1`, email)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.storageErr("get_by_email", err)
	}
	return a, nil
}

// List returns a page of accounts.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Account, int, error) {
	where := "deleted_at IS NULL"
	var args []any
	if opts.Search != "" {
		where += " AND account LIKE ?"
		args = append(args, "%"+opts.Search+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, s.storageErr("count", err)
	}

	order := "id"
	if sortColumns[opts.SortBy] {
		order = opts.SortBy
	}
	if opts.SortDesc {
		order += " DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM tokens WHERE %s ORDER BY %s LIMIT ? OFFSET ?`, selectColumns, where, order)
	accounts, err := s.query(ctx, "list", query, append(args, limit, opts.Skip)...)
	if err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// ListSelectable returns enabled, non-deleted accounts of tier.
func (s *SQLiteStore) ListSelectable(ctx context.Context, tier Tier) ([]*Account, error) {
	query := `SELECT ` + selectColumns + ` FROM tokens WHERE enable = 1 AND deleted_at IS NULL`
	var args []any
	if tier == TierElevated {
		query += ` AND account_type = ?`
		args = append(args, AccountTypePaid)
	}
	query += ` ORDER BY count ASC, token_expires DESC`

	return s.query(ctx, "list_selectable", query, args...)
}

// ListRefreshable returns every non-deleted account.
func (s *SQLiteStore) ListRefreshable(ctx context.Context) ([]*Account, error) {
	return s.query(ctx, "list_refreshable",
		`SELECT `+selectColumns+` FROM tokens WHERE deleted_at IS NULL ORDER BY id`)
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.storageErr(op, err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, s.storageErr(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr(op, err)
	}
	return out, nil
}

// Create registers an account. When a non-deleted account with the same
// email exists, its non-empty fields are updated instead, and a new token
// re-enables it.
func (s *SQLiteStore) Create(ctx context.Context, in NewAccount) (*Account, error) {
	now := s.now()

	if in.Email != "" {
		existing, err := s.GetByEmail(ctx, in.Email)
		if err == nil {
			patch := Patch{}
			if in.Token != "" {
				patch.Token = &in.Token
				enabled := true
				patch.Enabled = &enabled
			}
			if in.AccessToken != "" {
				patch.AccessToken = &in.AccessToken
			}
			if in.Auth != "" {
				patch.Auth = &in.Auth
			}
			if in.AccountType != "" {
				patch.AccountType = &in.AccountType
			}
			if in.SilentCookies != nil {
				patch.SilentCookies = in.SilentCookies
				exp := now.Add(cookieLifetime)
				patch.CookiesExpires = &exp
			}
			return s.Update(ctx, existing.ID, patch)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	cookies, err := encodeCookies(in.SilentCookies)
	if err != nil {
		return nil, s.storageErr("create", err)
	}
	var cookiesExp any
	if in.SilentCookies != nil {
		cookiesExp = now.Add(cookieLifetime).Unix()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (account, token, silent_cookies, cookies_expires, auth, access_token,
			created_at, updated_at, enable, count, account_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		nullString(in.Email), nullString(in.Token), cookies, cookiesExp, nullString(in.Auth),
		nullString(in.AccessToken), now.Unix(), now.Unix(), boolInt(in.Token != ""), nullString(in.AccountType),
	)
	if err != nil {
		return nil, s.storageErr("create", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, s.storageErr("create", err)
	}
	return s.Get(ctx, id)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Update applies patch to the account with id.
func (s *SQLiteStore) Update(ctx context.Context, id int64, patch Patch) (*Account, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if patch.Email != nil {
		set("account", *patch.Email)
	}
	if patch.Token != nil {
		set("token", *patch.Token)
	}
	if patch.AccessToken != nil {
		set("access_token", *patch.AccessToken)
	}
	if patch.Auth != nil {
		set("auth", *patch.Auth)
	}
	if patch.AccountType != nil {
		set("account_type", *patch.AccountType)
	}
	if patch.SilentCookies != nil {
		cookies, err := encodeCookies(patch.SilentCookies)
		if err != nil {
			return nil, s.storageErr("update", err)
		}
		set("silent_cookies", cookies)
	}
	if patch.CookiesExpires != nil {
		set("cookies_expires", toUnix(*patch.CookiesExpires))
	}
	if patch.TokenExpires != nil {
		set("token_expires", toUnix(*patch.TokenExpires))
	}
	if patch.Enabled != nil {
		set("enable", boolInt(*patch.Enabled))
	}
	if patch.Count != nil {
		set("count", *patch.Count)
	}
	set("updated_at", s.now().Unix())

	query := `UPDATE tokens SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND deleted_at IS NULL`
	if err := s.exec(ctx, "update", query, append(args, id)...); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// exec runs a single-row UPDATE and maps "no row affected" to ErrNotFound.
func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.storageErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.storageErr(op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps the usage counter with a single UPDATE.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE tokens SET count = count + 1, updated_at = ? WHERE id = ? AND deleted_at IS NULL RETURNING count`,
		s.now().Unix(), id,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, s.storageErr("increment", err)
	}
	return count, nil
}

// UpdateCredentials stores refreshed access material and enables the account.
func (s *SQLiteStore) UpdateCredentials(ctx context.Context, id int64, creds Credentials) error {
	cookies, err := encodeCookies(creds.SilentCookies)
	if err != nil {
		return s.storageErr("update_credentials", err)
	}
	return s.exec(ctx, "update_credentials", `
		UPDATE tokens SET silent_cookies = ?, cookies_expires = ?, access_token = ?,
			token_expires = ?, enable = 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		cookies, toUnix(creds.CookiesExpires), creds.AccessToken, toUnix(creds.TokenExpires), s.now().Unix(), id,
	)
}

// UpdateIdentity stores sign-in derived fields.
func (s *SQLiteStore) UpdateIdentity(ctx context.Context, id int64, ident Identity) error {
	return s.exec(ctx, "update_identity", `
		UPDATE tokens SET token = COALESCE(?, token), account_type = COALESCE(?, account_type),
			auth = COALESCE(?, auth), updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		nullString(ident.Token), nullString(ident.AccountType), nullString(ident.Auth), s.now().Unix(), id,
	)
}

// SetEnabled flips the enabled flag.
func (s *SQLiteStore) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.exec(ctx, "set_enabled",
		`UPDATE tokens SET enable = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		boolInt(enabled), s.now().Unix(), id,
	)
}

// SoftDelete marks the account deleted.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id int64) error {
	now := s.now().Unix()
	return s.exec(ctx, "soft_delete",
		`UPDATE tokens SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
}

// ResetCounts zeroes the counters of enabled accounts.
func (s *SQLiteStore) ResetCounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tokens SET count = 0, updated_at = ? WHERE enable = 1 AND deleted_at IS NULL AND count > 0`,
		s.now().Unix(),
	)
	if err != nil {
		return 0, s.storageErr("reset_counts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.storageErr("reset_counts", err)
	}
	return n, nil
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.storageErr("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
