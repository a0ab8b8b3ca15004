package accounts

// Schema creates the accounts table. Timestamps are unix seconds; NULL means
// unset.
const Schema = `
CREATE TABLE IF NOT EXISTS tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account TEXT,
    token TEXT,
    silent_cookies TEXT,
    cookies_expires INTEGER,
    auth TEXT,
    access_token TEXT,
    token_expires INTEGER,
    created_at INTEGER,
    updated_at INTEGER,
    enable INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER,
    count INTEGER NOT NULL DEFAULT 0,
    account_type TEXT
);

CREATE INDEX IF NOT EXISTS idx_tokens_account ON tokens(account);
CREATE INDEX IF NOT EXISTS idx_tokens_selectable ON tokens(enable, deleted_at, count);
`

const selectColumns = `id, account, token, silent_cookies, cookies_expires, auth, access_token,
	token_expires, created_at, updated_at, enable, deleted_at, count, account_type`

// sortColumns lists the columns accepted by ListOptions.SortBy.
var sortColumns = map[string]bool{
	"id":              true,
	"account":         true,
	"count":           true,
	"enable":          true,
	"account_type":    true,
	"token_expires":   true,
	"cookies_expires": true,
	"created_at":      true,
	"updated_at":      true,
}
