package database

import "database/sql"

// Schema is the logical layout of the authorization store. The
// (provider_id, oauth_user_id) uniqueness constraint is what makes the
// connection upsert race-safe; the (user_id, provider_id) index serves
// the authorization lookup path.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	last_login_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	label TEXT NOT NULL DEFAULT '',
	prefix TEXT UNIQUE NOT NULL,
	key_hash TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	last_used_at INTEGER,
	created_at INTEGER NOT NULL,
	revoked_at INTEGER
);

CREATE INDEX IF NOT EXISTS ix_api_keys_user ON api_keys(user_id);

CREATE TABLE IF NOT EXISTS oauth_providers (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	display_name TEXT NOT NULL,
	auth_url TEXT NOT NULL,
	token_url TEXT NOT NULL,
	user_info_url TEXT NOT NULL,
	scopes TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS oauth_states (
	value TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL REFERENCES oauth_providers(id),
	user_id TEXT REFERENCES users(id),
	redirect_uri TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	consumed_at INTEGER
);

CREATE TABLE IF NOT EXISTS user_oauth_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	provider_id TEXT NOT NULL REFERENCES oauth_providers(id),
	oauth_user_id TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	access_token_enc TEXT NOT NULL DEFAULT '',
	refresh_token_enc TEXT NOT NULL DEFAULT '',
	token_expires_at INTEGER NOT NULL DEFAULT 0,
	is_primary INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(provider_id, oauth_user_id)
);

CREATE INDEX IF NOT EXISTS ix_accounts_user_provider ON user_oauth_accounts(user_id, provider_id);

CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL DEFAULT '',
	ip_address TEXT NOT NULL DEFAULT '',
	trace_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
