package storage

// sqliteSchema mirrors the postgres migrations in internal/migrations/sql.
// Timestamps are stored as unix seconds so the same scan code serves both
// dialects.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_type TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	api_key       TEXT NOT NULL,
	"usage"       INTEGER NOT NULL DEFAULT 0,
	"limit"       INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens  INTEGER NOT NULL DEFAULT 0,
	last_used_at  INTEGER,
	enabled       INTEGER NOT NULL DEFAULT 1,
	created_by    INTEGER,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_accounts_provider ON accounts (provider_type, enabled);

CREATE TABLE IF NOT EXISTS channels (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	models           TEXT NOT NULL DEFAULT '[]',
	model_mapping    TEXT NOT NULL DEFAULT '',
	priority         INTEGER NOT NULL DEFAULT 0,
	weight           INTEGER NOT NULL DEFAULT 1,
	enabled          INTEGER NOT NULL DEFAULT 1,
	total_requests   INTEGER NOT NULL DEFAULT 0,
	failed_requests  INTEGER NOT NULL DEFAULT 0,
	total_latency_ms INTEGER NOT NULL DEFAULT 0,
	updated_at       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	email          TEXT UNIQUE,
	password_hash  TEXT NOT NULL DEFAULT '',
	api_key        TEXT NOT NULL UNIQUE,
	name           TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT 'user',
	email_verified INTEGER NOT NULL DEFAULT 0,
	quota          INTEGER NOT NULL DEFAULT -1,
	used_quota     INTEGER NOT NULL DEFAULT 0,
	input_tokens   INTEGER NOT NULL DEFAULT 0,
	output_tokens  INTEGER NOT NULL DEFAULT 0,
	total_tokens   INTEGER NOT NULL DEFAULT 0,
	enabled        INTEGER NOT NULL DEFAULT 1,
	last_login_at  INTEGER,
	created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tokens (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id              INTEGER NOT NULL,
	"key"                TEXT NOT NULL UNIQUE,
	name                 TEXT NOT NULL DEFAULT '',
	status               INTEGER NOT NULL DEFAULT 1,
	unlimited_quota      INTEGER NOT NULL DEFAULT 0,
	remain_quota         INTEGER NOT NULL DEFAULT 0,
	used_quota           INTEGER NOT NULL DEFAULT 0,
	created_time         INTEGER NOT NULL DEFAULT 0,
	accessed_time        INTEGER NOT NULL DEFAULT 0,
	expired_time         INTEGER NOT NULL DEFAULT -1,
	model_limits_enabled INTEGER NOT NULL DEFAULT 0,
	model_limits         TEXT NOT NULL DEFAULT '',
	ip_whitelist         TEXT NOT NULL DEFAULT '',
	"group"              TEXT NOT NULL DEFAULT '',
	cross_group_retry    INTEGER NOT NULL DEFAULT 0,
	rpm_limit            INTEGER NOT NULL DEFAULT 0,
	tpm_limit            INTEGER NOT NULL DEFAULT 0,
	input_tokens         INTEGER NOT NULL DEFAULT 0,
	output_tokens        INTEGER NOT NULL DEFAULT 0,
	total_tokens         INTEGER NOT NULL DEFAULT 0,
	request_count        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens (user_id);

CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	token      TEXT NOT NULL UNIQUE,
	expires_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS invite_codes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT NOT NULL UNIQUE,
	created_by INTEGER NOT NULL,
	used_by    INTEGER,
	used_at    INTEGER,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS request_logs (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id               INTEGER NOT NULL DEFAULT 0,
	channel_id            INTEGER NOT NULL DEFAULT 0,
	provider_type         TEXT NOT NULL DEFAULT '',
	model                 TEXT NOT NULL DEFAULT '',
	input_tokens          INTEGER NOT NULL DEFAULT 0,
	output_tokens         INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	duration_ms           INTEGER NOT NULL DEFAULT 0,
	status                INTEGER NOT NULL DEFAULT 0,
	error                 TEXT NOT NULL DEFAULT '',
	context_compressed    INTEGER NOT NULL DEFAULT 0,
	original_tokens       INTEGER NOT NULL DEFAULT 0,
	compressed_tokens     INTEGER NOT NULL DEFAULT 0,
	created_at            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_user ON request_logs (user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs (created_at);
CREATE INDEX IF NOT EXISTS idx_logs_model ON request_logs (model);

CREATE TABLE IF NOT EXISTS cache_config (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	prompt_cache_enabled  INTEGER NOT NULL DEFAULT 1,
	compression_enabled   INTEGER NOT NULL DEFAULT 0,
	compression_threshold INTEGER NOT NULL DEFAULT 8000,
	compression_target    INTEGER NOT NULL DEFAULT 4000,
	compression_strategy  TEXT NOT NULL DEFAULT 'sliding_window',
	updated_at            INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS risk_control_config (
	id                      INTEGER PRIMARY KEY CHECK (id = 1),
	proxy_pool_enabled      INTEGER NOT NULL DEFAULT 0,
	proxy_pool_strategy     TEXT NOT NULL DEFAULT 'sticky',
	rate_limit_enabled      INTEGER NOT NULL DEFAULT 0,
	rate_limit_global_rpm   INTEGER NOT NULL DEFAULT 1000,
	rate_limit_global_tpm   INTEGER NOT NULL DEFAULT 1000000,
	health_monitor_enabled  INTEGER NOT NULL DEFAULT 0,
	health_monitor_interval INTEGER NOT NULL DEFAULT 60,
	fingerprint_enabled     INTEGER NOT NULL DEFAULT 0,
	updated_at              INTEGER NOT NULL DEFAULT 0
);
`
