package sqlite

// Schema is the complete SQLite schema for the Loreline state store.
// Suite definitions and value blobs are stored as JSON; the shape is
// format-stable for compatibility across versions.
const Schema = `
CREATE TABLE IF NOT EXISTS variables (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	tag        TEXT NOT NULL UNIQUE,
	mode       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS variable_values (
	variable_id TEXT NOT NULL,
	chat_id     TEXT NOT NULL,
	mode        TEXT NOT NULL,
	value       TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (variable_id, chat_id)
);

CREATE INDEX IF NOT EXISTS idx_variable_values_chat ON variable_values(chat_id);

CREATE TABLE IF NOT EXISTS suites (
	id         TEXT PRIMARY KEY,
	definition TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS message_counters (
	suite_id TEXT NOT NULL,
	chat_id  TEXT NOT NULL,
	count    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (suite_id, chat_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
