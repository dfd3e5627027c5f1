package store

// Schema is applied by Open. Timestamps are unix milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key      TEXT PRIMARY KEY,
	data     BLOB NOT NULL,
	saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_sets (
	name       TEXT PRIMARY KEY,
	yaml       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	rule       TEXT NOT NULL DEFAULT '',
	element_id TEXT NOT NULL DEFAULT '',
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log(created_at);
CREATE INDEX IF NOT EXISTS idx_event_log_rule ON event_log(rule, created_at);
`
