package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_progress (
	account_email    TEXT NOT NULL,
	scanner_kind     TEXT NOT NULL,
	last_seq         INTEGER NOT NULL DEFAULT 0,
	last_token       TEXT NOT NULL DEFAULT '',
	total_messages   INTEGER NOT NULL DEFAULT 0,
	contacts_found   INTEGER NOT NULL DEFAULT 0,
	chunks_completed INTEGER NOT NULL DEFAULT 0,
	is_complete      INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_email, scanner_kind)
);

CREATE TABLE IF NOT EXISTS contact_snapshots (
	account_email        TEXT PRIMARY KEY,
	senders              TEXT NOT NULL DEFAULT '[]',
	recipients           TEXT NOT NULL DEFAULT '[]',
	merged               TEXT NOT NULL DEFAULT '[]',
	message_sample_count INTEGER NOT NULL DEFAULT 0,
	updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS alt_credentials (
	account_email   TEXT PRIMARY KEY,
	enabled         INTEGER NOT NULL DEFAULT 0,
	setup_completed INTEGER NOT NULL DEFAULT 0,
	mailbox         TEXT NOT NULL DEFAULT '',
	max_messages    INTEGER NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
