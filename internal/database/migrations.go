package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "posts, authors and engagement history",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS authors (
    id TEXT PRIMARY KEY,
    handle TEXT NOT NULL DEFAULT '',
    followed INTEGER NOT NULL DEFAULT 0,
    blocked INTEGER NOT NULL DEFAULT 0,
    last_interaction_at TEXT,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    author_id TEXT NOT NULL REFERENCES authors(id),
    created_at TEXT NOT NULL,
    topic TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    link TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    has_active_discussion INTEGER NOT NULL DEFAULT 0,
    reply_count INTEGER NOT NULL DEFAULT 0,
    collected_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at);

CREATE TABLE IF NOT EXISTS engagements (
    id TEXT PRIMARY KEY,
    post_id TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL,
    kind TEXT NOT NULL,
    author_followed INTEGER NOT NULL DEFAULT 0,
    recent_interaction INTEGER NOT NULL DEFAULT 0,
    active_discussion INTEGER NOT NULL DEFAULT 0,
    mix TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_engagements_occurred_at ON engagements(occurred_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "viewer configuration",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS viewer_config (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    config_json TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "suggestion log",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS suggestions (
    id TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    delta_json TEXT NOT NULL,
    confidence REAL NOT NULL,
    rationale TEXT NOT NULL DEFAULT '',
    generated_at TEXT NOT NULL,
    outcome TEXT,
    resolved_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_suggestions_outcome ON suggestions(outcome, fingerprint);
`)
			return err
		},
	},
	{
		Version:     4,
		Description: "track body fetch attempts",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`ALTER TABLE posts ADD COLUMN body_fetched INTEGER NOT NULL DEFAULT 0`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
