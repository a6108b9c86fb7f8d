// Package schema owns the embedded store's table definitions and the
// version-gated migration ladder that brings an older database up to the
// current shape on open.
package schema

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// CurrentVersion is the schema version this build expects.
const CurrentVersion = 1

// OpenDB opens the database file in WAL mode with a busy-timeout, enables
// foreign keys, and brings the schema up to CurrentVersion.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// GetSchemaVersion returns the schema version recorded in the database, or
// 0 if the version table does not yet exist.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("check schema_version table: %w", err)
	}

	var version int
	if err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the database up to CurrentVersion, initializing it from
// scratch if empty.
func Migrate(db *sql.DB) error {
	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	if current == 0 {
		return initDB(db)
	}
	if current == CurrentVersion {
		return nil
	}
	return runMigrations(db, current, CurrentVersion)
}

// initDB creates every table and index at CurrentVersion inside a single
// transaction and assigns db_id.
func initDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`CREATE TABLE schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	if err := createTables(tx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := createIndexes(tx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	return tx.Commit()
}

func createTables(tx *sql.Tx) error {
	tables := []string{
		`CREATE TABLE meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE channels (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at  TEXT NOT NULL
		)`,

		`CREATE TABLE topics (
			id         TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL REFERENCES channels(id),
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE messages (
			id          TEXT PRIMARY KEY,
			topic_id    TEXT NOT NULL REFERENCES topics(id),
			channel_id  TEXT NOT NULL REFERENCES channels(id),
			sender      TEXT NOT NULL,
			content_raw TEXT NOT NULL,
			version     INTEGER NOT NULL DEFAULT 1,
			created_at  TEXT NOT NULL,
			edited_at   TEXT,
			deleted_at  TEXT,
			deleted_by  TEXT
		)`,

		`CREATE TABLE attachments (
			id                TEXT PRIMARY KEY,
			topic_id          TEXT NOT NULL REFERENCES topics(id),
			kind              TEXT NOT NULL,
			key               TEXT,
			value_json        TEXT NOT NULL,
			dedupe_key        TEXT NOT NULL,
			source_message_id TEXT REFERENCES messages(id),
			created_at        TEXT NOT NULL,
			UNIQUE(topic_id, kind, key, dedupe_key)
		)`,

		`CREATE TABLE enrichments (
			id          TEXT PRIMARY KEY,
			message_id  TEXT NOT NULL REFERENCES messages(id),
			kind        TEXT NOT NULL,
			span_start  INTEGER NOT NULL,
			span_end    INTEGER NOT NULL,
			data_json   TEXT NOT NULL,
			plugin_name TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,

		`CREATE TABLE events (
			event_id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts              TEXT NOT NULL,
			name            TEXT NOT NULL,
			scope_channel_id TEXT,
			scope_topic_id   TEXT,
			scope_topic_id2  TEXT,
			entity_type     TEXT,
			entity_id       TEXT,
			data_json       TEXT NOT NULL
		)`,
	}

	for _, stmt := range tables {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func createIndexes(tx *sql.Tx) error {
	indexes := []string{
		"CREATE INDEX idx_topics_channel ON topics(channel_id)",
		"CREATE INDEX idx_messages_topic ON messages(topic_id, id)",
		"CREATE INDEX idx_messages_channel ON messages(channel_id)",
		"CREATE INDEX idx_attachments_topic ON attachments(topic_id, kind)",
		"CREATE INDEX idx_enrichments_message ON enrichments(message_id)",
		"CREATE INDEX idx_events_scope_channel ON events(scope_channel_id)",
		"CREATE INDEX idx_events_scope_topic ON events(scope_topic_id)",
		"CREATE INDEX idx_events_scope_topic2 ON events(scope_topic_id2)",
	}
	for _, stmt := range indexes {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// runMigrations applies version-gated ALTER TABLE / CREATE TABLE steps from
// startVersion to endVersion inside a single transaction. There is currently
// only one shipped version; this ladder exists so future schema changes
// follow the same additive, never-destructive pattern the events table
// itself relies on (see the migrations design note in SPEC_FULL.md).
func runMigrations(db *sql.DB, startVersion, endVersion int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// No migrations beyond v1 yet. Future steps are added here as
	// `if startVersion < N && endVersion >= N { ... }` blocks.
	_ = startVersion

	if _, err := tx.Exec("UPDATE schema_version SET version = ?", endVersion); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return tx.Commit()
}

// HasSearchIndex reports whether the opt-in messages_fts virtual table has
// been created in db.
func HasSearchIndex(db *sql.DB) (bool, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='messages_fts'").Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check messages_fts table: %w", err)
	}
	return true, nil
}

// EnsureSearchIndex creates the opt-in FTS5 virtual table over
// messages.content_raw and the triggers that keep it in sync with the
// messages table, if it doesn't already exist. This is a separate,
// optional migration from the CurrentVersion ladder: a database opened
// without HEARTH_SEARCH_ENABLED never gets this table, and search.Search
// reports ErrSearchUnavailable rather than failing startup.
func EnsureSearchIndex(db *sql.DB) error {
	has, err := HasSearchIndex(db)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE VIRTUAL TABLE messages_fts USING fts5(
			content_raw,
			content='messages',
			content_rowid='rowid'
		)`,
		`INSERT INTO messages_fts(rowid, content_raw) SELECT rowid, content_raw FROM messages`,
		`CREATE TRIGGER messages_fts_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content_raw) VALUES (new.rowid, new.content_raw);
		END`,
		`CREATE TRIGGER messages_fts_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content_raw) VALUES('delete', old.rowid, old.content_raw);
		END`,
		`CREATE TRIGGER messages_fts_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content_raw) VALUES('delete', old.rowid, old.content_raw);
			INSERT INTO messages_fts(rowid, content_raw) VALUES (new.rowid, new.content_raw);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("build search index: %w", err)
		}
	}
	return tx.Commit()
}

// EnsureDBID returns the persisted db_id, assigning one on first call.
func EnsureDBID(db *sql.DB, generate func() string) (string, error) {
	var id string
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'db_id'").Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("query db_id: %w", err)
	}

	id = generate()
	if _, err := db.Exec("INSERT INTO meta (key, value) VALUES ('db_id', ?)", id); err != nil {
		return "", fmt.Errorf("insert db_id: %w", err)
	}
	return id, nil
}
