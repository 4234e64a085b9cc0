// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C
// compiler installed and cross-compilation becomes painful. modernc.org/sqlite
// is a pure Go translation of the SQLite C code, so no C compiler is needed
// everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides the repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/bookclub.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	// The pragmas ride on the DSN so that EVERY connection database/sql
	// opens gets them, not just the one that would run a PRAGMA statement.
	//
	//   - journal_mode=WAL lets leaderboard reads run while an award commits.
	//   - busy_timeout makes a writer that loses the write-lock race queue
	//     for up to 5s instead of failing with SQLITE_BUSY.
	//   - _txlock=immediate starts transactions as writers. The award
	//     transaction reads (the daily-bonus count) before it writes; under
	//     a deferred transaction that read pins a snapshot and the later
	//     lock upgrade fails immediately, with no timeout applied.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(1)", dbPath)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// A :memory: database exists per connection, so the pool must stay at
	// a single connection or each pooled conn sees its own empty database.
	if strings.Contains(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	// Ping forces an immediate connection so a bad path or permissions issue
	// surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Timestamps are stored as INTEGER milliseconds since the Unix epoch in UTC.
// Millis compare correctly as integers, which the calendar-day window checks
// and the weekly reset depend on; DATETIME strings do not roundtrip reliably
// across drivers.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS keeps this idempotent, safe to run on every
// start against new and existing databases alike.
func (db *DB) migrate() error {
	// Per-guild bot configuration.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id               TEXT PRIMARY KEY,
			reminder_channel_id    TEXT NOT NULL DEFAULT '',
			leaderboard_channel_id TEXT NOT NULL DEFAULT '',
			welcome_channel_id     TEXT NOT NULL DEFAULT '',
			moderator_role_id      TEXT NOT NULL DEFAULT '',
			created_at             INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating guild_settings table: %w", err)
	}

	// Reading selections. Old books stay with is_active = 0.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS current_books (
			id              TEXT PRIMARY KEY,
			guild_id        TEXT NOT NULL,
			title           TEXT NOT NULL,
			author          TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			benefits        TEXT NOT NULL DEFAULT '',
			current_chapter TEXT NOT NULL DEFAULT '',
			start_date      INTEGER NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_current_books_guild_active
			ON current_books(guild_id, is_active);
	`)
	if err != nil {
		return fmt.Errorf("creating current_books table: %w", err)
	}

	// Per-user engagement counters. The AUTOINCREMENT id doubles as the
	// stable tie-break for leaderboards: equal points rank by insertion
	// order of the record.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_engagement (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id        TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			username        TEXT NOT NULL DEFAULT '',
			points          INTEGER NOT NULL DEFAULT 0,
			weekly_points   INTEGER NOT NULL DEFAULT 0,
			total_takeaways INTEGER NOT NULL DEFAULT 0,
			last_activity   INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			UNIQUE (guild_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_user_engagement_weekly
			ON user_engagement(guild_id, weekly_points);
	`)
	if err != nil {
		return fmt.Errorf("creating user_engagement table: %w", err)
	}

	// Append-only log of scored messages and manual adjustments.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS takeaways (
			id             TEXT PRIMARY KEY,
			guild_id       TEXT NOT NULL,
			user_id        TEXT NOT NULL,
			message_id     TEXT NOT NULL,
			channel_id     TEXT NOT NULL,
			content        TEXT NOT NULL DEFAULT '',
			points_awarded INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_takeaways_guild_user_day
			ON takeaways(guild_id, user_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating takeaways table: %w", err)
	}

	// Archived weekly leaderboards, one row per reset cycle.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS weekly_leaderboards (
			id               TEXT PRIMARY KEY,
			guild_id         TEXT NOT NULL,
			week_start       INTEGER NOT NULL,
			week_end         INTEGER NOT NULL,
			leaderboard_data TEXT NOT NULL,
			created_at       INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating weekly_leaderboards table: %w", err)
	}

	return nil
}
