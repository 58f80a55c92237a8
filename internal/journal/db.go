package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/obby/dirwatch/internal/watcher"
)

const schema = `
	CREATE TABLE IF NOT EXISTS change_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT    NOT NULL,
		kind        TEXT    NOT NULL,
		path        TEXT    NOT NULL,
		dest_path   TEXT    NOT NULL DEFAULT '',
		observed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_change_events_path ON change_events(path);
`

// Entry is one stored change event
type Entry struct {
	ID         int64
	SessionID  uuid.UUID
	Kind       string
	Path       string
	DestPath   string
	ObservedAt time.Time
}

// DB wraps the SQLite change journal
type DB struct {
	conn *sql.DB
}

// Open opens or creates the journal at dbPath
func Open(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// One writer; the watcher appends from a single goroutine
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Insert stores a change event for a session
func (db *DB) Insert(ctx context.Context, sessionID uuid.UUID, ev watcher.ChangeEvent) (int64, error) {
	query := `
		INSERT INTO change_events (session_id, kind, path, dest_path, observed_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := db.conn.ExecContext(ctx, query,
		sessionID.String(), ev.Kind.String(), ev.Path, ev.DestPath, ev.ObservedAt.UnixNano())
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// Recent returns up to limit entries, newest first
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, session_id, kind, path, dest_path, observed_at
		FROM change_events
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			sessionID string
			nanos     int64
		)
		if err := rows.Scan(&e.ID, &sessionID, &e.Kind, &e.Path, &e.DestPath, &nanos); err != nil {
			return nil, err
		}
		e.SessionID, err = uuid.Parse(sessionID)
		if err != nil {
			return nil, fmt.Errorf("entry %d: bad session id: %w", e.ID, err)
		}
		e.ObservedAt = time.Unix(0, nanos)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
