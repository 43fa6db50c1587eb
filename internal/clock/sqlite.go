package clock

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage is a durable Storage backed by a single-table SQLite
// database. It exists so a restarting node can resume its counter
// without ever reusing a clock value; the event log itself is never
// persisted here.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite creates or opens the clock database at path (":memory:"
// for tests). Idempotent - safe to call on an existing database.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("clock: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("clock: connect: %w", err)
	}

	// SQLite supports one writer at a time; keep a single connection
	// to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("clock: %q: %w", pragma, err)
		}
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS lamport_counters (
			node_id TEXT PRIMARY KEY,
			value   INTEGER NOT NULL CHECK (value >= 0)
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("clock: apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the stored counter for nodeID, or 0 if the node has
// never checkpointed.
func (s *SQLiteStorage) Load(nodeID string) (uint64, error) {
	var value uint64
	err := s.db.QueryRow(
		"SELECT value FROM lamport_counters WHERE node_id = ?", nodeID,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("clock: load %s: %w", nodeID, err)
	}
	return value, nil
}

// Save upserts the counter for nodeID. Refuses to move the stored
// value backwards: a stale writer must never shrink the counter, or a
// restart would reissue clock values.
func (s *SQLiteStorage) Save(nodeID string, value uint64) error {
	_, err := s.db.Exec(`
		INSERT INTO lamport_counters (node_id, value) VALUES (?, ?)
		ON CONFLICT(node_id) DO UPDATE SET value = excluded.value
		WHERE excluded.value > lamport_counters.value`,
		nodeID, value)
	if err != nil {
		return fmt.Errorf("clock: save %s: %w", nodeID, err)
	}
	return nil
}
