package storage

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// createDDL covers both the key-value state and the event spool. The spool
// table is owned by internal/queue but shares the database file so one
// storage path covers everything the SDK persists.
const createDDL = `
CREATE TABLE IF NOT EXISTS kv_state (
	key        TEXT PRIMARY KEY,
	str_value  TEXT,
	num_value  REAL
);

CREATE TABLE IF NOT EXISTS event_spool (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	payload    TEXT    NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
`

// DB wraps the SQLite handle and implements Store on top of it.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// The driver is single-writer; serialize access instead of surfacing
	// SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Handle exposes the underlying database for the event spool.
func (d *DB) Handle() *sql.DB { return d.db }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) GetString(key string) (string, bool) {
	var v sql.NullString
	err := d.db.QueryRow(`SELECT str_value FROM kv_state WHERE key = ?`, key).Scan(&v)
	if err != nil || !v.Valid {
		return "", false
	}
	return v.String, true
}

func (d *DB) GetFloat64(key string) (float64, bool) {
	var v sql.NullFloat64
	err := d.db.QueryRow(`SELECT num_value FROM kv_state WHERE key = ?`, key).Scan(&v)
	if err != nil || !v.Valid {
		return 0, false
	}
	return v.Float64, true
}

func (d *DB) SetString(key, value string) {
	_, err := d.db.Exec(`
		INSERT INTO kv_state (key, str_value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET str_value = excluded.str_value`,
		key, value)
	if err != nil {
		log.Printf("storage: set %s: %v", key, err)
	}
}

func (d *DB) SetFloat64(key string, value float64) {
	_, err := d.db.Exec(`
		INSERT INTO kv_state (key, num_value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET num_value = excluded.num_value`,
		key, value)
	if err != nil {
		log.Printf("storage: set %s: %v", key, err)
	}
}

func (d *DB) Remove(key string) {
	if _, err := d.db.Exec(`DELETE FROM kv_state WHERE key = ?`, key); err != nil {
		log.Printf("storage: remove %s: %v", key, err)
	}
}
