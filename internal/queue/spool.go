package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/paylisher/paylisher-go/pkg/event"
)

// spool is the append-only buffer between Capture and delivery. Events are
// appended on capture, read back oldest-first at flush time, and removed
// only after the collector acknowledged them.
type spool interface {
	append(e event.Event) error
	batch(limit int) ([]spooled, error)
	ack(ids []int64) error
	// fail bumps the attempt counter and drops rows that exhausted
	// maxAttempts. Returns how many were dropped.
	fail(ids []int64, maxAttempts int) (int, error)
	depth() (int, error)
}

type spooled struct {
	id       int64
	attempts int
	ev       event.Event
}

// sqliteSpool persists queued events in the event_spool table so a crash or
// restart does not lose telemetry.
type sqliteSpool struct {
	db *sql.DB
}

func newSQLiteSpool(db *sql.DB) *sqliteSpool { return &sqliteSpool{db: db} }

func (s *sqliteSpool) append(e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("queue: marshal event: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO event_spool (payload, created_at) VALUES (?, ?)`,
		string(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("queue: spool append: %w", err)
	}
	return nil
}

func (s *sqliteSpool) batch(limit int) ([]spooled, error) {
	rows, err := s.db.Query(
		`SELECT id, attempts, payload FROM event_spool ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: spool batch: %w", err)
	}
	defer rows.Close()

	var out []spooled
	for rows.Next() {
		var (
			sp      spooled
			payload string
		)
		if err := rows.Scan(&sp.id, &sp.attempts, &payload); err != nil {
			return nil, fmt.Errorf("queue: spool scan: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &sp.ev); err != nil {
			// A corrupt row would wedge the queue head forever; skip it.
			continue
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *sqliteSpool) ack(ids []int64) error {
	return s.each(ids, `DELETE FROM event_spool WHERE id = ?`)
}

func (s *sqliteSpool) fail(ids []int64, maxAttempts int) (int, error) {
	if err := s.each(ids, `UPDATE event_spool SET attempts = attempts + 1 WHERE id = ?`); err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`DELETE FROM event_spool WHERE attempts >= ?`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("queue: spool drop: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteSpool) depth() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM event_spool`).Scan(&n)
	return n, err
}

func (s *sqliteSpool) each(ids []int64, stmt string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("queue: spool tx: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.Exec(stmt, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("queue: spool update: %w", err)
		}
	}
	return tx.Commit()
}

// memorySpool backs the queue when no storage path is configured.
type memorySpool struct {
	mu     sync.Mutex
	nextID int64
	items  []spooled
}

func newMemorySpool() *memorySpool { return &memorySpool{nextID: 1} }

func (s *memorySpool) append(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, spooled{id: s.nextID, ev: e})
	s.nextID++
	return nil
}

func (s *memorySpool) batch(limit int) ([]spooled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.items))
	out := make([]spooled, n)
	copy(out, s.items[:n])
	return out, nil
}

func (s *memorySpool) ack(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(ids)
	return nil
}

func (s *memorySpool) fail(ids []int64, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	dropped := 0
	kept := s.items[:0]
	for _, it := range s.items {
		if set[it.id] {
			it.attempts++
		}
		if it.attempts >= maxAttempts {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return dropped, nil
}

func (s *memorySpool) depth() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *memorySpool) remove(ids []int64) {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	kept := s.items[:0]
	for _, it := range s.items {
		if !set[it.id] {
			kept = append(kept, it)
		}
	}
	s.items = kept
}
