// Package rundb records regression runs in a SQLite
// database so that drift can be tracked over time.
package rundb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Wainberg/dragonn/metrics"
	"github.com/google/uuid"
	"github.com/unixpickle/essentials"

	_ "modernc.org/sqlite"
)

// A Run is one recorded regression run.
type Run struct {
	ID            string
	Label         string
	Seed          int64
	FirstSequence string
	Result        metrics.Result
	Passed        bool
	CreatedAt     time.Time
}

// A Store persists runs.
type Store struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// Open opens (and if necessary creates) a store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("open run store: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, essentials.AddCtx("open run store", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, essentials.AddCtx("open run store", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			seed INTEGER NOT NULL,
			first_sequence TEXT NOT NULL,
			result BLOB NOT NULL,
			passed INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_label_created ON runs (label, created_at);
	`); err != nil {
		_ = db.Close()
		return nil, essentials.AddCtx("open run store: create tables", err)
	}
	return &Store{path: path, db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record saves a run.
// If the run has no ID, a random one is assigned.
// If CreatedAt is zero, the current time is used.
func (s *Store) Record(ctx context.Context, run *Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(run.Result)
	if err != nil {
		return essentials.AddCtx("record run "+run.ID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, label, seed, first_sequence, result, passed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.Seed, run.FirstSequence, payload, boolInt(run.Passed),
		run.CreatedAt.UnixNano())
	if err != nil {
		return essentials.AddCtx("record run "+run.ID, err)
	}
	return nil
}

// List returns up to limit runs with the label, newest
// first.
// A limit of 0 returns every run.
func (s *Store) List(ctx context.Context, label string, limit int) ([]*Run, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, label, seed, first_sequence, result, passed, created_at
		FROM runs WHERE label = ? ORDER BY created_at DESC, id`
	args := []interface{}{label}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, essentials.AddCtx("list runs", err)
	}
	defer rows.Close()

	var res []*Run
	for rows.Next() {
		var run Run
		var payload []byte
		var passed int
		var created int64
		if err := rows.Scan(&run.ID, &run.Label, &run.Seed, &run.FirstSequence, &payload,
			&passed, &created); err != nil {
			return nil, essentials.AddCtx("list runs", err)
		}
		if err := json.Unmarshal(payload, &run.Result); err != nil {
			return nil, essentials.AddCtx("decode run "+run.ID, err)
		}
		run.Passed = passed != 0
		run.CreatedAt = time.Unix(0, created)
		res = append(res, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, essentials.AddCtx("list runs", err)
	}
	return res, nil
}

// Latest returns the newest run with the label.
func (s *Store) Latest(ctx context.Context, label string) (*Run, bool, error) {
	runs, err := s.List(ctx, label, 1)
	if err != nil {
		return nil, false, err
	}
	if len(runs) == 0 {
		return nil, false, nil
	}
	return runs[0], true, nil
}

func (s *Store) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("run store is closed")
	}
	return s.db, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
