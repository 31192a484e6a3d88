// Package sqlite provides a SQLite-backed results store. It snapshots the
// in-memory state to a single table as JSON payloads after every write, one
// bucket per run.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"kinefit/internal/results"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ results.Store = (*Store)(nil)

// Store persists selection runs to a SQLite file.
type Store struct {
	*results.Memory
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path (empty means kinefit.db),
// ensures the snapshot table exists and hydrates the in-memory state from
// any stored runs.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "kinefit.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	s := &Store{Memory: results.NewMemory(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT run_id, payload FROM runs`)
	if err != nil {
		return fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := make(map[string]results.Run)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan run: %w", err)
		}
		var run results.Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return fmt.Errorf("decode run %s: %w", id, err)
		}
		snapshot[id] = run
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate runs: %w", err)
	}
	s.Restore(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok, err := s.Memory.Run(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", runID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, payload) VALUES(?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET payload=excluded.payload`,
		runID, payload); err != nil {
		return fmt.Errorf("upsert run %s: %w", runID, err)
	}
	return nil
}

// SaveLevel writes the table in memory and snapshots the run to disk.
func (s *Store) SaveLevel(ctx context.Context, table results.LevelTable) error {
	if err := s.Memory.SaveLevel(ctx, table); err != nil {
		return err
	}
	return s.persist(ctx, table.RunID)
}

// SaveBest writes the table in memory and snapshots the run to disk.
func (s *Store) SaveBest(ctx context.Context, table results.BestTable) error {
	if err := s.Memory.SaveBest(ctx, table); err != nil {
		return err
	}
	return s.persist(ctx, table.RunID)
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
