// Package postgres provides a Postgres-backed results store mirroring the
// SQLite snapshot semantics, for deployments sharing selection output across
// hosts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"kinefit/internal/results"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ results.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/kinefit?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists selection runs to Postgres while reusing the in-memory
// implementation for reads.
type Store struct {
	*results.Memory
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists and hydrates the
// in-memory state from any stored runs.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	s := &Store{Memory: results.NewMemory(), db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, payload FROM runs`)
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
		if len(payload) == 0 {
			continue
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
		`INSERT INTO runs(run_id, payload) VALUES($1, $2)
		 ON CONFLICT(run_id) DO UPDATE SET payload=EXCLUDED.payload`,
		runID, payload); err != nil {
		return fmt.Errorf("upsert run %s: %w", runID, err)
	}
	return nil
}

// SaveLevel writes the table in memory and snapshots the run to Postgres.
func (s *Store) SaveLevel(ctx context.Context, table results.LevelTable) error {
	if err := s.Memory.SaveLevel(ctx, table); err != nil {
		return err
	}
	return s.persist(ctx, table.RunID)
}

// SaveBest writes the table in memory and snapshots the run to Postgres.
func (s *Store) SaveBest(ctx context.Context, table results.BestTable) error {
	if err := s.Memory.SaveBest(ctx, table); err != nil {
		return err
	}
	return s.persist(ctx, table.RunID)
}

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sql.Open function for tests and returns a
// restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
