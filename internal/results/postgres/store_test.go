package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"kinefit/internal/results"

	_ "modernc.org/sqlite"
)

// overrideWithSQLite routes the store's sql.Open through a file-backed
// SQLite database. The snapshot SQL sticks to the syntax both engines
// accept, which keeps the persistence path testable without a server.
func overrideWithSQLite(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pg.db")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
	t.Cleanup(restore)
}

func TestNewStore_OpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("boom")
	})
	t.Cleanup(restore)
	if _, err := NewStore(context.Background(), "postgres://example/db"); err == nil {
		t.Fatalf("expected open failure")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	overrideWithSQLite(t)

	s, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	table := results.LevelTable{
		RunID:     "r1",
		Level:     4,
		Direction: "forward",
		Rows:      []results.LevelRow{{Code: "01", Complexity: 4, TrainLoss: 1.25}},
	}
	if err := s.SaveLevel(ctx, table); err != nil {
		t.Fatalf("save level: %v", err)
	}
	if err := s.SaveBest(ctx, results.BestTable{RunID: "r1"}); err != nil {
		t.Fatalf("save best: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	run, ok, err := reopened.Run(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("run lookup: %v %v", ok, err)
	}
	if len(run.Levels) != 1 || run.Levels[0].Direction != "forward" {
		t.Fatalf("levels lost: %+v", run.Levels)
	}
}
