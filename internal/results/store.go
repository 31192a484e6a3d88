package results

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists selection output. Level tables are written once per level
// after the level's barrier; the best table once at the end of the run.
type Store interface {
	SaveLevel(ctx context.Context, table LevelTable) error
	SaveBest(ctx context.Context, table BestTable) error
	Run(ctx context.Context, runID string) (Run, bool, error)
	ListRuns(ctx context.Context) ([]string, error)
	Close() error
}

// Memory is the in-process Store implementation; the durable backends embed
// it and snapshot its state after every write.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]Run)}
}

// SaveLevel appends or replaces the table for its level within the run.
func (m *Memory) SaveLevel(_ context.Context, table LevelTable) error {
	if table.RunID == "" {
		return fmt.Errorf("results: empty run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[table.RunID]
	run.ID = table.RunID
	replaced := false
	for i := range run.Levels {
		if run.Levels[i].Level == table.Level {
			run.Levels[i] = cloneLevel(table)
			replaced = true
			break
		}
	}
	if !replaced {
		run.Levels = append(run.Levels, cloneLevel(table))
	}
	m.runs[table.RunID] = run
	return nil
}

// SaveBest records the run's best-candidates table.
func (m *Memory) SaveBest(_ context.Context, table BestTable) error {
	if table.RunID == "" {
		return fmt.Errorf("results: empty run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[table.RunID]
	run.ID = table.RunID
	run.Best = cloneBest(table)
	m.runs[table.RunID] = run
	return nil
}

// Run returns a copy of the stored run, and whether it exists.
func (m *Memory) Run(_ context.Context, runID string) (Run, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, false, nil
	}
	return run.clone(), true, nil
}

// ListRuns returns the stored run IDs in sorted order.
func (m *Memory) ListRuns(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runs))
	for id := range m.runs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

// Snapshot exports the full state for the durable backends.
func (m *Memory) Snapshot() map[string]Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Run, len(m.runs))
	for id, run := range m.runs {
		out[id] = run.clone()
	}
	return out
}

// Restore replaces the full state from a snapshot.
func (m *Memory) Restore(runs map[string]Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make(map[string]Run, len(runs))
	for id, run := range runs {
		m.runs[id] = run.clone()
	}
}

var _ Store = (*Memory)(nil)
