// Package results defines the persisted output of a selection run: one table
// per complexity level plus the held-out performance of the best candidates.
// Ranking and final winner selection stay a downstream concern.
package results

import "time"

// LevelRow records one fitted candidate at a complexity level. Params holds
// the free-parameter values only; removed binding constants never appear, so
// every stored value is finite and JSON-safe.
type LevelRow struct {
	Code       string             `json:"code"`
	Complexity int                `json:"complexity"`
	TrainLoss  float64            `json:"train_loss"`
	Params     map[string]float64 `json:"params,omitempty"`
	Failed     bool               `json:"failed,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// LevelTable is the full candidate set fitted at one complexity level.
type LevelTable struct {
	RunID     string     `json:"run_id"`
	Level     int        `json:"level"`
	Direction string     `json:"direction"`
	Rows      []LevelRow `json:"rows"`
	CreatedAt time.Time  `json:"created_at"`
}

// BestRow records the held-out performance of one promoted candidate.
type BestRow struct {
	Code      string             `json:"code"`
	Level     int                `json:"level"`
	TrainLoss float64            `json:"train_loss"`
	TestLoss  float64            `json:"test_loss"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// BestTable aggregates the top candidates of every level with their test
// scores.
type BestTable struct {
	RunID     string    `json:"run_id"`
	Rows      []BestRow `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is the complete persisted record of one selection run.
type Run struct {
	ID     string       `json:"id"`
	Levels []LevelTable `json:"levels"`
	Best   BestTable    `json:"best"`
}

// clone produces an independent copy so stored runs are immune to caller
// mutation.
func (r Run) clone() Run {
	out := Run{ID: r.ID, Best: cloneBest(r.Best)}
	out.Levels = make([]LevelTable, len(r.Levels))
	for i, lt := range r.Levels {
		out.Levels[i] = cloneLevel(lt)
	}
	return out
}

func cloneLevel(t LevelTable) LevelTable {
	out := t
	out.Rows = make([]LevelRow, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = row
		out.Rows[i].Params = cloneParams(row.Params)
	}
	return out
}

func cloneBest(t BestTable) BestTable {
	out := t
	out.Rows = make([]BestRow, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = row
		out.Rows[i].Params = cloneParams(row.Params)
	}
	return out
}

func cloneParams(p map[string]float64) map[string]float64 {
	if p == nil {
		return nil
	}
	out := make(map[string]float64, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
