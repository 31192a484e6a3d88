package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"kinefit/internal/dataset"
	"kinefit/internal/fit"
	"kinefit/internal/lattice"
	"kinefit/internal/results"
	"kinefit/pkg/ratelaw"
)

func sampleLevel(runID string) results.LevelTable {
	return results.LevelTable{
		RunID:     runID,
		Level:     3,
		Direction: "reverse",
		Rows: []results.LevelRow{
			{Code: "010", Complexity: 3, TrainLoss: 0.5, Params: map[string]float64{"Vmax": 9.5}},
		},
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveLevel(ctx, sampleLevel("r1")); err != nil {
		t.Fatalf("save level: %v", err)
	}
	if err := s.SaveBest(ctx, results.BestTable{RunID: "r1", Rows: []results.BestRow{{Code: "010", Level: 3, TestLoss: 0.7}}}); err != nil {
		t.Fatalf("save best: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()
	run, ok, err := reopened.Run(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("run lookup: %v %v", ok, err)
	}
	if len(run.Levels) != 1 || run.Levels[0].Level != 3 {
		t.Fatalf("levels lost: %+v", run.Levels)
	}
	if run.Levels[0].Rows[0].Params["Vmax"] != 9.5 {
		t.Fatalf("params lost: %+v", run.Levels[0].Rows[0])
	}
	if len(run.Best.Rows) != 1 || run.Best.Rows[0].TestLoss != 0.7 {
		t.Fatalf("best table lost: %+v", run.Best)
	}
}

// A fitted candidate with a removed term must survive the JSON snapshot.
// The persisted mapping is the free subset, so the infinity sentinel the
// removed binding constant carries internally never reaches the encoder.
func TestStore_SavesReducedCandidateFit(t *testing.T) {
	ctx := context.Background()
	eq, err := ratelaw.New(ratelaw.EquationSpec{
		Family:     ratelaw.FamilyQSSA,
		Substrates: []string{"S"},
		Products:   []string{"P"},
	})
	if err != nil {
		t.Fatalf("build equation: %v", err)
	}
	sp, err := lattice.NewSpace(eq)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	states := make([]lattice.State, sp.NumTerms())
	states[eq.ProductTerm()] = lattice.Removed
	code := lattice.NewCode(states)
	sub, err := fit.NewSubstitution(eq, sp, code)
	if err != nil {
		t.Fatalf("substitution: %v", err)
	}
	d := dataset.New([]string{"S", "P"})
	for j := 0; j < 10; j++ {
		s := 0.5 * math.Pow(2, float64(j%5))
		if err := d.Append(10*(s/2)/(1+s/2), "pub", []float64{s, 0.01}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	ev, err := fit.NewEvaluator(eq, d, 1)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	res, err := fit.NewFitter(fit.Config{Restarts: 2, MaxIterations: 100, Seed: 1}).Fit(ctx, sub, ev)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	table := results.LevelTable{
		RunID:     "reduced",
		Level:     1,
		Direction: "reverse",
		Rows: []results.LevelRow{
			{Code: code.Key(), Complexity: sp.Complexity(code), TrainLoss: res.Loss, Params: res.FreeParams},
		},
	}
	if err := s.SaveLevel(ctx, table); err != nil {
		t.Fatalf("save level with reduced candidate: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	run, ok, err := reopened.Run(ctx, "reduced")
	if err != nil || !ok {
		t.Fatalf("run lookup: %v %v", ok, err)
	}
	params := run.Levels[0].Rows[0].Params
	if len(params) == 0 {
		t.Fatalf("fitted params lost: %+v", run.Levels[0].Rows[0])
	}
	for name, v := range params {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			t.Fatalf("stored param %q non-finite: %v", name, v)
		}
	}
	if _, ok := params["K_P"]; ok {
		t.Fatalf("removed constant stored: %v", params)
	}
}

func TestStore_UpsertsLevelSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	table := sampleLevel("r1")
	if err := s.SaveLevel(ctx, table); err != nil {
		t.Fatalf("save: %v", err)
	}
	table.Rows[0].TrainLoss = 0.25
	if err := s.SaveLevel(ctx, table); err != nil {
		t.Fatalf("resave: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	run, _, _ := reopened.Run(ctx, "r1")
	if len(run.Levels) != 1 || run.Levels[0].Rows[0].TrainLoss != 0.25 {
		t.Fatalf("snapshot not replaced: %+v", run.Levels)
	}
}
