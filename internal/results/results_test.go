package results

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func sampleRun(id string) Run {
	return Run{
		ID: id,
		Levels: []LevelTable{
			{
				RunID:     id,
				Level:     2,
				Direction: "reverse",
				Rows: []LevelRow{
					{Code: "00", Complexity: 2, TrainLoss: 0.25, Params: map[string]float64{"Vmax": 10, "K_S": 2}},
					{Code: "02", Complexity: 2, Failed: true, Error: "all restarts failed"},
				},
			},
		},
		Best: BestTable{
			RunID: id,
			Rows:  []BestRow{{Code: "00", Level: 2, TrainLoss: 0.25, TestLoss: 0.3, Params: map[string]float64{"Vmax": 10}}},
		},
	}
}

func TestMemory_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run := sampleRun("r1")
	if err := m.SaveLevel(ctx, run.Levels[0]); err != nil {
		t.Fatalf("save level: %v", err)
	}
	if err := m.SaveBest(ctx, run.Best); err != nil {
		t.Fatalf("save best: %v", err)
	}
	got, ok, err := m.Run(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("run lookup: %v %v", ok, err)
	}
	if len(got.Levels) != 1 || got.Levels[0].Level != 2 {
		t.Fatalf("unexpected levels %+v", got.Levels)
	}
	if len(got.Best.Rows) != 1 || got.Best.Rows[0].Code != "00" {
		t.Fatalf("unexpected best %+v", got.Best)
	}
	if _, ok, _ := m.Run(ctx, "missing"); ok {
		t.Fatalf("missing run reported present")
	}
}

func TestMemory_UpsertsLevel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	table := sampleRun("r1").Levels[0]
	if err := m.SaveLevel(ctx, table); err != nil {
		t.Fatalf("save level: %v", err)
	}
	table.Rows = table.Rows[:1]
	if err := m.SaveLevel(ctx, table); err != nil {
		t.Fatalf("resave level: %v", err)
	}
	got, _, _ := m.Run(ctx, "r1")
	if len(got.Levels) != 1 || len(got.Levels[0].Rows) != 1 {
		t.Fatalf("level not replaced: %+v", got.Levels)
	}
}

func TestMemory_ClonesOnReturn(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SaveLevel(ctx, sampleRun("r1").Levels[0]); err != nil {
		t.Fatalf("save level: %v", err)
	}
	got, _, _ := m.Run(ctx, "r1")
	got.Levels[0].Rows[0].Params["Vmax"] = -1
	again, _, _ := m.Run(ctx, "r1")
	if again.Levels[0].Rows[0].Params["Vmax"] != 10 {
		t.Fatalf("stored run mutated through a returned copy")
	}
}

func TestMemory_RejectsEmptyRunID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.SaveLevel(ctx, LevelTable{}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
	if err := m.SaveBest(ctx, BestTable{}); err == nil {
		t.Fatalf("expected error for empty run id")
	}
}

func TestMemory_ListRunsSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"zed", "alpha", "mid"} {
		if err := m.SaveBest(ctx, BestTable{RunID: id}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	ids, err := m.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != "alpha" || ids[2] != "zed" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run := sampleRun("r1")
	if err := m.SaveLevel(ctx, run.Levels[0]); err != nil {
		t.Fatalf("save level: %v", err)
	}
	if err := m.SaveBest(ctx, run.Best); err != nil {
		t.Fatalf("save best: %v", err)
	}
	other := NewMemory()
	other.Restore(m.Snapshot())
	got, ok, _ := other.Run(ctx, "r1")
	if !ok || len(got.Levels) != 1 || got.Best.RunID != "r1" {
		t.Fatalf("restore lost data: %+v", got)
	}
}

func TestEncodeLevelCSV(t *testing.T) {
	out, err := EncodeLevelCSV(sampleRun("r1").Levels[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if lines[0] != "code,complexity,train_loss,failed,error,params" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "00,2,0.25,false,,") {
		t.Fatalf("unexpected fitted row %q", lines[1])
	}
	// Parameter keys are sorted for stable output.
	if !strings.Contains(lines[1], `""K_S"":2,""Vmax"":10`) {
		t.Fatalf("params not in sorted order: %q", lines[1])
	}
	if !strings.Contains(lines[2], "02,2,0,true,all restarts failed,") {
		t.Fatalf("unexpected failed row %q", lines[2])
	}
}

func TestEncodeLevelCSV_ParamsColumnIsValidJSON(t *testing.T) {
	// JSON has no literal for the infinities, so a sentinel that slips into a
	// stored mapping must render as null rather than corrupt the column.
	table := LevelTable{
		RunID: "r1",
		Level: 1,
		Rows: []LevelRow{
			{Code: "02", Complexity: 1, TrainLoss: 0.1,
				Params: map[string]float64{"Vmax": 10, "K_S": 2, "K_P": math.Inf(1)}},
		},
	}
	out, err := EncodeLevelCSV(table)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("reparse csv: %v", err)
	}
	paramsCell := records[1][5]
	var decoded map[string]*float64
	if err := json.Unmarshal([]byte(paramsCell), &decoded); err != nil {
		t.Fatalf("params column is not valid JSON: %q: %v", paramsCell, err)
	}
	if decoded["K_P"] != nil {
		t.Fatalf("sentinel not nulled: %q", paramsCell)
	}
	if decoded["Vmax"] == nil || *decoded["Vmax"] != 10 {
		t.Fatalf("finite value lost: %q", paramsCell)
	}
}

func TestEncodeBestCSV(t *testing.T) {
	out, err := EncodeBestCSV(sampleRun("r1").Best)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "code,level,train_loss,test_loss,params" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "00,2,0.25,0.3,") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}
