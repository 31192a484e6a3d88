package results

import (
	"context"
	"io"
	"testing"

	"kinefit/internal/blob"
)

func TestExportRun_WritesOneArtifactPerTable(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	run := sampleRun("r1")

	infos, err := NewExporter(store).ExportRun(ctx, run)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d artifacts, want level + best", len(infos))
	}
	if infos[0].Key != "runs/r1/level_02.csv" || infos[1].Key != "runs/r1/best.csv" {
		t.Fatalf("unexpected keys %q, %q", infos[0].Key, infos[1].Key)
	}
	if infos[0].ContentType != "text/csv" {
		t.Fatalf("unexpected content type %q", infos[0].ContentType)
	}

	_, rc, err := store.Get(ctx, "runs/r1/level_02.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload, err := io.ReadAll(rc)
	if cerr := rc.Close(); cerr != nil {
		t.Fatalf("close: %v", cerr)
	}
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want, err := EncodeLevelCSV(run.Levels[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(payload) != string(want) {
		t.Fatalf("stored payload differs from encoding")
	}
}

func TestExportRun_PropagatesStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	run := sampleRun("r1")
	if _, err := NewExporter(store).ExportRun(ctx, run); err != nil {
		t.Fatalf("first export: %v", err)
	}
	// Blob puts are immutable, so re-exporting the same run must fail.
	if _, err := NewExporter(store).ExportRun(ctx, run); err == nil {
		t.Fatalf("expected failure on duplicate export")
	}
}
