package selection

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg, "kinefit_test")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "fit_candidate", true, 5*time.Millisecond)
	rec.Observe(ctx, "fit_candidate", true, 7*time.Millisecond)
	rec.Observe(ctx, "fit_candidate", false, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond) // ignored

	success := testutil.ToFloat64(rec.results.WithLabelValues("fit_candidate", "success"))
	if success != 2 {
		t.Fatalf("success count = %v, want 2", success)
	}
	failure := testutil.ToFloat64(rec.results.WithLabelValues("fit_candidate", "error"))
	if failure != 1 {
		t.Fatalf("error count = %v, want 1", failure)
	}
}

func TestPrometheusRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetricsRecorder(reg, "dup"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPrometheusMetricsRecorder(reg, "dup"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
