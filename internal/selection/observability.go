package selection

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsRecorder receives one observation per recorded operation (candidate
// fit, level barrier, persistence write).
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around selection operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan ends a traced operation with its outcome.
type TraceSpan interface {
	End(err error)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

var expvarSeq uint64

// ExpvarRecorder aggregates walk timings and outcomes per operation and
// publishes them through expvar, so a long selection run can be watched from
// /debug/vars without an external metrics stack. A level fitting thousands of
// candidates shows up as one growing fit_candidate counter pair.
type ExpvarRecorder struct {
	name     string
	mu       sync.Mutex
	elapsed  map[string]float64
	outcomes map[string]map[string]int64
}

// MetricsSnapshot is a point-in-time copy of an ExpvarRecorder's aggregates.
// ElapsedMS accumulates wall time per operation in milliseconds; Outcomes
// counts success and error completions per operation.
type MetricsSnapshot struct {
	ElapsedMS map[string]float64          `json:"elapsed_ms_total"`
	Outcomes  map[string]map[string]int64 `json:"outcomes_total"`
	TakenAt   time.Time                   `json:"taken_at"`
}

// NewExpvarRecorder publishes a recorder under name; an empty name gets a
// generated kinefit_selection_N identifier since expvar names must be unique
// per process.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("kinefit_selection_%d", id)
	}
	rec := &ExpvarRecorder{
		name:     name,
		elapsed:  make(map[string]float64),
		outcomes: make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string { return r.name }

// Snapshot copies the aggregates so callers never observe concurrent updates.
func (r *ExpvarRecorder) Snapshot() MetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := make(map[string]float64, len(r.elapsed))
	for op, total := range r.elapsed {
		elapsed[op] = total
	}
	outcomes := make(map[string]map[string]int64, len(r.outcomes))
	for op, counts := range r.outcomes {
		cpy := make(map[string]int64, len(counts))
		for outcome, n := range counts {
			cpy[outcome] = n
		}
		outcomes[op] = cpy
	}
	return MetricsSnapshot{
		ElapsedMS: elapsed,
		Outcomes:  outcomes,
		TakenAt:   time.Now().UTC(),
	}
}

// Observe records one completed operation.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	outcome := "error"
	if success {
		outcome = "success"
	}
	r.mu.Lock()
	r.elapsed[operation] += ms
	if _, ok := r.outcomes[operation]; !ok {
		r.outcomes[operation] = make(map[string]int64, 2)
	}
	r.outcomes[operation][outcome]++
	r.mu.Unlock()
}

// TraceEntry is one completed span as the JSON tracer records it.
type TraceEntry struct {
	Operation string    `json:"op"`
	Outcome   string    `json:"outcome"`
	ElapsedMS float64   `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// JSONTracer appends one JSON line per finished span to a writer, typically
// the file behind the -trace flag, and keeps the entries in memory for
// inspection after the run.
type JSONTracer struct {
	mu      sync.Mutex
	entries []TraceEntry
	enc     *json.Encoder
}

// NewJSONTracer builds a tracer over w; a nil writer keeps entries in memory
// only.
func NewJSONTracer(w io.Writer) *JSONTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTracer) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
}

func (s *jsonSpan) End(err error) {
	outcome := "success"
	var errMsg string
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := TraceEntry{
		Operation: s.operation,
		Outcome:   outcome,
		ElapsedMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:     errMsg,
		StartedAt: s.started,
		EndedAt:   ended,
	}
	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
