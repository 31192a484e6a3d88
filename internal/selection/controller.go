// Package selection orchestrates the stepwise model search: per complexity
// level it expands the removal-code lattice from the retained frontier, fits
// every candidate on the training split, scores the top fraction on held-out
// data and advances the frontier one level at a time.
package selection

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"runtime"
	"sort"
	"time"

	"kinefit/internal/dataset"
	"kinefit/internal/fit"
	"kinefit/internal/lattice"
	"kinefit/internal/results"
	"kinefit/pkg/ratelaw"
)

// ErrInvalidOptions wraps all selector configuration failures; these are
// reported before any fitting work begins.
var ErrInvalidOptions = errors.New("selection: invalid options")

// Operation names recorded through the metrics and tracing hooks.
const (
	opFitCandidate = "fit_candidate"
	opFitLevel     = "fit_level"
	opSaveLevel    = "save_level"
)

// Options configures a selection run.
type Options struct {
	// Direction chooses the lattice walk: Reverse from the full code or
	// Forward from the minimal code. Default Reverse.
	Direction lattice.Direction

	// MinComplexity and MaxComplexity bound the levels whose result tables
	// are persisted. Zero means the corresponding bound of the lattice
	// space; levels outside the space's valid bounds enumerate empty and
	// terminate the walk naturally.
	MinComplexity, MaxComplexity int

	// TopFraction of each level's candidates (by training loss) is
	// re-evaluated on the held-out split. Default 0.1.
	TopFraction float64

	// Workers sizes the per-level fitting pool. Default NumCPU.
	Workers int

	// Fitter configures the per-candidate multi-start optimization.
	Fitter fit.Config

	// Keq is the reaction equilibrium constant handed to the rate equation.
	Keq float64

	// RunID names the persisted run. Default derived from the wall clock.
	RunID string

	// Store receives the per-level tables and the best table. Default
	// in-memory.
	Store results.Store

	// Metrics and Tracer receive operation observations. Default no-op.
	Metrics MetricsRecorder
	Tracer  Tracer
}

func (o Options) normalized(space *lattice.Space) (Options, error) {
	if o.Direction == "" {
		o.Direction = lattice.Reverse
	}
	if o.Direction != lattice.Reverse && o.Direction != lattice.Forward {
		return o, fmt.Errorf("%w: unknown direction %q", ErrInvalidOptions, o.Direction)
	}
	if o.MinComplexity < 0 || o.MaxComplexity < 0 {
		return o, fmt.Errorf("%w: negative complexity bound", ErrInvalidOptions)
	}
	if o.MinComplexity == 0 {
		o.MinComplexity = space.MinComplexity()
	}
	if o.MaxComplexity == 0 {
		o.MaxComplexity = space.MaxComplexity()
	}
	if o.MinComplexity > o.MaxComplexity {
		return o, fmt.Errorf("%w: complexity range (%d, %d) is inverted", ErrInvalidOptions, o.MinComplexity, o.MaxComplexity)
	}
	if o.TopFraction == 0 {
		o.TopFraction = 0.1
	}
	if o.TopFraction < 0 || o.TopFraction > 1 {
		return o, fmt.Errorf("%w: top fraction %v outside (0, 1]", ErrInvalidOptions, o.TopFraction)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.RunID == "" {
		o.RunID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	if o.Store == nil {
		o.Store = results.NewMemory()
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	if o.Tracer == nil {
		o.Tracer = noopTracer{}
	}
	return o, nil
}

// Selector walks the removal-code lattice level by level.
type Selector struct {
	eq    *ratelaw.Equation
	space *lattice.Space
	train *fit.Evaluator
	test  *fit.Evaluator // nil when no held-out split was provided
	opts  Options
}

// New validates the configuration and binds the datasets to the equation.
// The test dataset may be nil or empty, in which case held-out scoring is
// skipped and the best table stays empty.
func New(eq *ratelaw.Equation, train, test *dataset.Dataset, opts Options) (*Selector, error) {
	space, err := lattice.NewSpace(eq)
	if err != nil {
		return nil, err
	}
	opts, err = opts.normalized(space)
	if err != nil {
		return nil, err
	}
	trainEval, err := fit.NewEvaluator(eq, train, opts.Keq)
	if err != nil {
		return nil, fmt.Errorf("bind training data: %w", err)
	}
	var testEval *fit.Evaluator
	if test != nil && test.Len() > 0 {
		testEval, err = fit.NewEvaluator(eq, test, opts.Keq)
		if err != nil {
			return nil, fmt.Errorf("bind test data: %w", err)
		}
	}
	return &Selector{eq: eq, space: space, train: trainEval, test: testEval, opts: opts}, nil
}

// Options returns the normalized configuration in use.
func (s *Selector) Options() Options { return s.opts }

// candidate pairs a removal code with its fit outcome.
type candidate struct {
	code lattice.Code
	res  fit.Result
	err  error
}

func (c candidate) failed() bool { return c.err != nil }

// Run executes the stepwise walk. The walk starts one step from the seed
// code (full for reverse, minimal for forward), moves exactly one complexity
// unit per level, and persists a result table for every level inside the
// configured range. All non-failed candidates of a level, not only the top
// fraction, parent the next level's expansion. The walk ends when the level
// range is exhausted or a level enumerates empty.
func (s *Selector) Run(ctx context.Context) (results.Run, error) {
	run := results.Run{ID: s.opts.RunID}

	var frontier []lattice.Code
	var levels []int
	if s.opts.Direction == lattice.Forward {
		frontier = []lattice.Code{s.space.MinimalCode()}
		for t := s.space.MinComplexity() + 1; t <= s.opts.MaxComplexity; t++ {
			levels = append(levels, t)
		}
	} else {
		frontier = []lattice.Code{s.space.FullCode()}
		for t := s.space.MaxComplexity() - 1; t >= s.opts.MinComplexity; t-- {
			levels = append(levels, t)
		}
	}

	var bestRows []results.BestRow
	for _, target := range levels {
		codes := s.space.Expand(frontier, s.opts.Direction, target)
		if len(codes) == 0 {
			break
		}

		levelCtx, span := s.opts.Tracer.Start(ctx, opFitLevel)
		cands := s.fitLevel(levelCtx, codes)
		if err := ctx.Err(); err != nil {
			span.End(err)
			return run, err
		}
		span.End(nil)

		ranked := rank(cands)
		inRange := target >= s.opts.MinComplexity && target <= s.opts.MaxComplexity
		if inRange {
			table := s.levelTable(target, ranked)
			start := time.Now()
			err := s.opts.Store.SaveLevel(ctx, table)
			s.opts.Metrics.Observe(ctx, opSaveLevel, err == nil, time.Since(start))
			if err != nil {
				return run, fmt.Errorf("persist level %d: %w", target, err)
			}
			run.Levels = append(run.Levels, table)
			bestRows = append(bestRows, s.scoreTop(target, ranked)...)
		}

		frontier = frontier[:0]
		for _, c := range ranked {
			if !c.failed() {
				frontier = append(frontier, c.code)
			}
		}
		if len(frontier) == 0 {
			break
		}
	}

	sort.SliceStable(bestRows, func(i, j int) bool {
		if bestRows[i].TestLoss != bestRows[j].TestLoss {
			return bestRows[i].TestLoss < bestRows[j].TestLoss
		}
		return bestRows[i].Code < bestRows[j].Code
	})
	run.Best = results.BestTable{RunID: run.ID, Rows: bestRows, CreatedAt: time.Now().UTC()}
	if err := s.opts.Store.SaveBest(ctx, run.Best); err != nil {
		return run, fmt.Errorf("persist best table: %w", err)
	}
	return run, nil
}

// rank orders candidates by training loss, failed fits last, ties broken by
// code identity so the ordering is deterministic.
func rank(cands []candidate) []candidate {
	out := append([]candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].failed() != out[j].failed() {
			return !out[i].failed()
		}
		if out[i].res.Loss != out[j].res.Loss {
			return out[i].res.Loss < out[j].res.Loss
		}
		return out[i].code.Key() < out[j].code.Key()
	})
	return out
}

func (s *Selector) levelTable(level int, ranked []candidate) results.LevelTable {
	table := results.LevelTable{
		RunID:     s.opts.RunID,
		Level:     level,
		Direction: string(s.opts.Direction),
		CreatedAt: time.Now().UTC(),
	}
	for _, c := range ranked {
		row := results.LevelRow{
			Code:       c.code.Key(),
			Complexity: s.space.Complexity(c.code),
		}
		if c.failed() {
			row.Failed = true
			row.Error = c.err.Error()
		} else {
			row.TrainLoss = c.res.Loss
			// Only the free subset is stored; the full mapping carries the
			// infinity sentinel for removed terms, which JSON cannot encode.
			row.Params = c.res.FreeParams
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// scoreTop re-evaluates the level's top training fits on the held-out split.
func (s *Selector) scoreTop(level int, ranked []candidate) []results.BestRow {
	if s.test == nil {
		return nil
	}
	ok := 0
	for _, c := range ranked {
		if !c.failed() {
			ok++
		}
	}
	if ok == 0 {
		return nil
	}
	top := int(math.Ceil(s.opts.TopFraction * float64(ok)))
	if top < 1 {
		top = 1
	}
	var rows []results.BestRow
	for _, c := range ranked[:top] {
		if c.failed() {
			break
		}
		testLoss, err := s.test.LossNamed(c.res.Params)
		if err != nil {
			// The held-out split rejected the candidate's predictions;
			// exclude it rather than rank an undefined score.
			continue
		}
		rows = append(rows, results.BestRow{
			Code:      c.code.Key(),
			Level:     level,
			TrainLoss: c.res.Loss,
			TestLoss:  testLoss,
			Params:    c.res.FreeParams,
		})
	}
	return rows
}

// candidateSeed derives an independent deterministic fitter seed per code so
// parallel candidates never share random streams, regardless of dispatch
// order.
func (s *Selector) candidateSeed(code lattice.Code) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(code.Key()))
	return s.opts.Fitter.Seed + int64(h.Sum64()&0x7fffffff)
}
