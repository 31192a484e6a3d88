package fit

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// ErrAllRestartsFailed is returned when no restart of a candidate fit
// produced a finite loss. The selection controller marks such candidates
// failed and drops them from the frontier.
var ErrAllRestartsFailed = errors.New("fit: all restarts failed")

// Config controls the multi-start fitter.
type Config struct {
	// Restarts is the number of independent randomized starts per candidate.
	Restarts int
	// MaxIterations bounds each local optimization; a restart hitting the
	// budget contributes its best point so far instead of blocking.
	MaxIterations int
	// Seed drives the per-restart random sources. Restart i draws from an
	// independent generator seeded Seed+i, so restarts are reproducible and
	// parallel-safe.
	Seed int64
	// Lower and Upper bound the rescaled optimizer space per free parameter.
	Lower, Upper float64
}

// DefaultConfig returns the fitter defaults: 20 restarts over the [0, 10]
// rescaled box with a 400-iteration budget per restart.
func DefaultConfig() Config {
	return Config{Restarts: 20, MaxIterations: 400, Seed: 1, Lower: 0, Upper: 10}
}

func (c Config) normalized() Config {
	if c.Restarts <= 0 {
		c.Restarts = 20
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 400
	}
	if c.Upper <= c.Lower {
		c.Lower, c.Upper = 0, 10
	}
	return c
}

// Rescale maps one optimizer-space coordinate to physical units. The decade
// mapping lets the bounded box cover ten orders of magnitude, since Michaelis
// constants and Vmax values routinely span that much.
func Rescale(x float64) float64 { return math.Pow(10, x-5) }

// Result is the outcome of one candidate fit, immutable once returned.
type Result struct {
	// Loss is the training loss of the best restart.
	Loss float64
	// X is the winning point in optimizer space.
	X []float64
	// Free holds the physical values of the free parameters, in the
	// substitution's order.
	Free []float64
	// FreeParams names the free values. It holds exactly the parameters
	// the removal code leaves fitted, so every value is finite; result
	// tables persist this mapping.
	FreeParams map[string]float64
	// Params is the full named mapping with forced values filled in,
	// including the infinity sentinel for removed terms. It feeds the
	// evaluator directly and is not JSON-serializable.
	Params map[string]float64
	// FailedRestarts counts restarts discarded for non-convergence or
	// invalid loss.
	FailedRestarts int
}

// Fitter minimizes an evaluator's loss over a substitution's free parameters
// with Nelder-Mead restarts from randomized points in the bounded box.
type Fitter struct {
	cfg Config
}

// NewFitter constructs a fitter with normalized configuration.
func NewFitter(cfg Config) *Fitter {
	return &Fitter{cfg: cfg.normalized()}
}

// Config returns the normalized configuration in use.
func (f *Fitter) Config() Config { return f.cfg }

// Fit runs the multi-start minimization and returns the lowest-loss result
// across restarts. Restarts failing to converge or producing an invalid loss
// are skipped; ErrAllRestartsFailed is returned only when none survive.
// Cancellation is honored between restarts.
func (f *Fitter) Fit(ctx context.Context, sub *Substitution, ev *Evaluator) (Result, error) {
	dim := sub.Dim()
	span := f.cfg.Upper - f.cfg.Lower

	objective := func(x []float64) float64 {
		// Keep Nelder-Mead inside the box with a growing penalty.
		excess := 0.0
		for _, v := range x {
			if v < f.cfg.Lower {
				excess += f.cfg.Lower - v
			} else if v > f.cfg.Upper {
				excess += v - f.cfg.Upper
			}
		}
		if excess > 0 {
			return 1e12 * (1 + excess)
		}
		phys := make([]float64, dim)
		for i, v := range x {
			phys[i] = Rescale(v)
		}
		full, err := sub.Apply(phys)
		if err != nil {
			return math.Inf(1)
		}
		loss, err := ev.Loss(full)
		if err != nil {
			return math.Inf(1)
		}
		return loss
	}

	problem := optimize.Problem{Func: objective}
	best := Result{Loss: math.Inf(1)}
	failed := 0

	for i := 0; i < f.cfg.Restarts; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		rng := rand.New(rand.NewSource(f.cfg.Seed + int64(i)))
		x0 := make([]float64, dim)
		for j := range x0 {
			x0[j] = f.cfg.Lower + span*rng.Float64()
		}
		settings := &optimize.Settings{
			MajorIterations: f.cfg.MaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Iterations: 50,
			},
		}
		res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if err != nil || res == nil || !isFinite(res.F) {
			failed++
			continue
		}
		if res.F < best.Loss {
			best.Loss = res.F
			best.X = append([]float64(nil), res.X...)
		}
	}
	best.FailedRestarts = failed

	if !isFinite(best.Loss) {
		return Result{FailedRestarts: failed}, ErrAllRestartsFailed
	}

	best.Free = make([]float64, dim)
	for i, v := range best.X {
		best.Free[i] = Rescale(v)
	}
	named, err := sub.Named(best.Free)
	if err != nil {
		return Result{FailedRestarts: failed}, err
	}
	best.Params = named
	best.FreeParams = make(map[string]float64, dim)
	for i, name := range sub.FreeNames() {
		best.FreeParams[name] = best.Free[i]
	}
	return best, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
