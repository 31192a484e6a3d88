package fit

import (
	"errors"
	"fmt"
	"math"

	"kinefit/internal/dataset"
	"kinefit/pkg/ratelaw"
)

// ErrInvalidPrediction marks a predicted rate that cannot feed the log-ratio
// loss (non-positive or non-finite). The evaluation carrying it is discarded
// rather than letting NaN reach the ranking tables.
var ErrInvalidPrediction = errors.New("fit: invalid predicted rate")

// ErrEmptyDataset is returned when an evaluator is built over no rows.
var ErrEmptyDataset = errors.New("fit: empty dataset")

// Evaluator scores a parameterized rate equation against a dataset. The loss
// per row is the squared log of the predicted/observed ratio, so fold-errors
// contribute symmetrically; rows are weighted by inverse source frequency so
// every source contributes equal total weight.
type Evaluator struct {
	eq   *ratelaw.Equation
	keq  float64
	conc [][]float64 // per row, reordered to the equation's metabolite tuple
	rate []float64
	w    []float64
}

// NewEvaluator binds the dataset's columns to the equation's metabolite
// order once, and precomputes row weights. Every metabolite the equation
// requires must exist as a column.
func NewEvaluator(eq *ratelaw.Equation, d *dataset.Dataset, keq float64) (*Evaluator, error) {
	if d.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	cols, err := d.Bind(eq.MetabNames())
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		eq:   eq,
		keq:  keq,
		conc: make([][]float64, d.Len()),
		rate: make([]float64, d.Len()),
		w:    d.Weights(),
	}
	for i, row := range d.Rows {
		c := make([]float64, len(cols))
		for j, col := range cols {
			c[j] = row.Conc[col]
		}
		e.conc[i] = c
		e.rate[i] = row.Rate
	}
	return e, nil
}

// Rows reports the number of measurements the evaluator scores against.
func (e *Evaluator) Rows() int { return len(e.rate) }

// Loss computes the weighted mean squared log-ratio for the full ordered
// parameter vector of the general equation.
func (e *Evaluator) Loss(params []float64) (float64, error) {
	total := 0.0
	for i := range e.rate {
		pred, err := e.eq.RateAt(e.conc[i], params, e.keq)
		if err != nil {
			return 0, err
		}
		if !(pred > 0) || math.IsInf(pred, 1) {
			return 0, fmt.Errorf("%w: %v at row %d", ErrInvalidPrediction, pred, i)
		}
		r := math.Log(pred / e.rate[i])
		total += e.w[i] * r * r
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: non-finite loss", ErrInvalidPrediction)
	}
	return total, nil
}

// LossNamed scores a named parameter mapping, validating the key set against
// the equation's parameter tuple.
func (e *Evaluator) LossNamed(params map[string]float64) (float64, error) {
	names := e.eq.ParamNames()
	vec := make([]float64, len(names))
	for i, name := range names {
		v, ok := params[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing parameter %q", ratelaw.ErrNameMismatch, name)
		}
		vec[i] = v
	}
	return e.Loss(vec)
}
