// Package dataset holds rate-versus-concentration measurement tables and the
// source-based weighting used by model selection.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ErrNonPositiveRate marks a measurement whose observed rate cannot feed the
// log-ratio loss. Policy: such rows are rejected at ingestion and reported
// per row; they never reach fitting or testing.
var ErrNonPositiveRate = errors.New("dataset: non-positive rate")

// ErrMissingColumn reports a metabolite column required by the rate equation
// but absent from the data.
var ErrMissingColumn = errors.New("dataset: missing column")

// Row is a single measurement: observed rate, the publication/source tag the
// row came from, and one concentration per dataset metabolite column.
type Row struct {
	Rate   float64
	Source string
	Conc   []float64
}

// Dataset is a flat measurement table with a fixed metabolite column order.
type Dataset struct {
	Metabs []string
	Rows   []Row
}

// New creates an empty dataset with the given metabolite columns.
func New(metabs []string) *Dataset {
	return &Dataset{Metabs: append([]string(nil), metabs...)}
}

// Len reports the number of measurement rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Append adds a measurement, enforcing the positive-rate policy and the
// column arity.
func (d *Dataset) Append(rate float64, source string, conc []float64) error {
	if !(rate > 0) || math.IsInf(rate, 1) {
		return fmt.Errorf("%w: %v", ErrNonPositiveRate, rate)
	}
	if len(conc) != len(d.Metabs) {
		return fmt.Errorf("dataset: %d concentrations for %d columns", len(conc), len(d.Metabs))
	}
	d.Rows = append(d.Rows, Row{Rate: rate, Source: source, Conc: append([]float64(nil), conc...)})
	return nil
}

// Bind resolves the equation's metabolite name tuple to column positions in
// this dataset. Every required name must exist; extra columns are ignored.
func (d *Dataset) Bind(metabNames []string) ([]int, error) {
	index := make(map[string]int, len(d.Metabs))
	for i, name := range d.Metabs {
		index[name] = i
	}
	cols := make([]int, len(metabNames))
	for i, name := range metabNames {
		j, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		cols[i] = j
	}
	return cols, nil
}

// Weights returns one weight per row: the inverse of the row count of its
// source, normalized over the number of distinct sources so the weights sum
// to one and every source contributes equal total weight.
func (d *Dataset) Weights() []float64 {
	counts := make(map[string]int)
	for _, r := range d.Rows {
		counts[r.Source]++
	}
	if len(counts) == 0 {
		return nil
	}
	w := make([]float64, len(d.Rows))
	norm := float64(len(counts))
	for i, r := range d.Rows {
		w[i] = 1.0 / (float64(counts[r.Source]) * norm)
	}
	return w
}

// Sources returns the distinct source tags in sorted order.
func (d *Dataset) Sources() []string {
	set := make(map[string]struct{})
	for _, r := range d.Rows {
		set[r.Source] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Split partitions the dataset into train and test subsets, stratified by
// source so every source keeps representation on both sides. Rows are
// shuffled per source with the seeded generator; a source with a single row
// stays in the training split. The split is deterministic for a given seed.
func Split(d *Dataset, testFraction float64, seed int64) (train, test *Dataset) {
	train = New(d.Metabs)
	test = New(d.Metabs)
	if testFraction <= 0 {
		train.Rows = append(train.Rows, d.Rows...)
		return train, test
	}
	bySource := make(map[string][]Row)
	for _, r := range d.Rows {
		bySource[r.Source] = append(bySource[r.Source], r)
	}
	sources := d.Sources()
	rng := rand.New(rand.NewSource(seed))
	for _, s := range sources {
		rows := append([]Row(nil), bySource[s]...)
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		n := int(math.Floor(testFraction * float64(len(rows))))
		if n >= len(rows) {
			n = len(rows) - 1
		}
		test.Rows = append(test.Rows, rows[:n]...)
		train.Rows = append(train.Rows, rows[n:]...)
	}
	return train, test
}
