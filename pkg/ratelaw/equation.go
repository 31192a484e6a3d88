package ratelaw

import (
	"errors"
	"fmt"
)

// ErrNameMismatch reports a metabolite or parameter mapping whose key set
// does not match the equation's declared name tuples.
var ErrNameMismatch = errors.New("ratelaw: name mismatch")

// Equation is an immutable general rate law. It maps ordered metabolite
// concentrations and parameter values to a reaction rate; the ordered name
// tuples describe the inputs it expects.
type Equation struct {
	family Family
	spec   EquationSpec

	metabs []string
	params []string
	terms  []Term

	// termParams[i] lists the parameter indices owned by term i (one binding
	// constant for QSSA, the active/inactive pair for MWC, active first).
	termParams [][]int
	// fixed lists parameter indices that exist in every reduced variant
	// (Vmax, and L for MWC).
	fixed []int

	subTerm  int // term combining all substrates
	prodTerm int // term combining all products; -1 when irreversible

	rate func(conc, params []float64, keq float64) float64

	metabIndex map[string]int
	paramIndex map[string]int
}

// Family reports the equation family.
func (e *Equation) Family() Family { return e.family }

// Spec returns the normalized specification the equation was built from.
func (e *Equation) Spec() EquationSpec { return e.spec }

// MetabNames returns the ordered metabolite name tuple.
func (e *Equation) MetabNames() []string { return append([]string(nil), e.metabs...) }

// ParamNames returns the ordered parameter name tuple.
func (e *Equation) ParamNames() []string { return append([]string(nil), e.params...) }

// Terms returns the binding-polynomial term list.
func (e *Equation) Terms() []Term { return append([]Term(nil), e.terms...) }

// NumTerms reports the binding-polynomial term count.
func (e *Equation) NumTerms() int { return len(e.terms) }

// TermParams returns the parameter indices owned by term i.
func (e *Equation) TermParams(i int) []int { return append([]int(nil), e.termParams[i]...) }

// FixedParams returns the parameter indices present in every reduced variant.
func (e *Equation) FixedParams() []int { return append([]int(nil), e.fixed...) }

// SubstrateTerm returns the index of the term combining all substrates.
func (e *Equation) SubstrateTerm() int { return e.subTerm }

// ProductTerm returns the index of the term combining all products, or -1
// for an irreversible equation.
func (e *Equation) ProductTerm() int { return e.prodTerm }

// MetabIndex resolves a metabolite name to its tuple position.
func (e *Equation) MetabIndex(name string) (int, bool) {
	i, ok := e.metabIndex[name]
	return i, ok
}

// ParamIndex resolves a parameter name to its tuple position.
func (e *Equation) ParamIndex(name string) (int, bool) {
	i, ok := e.paramIndex[name]
	return i, ok
}

// RateAt evaluates the rate for concentration and parameter vectors already
// in the equation's declared order. This is the hot path used per data row.
func (e *Equation) RateAt(conc, params []float64, keq float64) (float64, error) {
	if len(conc) != len(e.metabs) {
		return 0, fmt.Errorf("%w: %d concentrations for %d metabolites", ErrNameMismatch, len(conc), len(e.metabs))
	}
	if len(params) != len(e.params) {
		return 0, fmt.Errorf("%w: %d values for %d parameters", ErrNameMismatch, len(params), len(e.params))
	}
	return e.rate(conc, params, keq), nil
}

// Rate evaluates the rate from named mappings, validating both key sets
// against the declared tuples so a wrong or missing key fails fast.
func (e *Equation) Rate(metabs map[string]float64, params map[string]float64, keq float64) (float64, error) {
	conc := make([]float64, len(e.metabs))
	for i, name := range e.metabs {
		v, ok := metabs[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing metabolite %q", ErrNameMismatch, name)
		}
		conc[i] = v
	}
	vals := make([]float64, len(e.params))
	for i, name := range e.params {
		v, ok := params[name]
		if !ok {
			return 0, fmt.Errorf("%w: missing parameter %q", ErrNameMismatch, name)
		}
		vals[i] = v
	}
	return e.rate(conc, vals, keq), nil
}

// New builds the general equation for the spec's declared family.
func New(spec EquationSpec) (*Equation, error) {
	switch spec.Family {
	case FamilyQSSA:
		return NewQSSA(spec)
	case FamilyMWC:
		return NewMWC(spec)
	default:
		return nil, fmt.Errorf("%w: unknown family %q", ErrInvalidSpec, spec.Family)
	}
}

// newBase assembles the family-independent parts of an equation.
func newBase(spec EquationSpec) (*Equation, error) {
	norm, err := spec.normalized()
	if err != nil {
		return nil, err
	}
	metabs := norm.Metabolites()
	terms := EnumerateTerms(metabs, norm.BindingOrder)

	sub := findTerm(terms, ascending(0, len(norm.Substrates)))
	if sub < 0 {
		return nil, fmt.Errorf("%w: no term combines all substrates", ErrInvalidSpec)
	}
	prod := -1
	if len(norm.Products) > 0 {
		prod = findTerm(terms, ascending(len(norm.Substrates), len(norm.Products)))
		if prod < 0 {
			return nil, fmt.Errorf("%w: no term combines all products", ErrInvalidSpec)
		}
	}

	e := &Equation{
		family:     norm.Family,
		spec:       norm,
		metabs:     metabs,
		terms:      terms,
		subTerm:    sub,
		prodTerm:   prod,
		metabIndex: make(map[string]int, len(metabs)),
	}
	for i, name := range metabs {
		e.metabIndex[name] = i
	}
	return e, nil
}

func (e *Equation) indexParams() {
	e.paramIndex = make(map[string]int, len(e.params))
	for i, name := range e.params {
		e.paramIndex[name] = i
	}
}
