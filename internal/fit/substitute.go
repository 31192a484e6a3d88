// Package fit contains the numerics of candidate evaluation: the parameter
// substitution engine, the weighted log-ratio loss and the multi-start
// nonlinear fitter.
package fit

import (
	"fmt"
	"math"

	"kinefit/internal/lattice"
	"kinefit/pkg/ratelaw"
)

// Unbound is the sentinel standing in for an infinite binding constant;
// dividing by it makes the term vanish exactly.
var Unbound = math.Inf(1)

// Substitution maps a removal code plus a raw free-parameter vector onto the
// full ordered parameter vector of the general rate equation. It is pure:
// the same code and vector always produce the same result.
type Substitution struct {
	eq    *ratelaw.Equation
	space *lattice.Space
	code  lattice.Code

	freeNames []string
	freeIdx   []int // positions in the general parameter tuple, free order
	tieSource []int // per term, QSSA tie source term or -1
}

// NewSubstitution derives the free-parameter layout implied by the code.
// Always-free parameters (Vmax, and L for MWC) come first, then the
// surviving binding constants in term order.
func NewSubstitution(eq *ratelaw.Equation, space *lattice.Space, code lattice.Code) (*Substitution, error) {
	if code.Len() != eq.NumTerms() {
		return nil, fmt.Errorf("fit: code length %d for %d terms", code.Len(), eq.NumTerms())
	}
	if !space.Valid(code) {
		return nil, fmt.Errorf("fit: invalid removal code %s", code.Key())
	}

	s := &Substitution{eq: eq, space: space, code: code}
	names := eq.ParamNames()
	for _, p := range eq.FixedParams() {
		s.freeIdx = append(s.freeIdx, p)
		s.freeNames = append(s.freeNames, names[p])
	}
	mwc := eq.Family() == ratelaw.FamilyMWC
	s.tieSource = make([]int, code.Len())
	for t := 0; t < code.Len(); t++ {
		s.tieSource[t] = -1
		tp := eq.TermParams(t)
		switch code.State(t) {
		case lattice.Present:
			for _, p := range tp {
				s.freeIdx = append(s.freeIdx, p)
				s.freeNames = append(s.freeNames, names[p])
			}
		case lattice.Tied:
			if mwc {
				// Active-state constant stays free; the inactive one copies it.
				s.freeIdx = append(s.freeIdx, tp[0])
				s.freeNames = append(s.freeNames, names[tp[0]])
			} else {
				src := space.TieSource(code, t)
				if src < 0 {
					return nil, fmt.Errorf("fit: unresolvable tie for term %d in %s", t, code.Key())
				}
				s.tieSource[t] = src
			}
		}
	}
	return s, nil
}

// Code returns the removal code the substitution was built for.
func (s *Substitution) Code() lattice.Code { return s.code }

// Dim reports the free-parameter count, the dimensionality the fitter
// optimizes over.
func (s *Substitution) Dim() int { return len(s.freeIdx) }

// FreeNames returns the names of the free parameters in optimizer order.
func (s *Substitution) FreeNames() []string { return append([]string(nil), s.freeNames...) }

// Apply fills the general equation's full ordered parameter vector from the
// free values: free slots by position, tied slots copied from their canonical
// source, removed slots set to the infinity sentinel.
func (s *Substitution) Apply(free []float64) ([]float64, error) {
	if len(free) != len(s.freeIdx) {
		return nil, fmt.Errorf("fit: %d free values for dimension %d", len(free), len(s.freeIdx))
	}
	full := make([]float64, len(s.eq.ParamNames()))
	for i := range full {
		full[i] = Unbound
	}
	for i, p := range s.freeIdx {
		full[p] = free[i]
	}
	mwc := s.eq.Family() == ratelaw.FamilyMWC
	for t := 0; t < s.code.Len(); t++ {
		if s.code.State(t) != lattice.Tied {
			continue
		}
		tp := s.eq.TermParams(t)
		if mwc {
			full[tp[1]] = full[tp[0]]
		} else {
			full[tp[0]] = full[s.eq.TermParams(s.tieSource[t])[0]]
		}
	}
	return full, nil
}

// Named returns the full parameter mapping keyed by the general equation's
// parameter names; the key set always equals ParamNames, so the mapping can
// be passed unchanged into the unmodified general rate law.
func (s *Substitution) Named(free []float64) (map[string]float64, error) {
	full, err := s.Apply(free)
	if err != nil {
		return nil, err
	}
	names := s.eq.ParamNames()
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = full[i]
	}
	return out, nil
}
