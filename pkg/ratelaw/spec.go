// Package ratelaw builds general enzyme rate equations from a declarative
// substrate/product/regulator specification. A built Equation is an immutable
// value pairing a rate function with the ordered metabolite and parameter
// name tuples it expects; callers never introspect the equation internals.
package ratelaw

import (
	"errors"
	"fmt"
)

// Family identifies the general rate-equation family.
type Family string

const (
	// FamilyQSSA is the quasi-steady-state-approximation family; binding
	// polynomial terms are independent of each other.
	FamilyQSSA Family = "qssa"
	// FamilyMWC is the Monod-Wyman-Changeux allosteric family; every binding
	// term carries paired active-state and inactive-state constants.
	FamilyMWC Family = "mwc"
)

// Limits on the declarative specification. Larger reactions produce binding
// polynomials whose term count makes the removal-code lattice intractable.
const (
	MaxSubstrates = 3
	MaxProducts   = 3
	MaxRegulators = 4
	MaxSites      = 8
)

// ErrInvalidSpec wraps all specification validation failures.
var ErrInvalidSpec = errors.New("ratelaw: invalid equation spec")

// EquationSpec declares the reaction an equation is built for.
type EquationSpec struct {
	Family     Family
	Substrates []string
	Products   []string // may be empty for an irreversible reaction
	Regulators []string

	// BindingOrder caps how many metabolites a binding-polynomial term may
	// combine. Zero means max(len(Substrates), len(Products), 1).
	BindingOrder int

	// Sites is the MWC subunit count; ignored for QSSA. Zero means 2.
	Sites int
}

// Metabolites returns the ordered metabolite tuple: substrates, then
// products, then regulators.
func (s EquationSpec) Metabolites() []string {
	out := make([]string, 0, len(s.Substrates)+len(s.Products)+len(s.Regulators))
	out = append(out, s.Substrates...)
	out = append(out, s.Products...)
	out = append(out, s.Regulators...)
	return out
}

// normalized applies defaults and validates. All configuration errors are
// reported here, before any fitting work can begin.
func (s EquationSpec) normalized() (EquationSpec, error) {
	switch s.Family {
	case FamilyQSSA, FamilyMWC:
	default:
		return s, fmt.Errorf("%w: unknown family %q", ErrInvalidSpec, s.Family)
	}
	if len(s.Substrates) == 0 {
		return s, fmt.Errorf("%w: at least one substrate required", ErrInvalidSpec)
	}
	if len(s.Substrates) > MaxSubstrates {
		return s, fmt.Errorf("%w: %d substrates exceeds supported maximum %d", ErrInvalidSpec, len(s.Substrates), MaxSubstrates)
	}
	if len(s.Products) > MaxProducts {
		return s, fmt.Errorf("%w: %d products exceeds supported maximum %d", ErrInvalidSpec, len(s.Products), MaxProducts)
	}
	if len(s.Regulators) > MaxRegulators {
		return s, fmt.Errorf("%w: %d regulators exceeds supported maximum %d", ErrInvalidSpec, len(s.Regulators), MaxRegulators)
	}
	seen := make(map[string]struct{})
	for _, name := range s.Metabolites() {
		if name == "" {
			return s, fmt.Errorf("%w: empty metabolite name", ErrInvalidSpec)
		}
		if _, dup := seen[name]; dup {
			return s, fmt.Errorf("%w: duplicate metabolite name %q", ErrInvalidSpec, name)
		}
		seen[name] = struct{}{}
	}

	minOrder := len(s.Substrates)
	if len(s.Products) > minOrder {
		minOrder = len(s.Products)
	}
	if s.BindingOrder == 0 {
		s.BindingOrder = minOrder
	}
	if s.BindingOrder < minOrder {
		return s, fmt.Errorf("%w: binding order %d below substrate/product count %d", ErrInvalidSpec, s.BindingOrder, minOrder)
	}
	if total := len(seen); s.BindingOrder > total {
		return s, fmt.Errorf("%w: binding order %d exceeds metabolite count %d", ErrInvalidSpec, s.BindingOrder, total)
	}

	if s.Family == FamilyMWC {
		if s.Sites == 0 {
			s.Sites = 2
		}
		if s.Sites < 1 || s.Sites > MaxSites {
			return s, fmt.Errorf("%w: site count %d outside [1, %d]", ErrInvalidSpec, s.Sites, MaxSites)
		}
	}
	return s, nil
}
