package lattice

import (
	"fmt"
	"sort"

	"kinefit/pkg/ratelaw"
)

// Direction selects which way the stepwise search walks the lattice.
type Direction string

const (
	// Reverse starts from the full code and removes one complexity unit per
	// level.
	Reverse Direction = "reverse"
	// Forward starts from the minimal code and restores one complexity unit
	// per level.
	Forward Direction = "forward"
)

// Space holds the family-specific enumeration rules for one equation's
// removal-code lattice. It shares the equation's term indexing, so code
// entry i always refers to term i.
type Space struct {
	family   ratelaw.Family
	terms    []ratelaw.Term
	subTerm  int
	prodTerm int
}

// NewSpace derives the lattice rules from a built equation.
func NewSpace(eq *ratelaw.Equation) (*Space, error) {
	if eq == nil {
		return nil, fmt.Errorf("lattice: nil equation")
	}
	return &Space{
		family:   eq.Family(),
		terms:    eq.Terms(),
		subTerm:  eq.SubstrateTerm(),
		prodTerm: eq.ProductTerm(),
	}, nil
}

// Family reports the equation family the space enumerates for.
func (sp *Space) Family() ratelaw.Family { return sp.family }

// NumTerms reports the term count, which equals every code's length.
func (sp *Space) NumTerms() int { return len(sp.terms) }

// stateParams returns how many free parameters a term in the given state
// contributes.
func (sp *Space) stateParams(s State) int {
	if sp.family == ratelaw.FamilyMWC {
		switch s {
		case Present:
			return 2
		case Tied:
			return 1
		}
		return 0
	}
	if s == Present {
		return 1
	}
	return 0
}

// Complexity counts the surviving free binding parameters the code implies.
// Always-free parameters (Vmax, L) are shared by every code and excluded.
func (sp *Space) Complexity(c Code) int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		n += sp.stateParams(c.State(i))
	}
	return n
}

// MaxComplexity is the complexity of the full code.
func (sp *Space) MaxComplexity() int { return len(sp.terms) * sp.stateParams(Present) }

// MinComplexity is the lowest complexity of any valid code: a single
// surviving numerator constant.
func (sp *Space) MinComplexity() int { return 1 }

// FullCode returns the maximum-complexity code (every term present).
func (sp *Space) FullCode() Code {
	return NewCode(make([]State, len(sp.terms)))
}

// MinimalCode returns the lowest-complexity valid code: every term removed
// except the all-substrates numerator term, which is left at one free
// parameter (Present for QSSA, Tied for MWC).
func (sp *Space) MinimalCode() Code {
	states := make([]State, len(sp.terms))
	for i := range states {
		states[i] = Removed
	}
	if sp.family == ratelaw.FamilyMWC {
		states[sp.subTerm] = Tied
	} else {
		states[sp.subTerm] = Present
	}
	return NewCode(states)
}

// TieSource returns the index of the term a Tied entry copies its binding
// constant from: the lowest-index Present term of the same cardinality.
// Returns -1 when no such sibling exists. Only meaningful for QSSA; MWC ties
// resolve within the term's own active/inactive pair.
func (sp *Space) TieSource(c Code, i int) int {
	card := len(sp.terms[i].Metabs)
	for j := range sp.terms {
		if j != i && len(sp.terms[j].Metabs) == card && c.State(j) == Present {
			return j
		}
	}
	return -1
}

// Valid reports whether the code is a legal reduced variant:
//   - the numerator must survive: the all-substrates and (when present)
//     all-products terms may not both be removed;
//   - every QSSA Tied entry must have a resolvable tie source.
func (sp *Space) Valid(c Code) bool {
	if c.Len() != len(sp.terms) {
		return false
	}
	numerator := c.State(sp.subTerm) != Removed
	if sp.prodTerm >= 0 {
		numerator = numerator || c.State(sp.prodTerm) != Removed
	}
	if !numerator {
		return false
	}
	if sp.family == ratelaw.FamilyQSSA {
		for i := 0; i < c.Len(); i++ {
			if c.State(i) == Tied && sp.TieSource(c, i) < 0 {
				return false
			}
		}
	}
	return true
}

// downSteps lists the single-entry transitions that reduce complexity by
// exactly one. For QSSA a present term may be tied to a sibling or removed
// outright (both drop one parameter). For MWC the paired constants step
// Present -> Tied -> Removed so active/inactive states are only ever removed
// together, one parameter at a time.
func (sp *Space) downSteps(s State) []State {
	if sp.family == ratelaw.FamilyMWC {
		switch s {
		case Present:
			return []State{Tied}
		case Tied:
			return []State{Removed}
		}
		return nil
	}
	if s == Present {
		return []State{Tied, Removed}
	}
	return nil
}

// upSteps mirrors downSteps for the forward direction.
func (sp *Space) upSteps(s State) []State {
	if sp.family == ratelaw.FamilyMWC {
		switch s {
		case Removed:
			return []State{Tied}
		case Tied:
			return []State{Present}
		}
		return nil
	}
	if s == Tied || s == Removed {
		return []State{Present}
	}
	return nil
}

// Children generates every valid code reachable from c by one
// complexity-decreasing step.
func (sp *Space) Children(c Code) []Code {
	var out []Code
	for i := 0; i < c.Len(); i++ {
		for _, next := range sp.downSteps(c.State(i)) {
			child := c.with(i, next)
			if sp.Valid(child) {
				out = append(out, child)
			}
		}
	}
	return out
}

// Parents generates every valid code reachable from c by one
// complexity-increasing step.
func (sp *Space) Parents(c Code) []Code {
	var out []Code
	for i := 0; i < c.Len(); i++ {
		for _, next := range sp.upSteps(c.State(i)) {
			parent := c.with(i, next)
			if sp.Valid(parent) {
				out = append(out, parent)
			}
		}
	}
	return out
}

// Expand enumerates all codes at exactly the target complexity reachable
// from the frontier by one step in the given direction. Children reachable
// from multiple parents are deduplicated by code identity, and the result is
// ordered by key so enumeration is independent of frontier order. A target
// outside the valid complexity bounds yields an empty enumeration.
func (sp *Space) Expand(frontier []Code, dir Direction, target int) []Code {
	if target < sp.MinComplexity() || target > sp.MaxComplexity() {
		return nil
	}
	seen := make(map[string]Code)
	for _, c := range frontier {
		var next []Code
		if dir == Forward {
			next = sp.Parents(c)
		} else {
			next = sp.Children(c)
		}
		for _, n := range next {
			if sp.Complexity(n) != target {
				continue
			}
			seen[n.Key()] = n
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Code, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}
