// Package lattice represents and enumerates the discrete space of
// removal codes: the ways a general rate equation's binding-polynomial
// parameters can be constrained to limiting values. Pure combinatorics,
// no numerics.
package lattice

// State is one entry of a removal code, describing what happens to the
// binding constant(s) of a single term.
type State uint8

const (
	// Present leaves the term's constants free for fitting.
	Present State = iota
	// Tied collapses the term onto a sibling: for QSSA the binding constant
	// is copied from the canonical same-cardinality sibling; for MWC the
	// inactive-state constant is set equal to the active-state constant.
	Tied
	// Removed forces the term's constants to the infinity sentinel so the
	// term vanishes from the polynomial.
	Removed
)

var stateDigits = [...]byte{'0', '1', '2'}

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Tied:
		return "tied"
	case Removed:
		return "removed"
	}
	return "invalid"
}

// Code is an immutable removal code: one State per binding-polynomial term,
// indexed identically to the equation's term list. Codes are generated, never
// mutated, and their Key is the identity used for deduplication and result
// tables.
type Code struct {
	states []State
}

// NewCode copies states into an immutable Code.
func NewCode(states []State) Code {
	cp := make([]State, len(states))
	copy(cp, states)
	return Code{states: cp}
}

// Len returns the number of term entries.
func (c Code) Len() int { return len(c.states) }

// State returns the entry for term i.
func (c Code) State(i int) State { return c.states[i] }

// States returns a copy of all entries.
func (c Code) States() []State {
	cp := make([]State, len(c.states))
	copy(cp, c.states)
	return cp
}

// Key returns the canonical digit-string identity of the code.
func (c Code) Key() string {
	b := make([]byte, len(c.states))
	for i, s := range c.states {
		b[i] = stateDigits[s]
	}
	return string(b)
}

// with returns a new Code equal to c except entry i is set to s.
func (c Code) with(i int, s State) Code {
	cp := make([]State, len(c.states))
	copy(cp, c.states)
	cp[i] = s
	return Code{states: cp}
}

// ParseKey rebuilds a Code from its Key representation.
func ParseKey(key string) (Code, bool) {
	states := make([]State, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '0':
			states[i] = Present
		case '1':
			states[i] = Tied
		case '2':
			states[i] = Removed
		default:
			return Code{}, false
		}
	}
	return Code{states: states}, true
}
