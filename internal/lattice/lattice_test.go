package lattice

import (
	"testing"

	"kinefit/pkg/ratelaw"
)

func buildSpace(t *testing.T, spec ratelaw.EquationSpec) *Space {
	t.Helper()
	eq, err := ratelaw.New(spec)
	if err != nil {
		t.Fatalf("build equation: %v", err)
	}
	sp, err := NewSpace(eq)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	return sp
}

func qssaSpace(t *testing.T) *Space {
	return buildSpace(t, ratelaw.EquationSpec{
		Family:     ratelaw.FamilyQSSA,
		Substrates: []string{"S1", "S2"},
		Products:   []string{"P1"},
	})
}

func mwcSpace(t *testing.T) *Space {
	return buildSpace(t, ratelaw.EquationSpec{
		Family:     ratelaw.FamilyMWC,
		Substrates: []string{"S"},
		Products:   []string{"P"},
	})
}

func TestCode_KeyRoundTrip(t *testing.T) {
	c := NewCode([]State{Present, Tied, Removed, Present})
	key := c.Key()
	if key != "0120" {
		t.Fatalf("key = %q", key)
	}
	parsed, ok := ParseKey(key)
	if !ok {
		t.Fatalf("ParseKey rejected %q", key)
	}
	if parsed.Key() != key {
		t.Fatalf("round trip: %q != %q", parsed.Key(), key)
	}
	if _, ok := ParseKey("01x0"); ok {
		t.Fatalf("ParseKey accepted invalid digit")
	}
}

func TestChildren_ComplexityStepsByOne(t *testing.T) {
	for name, sp := range map[string]*Space{"qssa": qssaSpace(t), "mwc": mwcSpace(t)} {
		frontier := []Code{sp.FullCode()}
		for level := sp.MaxComplexity(); level > sp.MinComplexity(); level-- {
			next := make(map[string]Code)
			for _, c := range frontier {
				if got := sp.Complexity(c); got != level {
					t.Fatalf("%s: frontier code %s has complexity %d, want %d", name, c.Key(), got, level)
				}
				for _, child := range sp.Children(c) {
					if got := sp.Complexity(child); got != level-1 {
						t.Fatalf("%s: child %s of %s has complexity %d, want %d", name, child.Key(), c.Key(), got, level-1)
					}
					next[child.Key()] = child
				}
			}
			if len(next) == 0 {
				t.Fatalf("%s: no children below level %d", name, level)
			}
			frontier = frontier[:0]
			for _, c := range next {
				frontier = append(frontier, c)
			}
		}
	}
}

func TestExpand_DeduplicatesAndOrders(t *testing.T) {
	sp := qssaSpace(t)
	full := sp.FullCode()
	level := sp.MaxComplexity() - 1
	first := sp.Expand([]Code{full}, Reverse, level)
	if len(first) == 0 {
		t.Fatalf("no codes at level %d", level)
	}
	// A frontier listing the same parent repeatedly, in any order, must
	// enumerate the identical set.
	again := sp.Expand([]Code{full, full, full}, Reverse, level)
	if len(again) != len(first) {
		t.Fatalf("duplicate parents changed the enumeration: %d vs %d", len(again), len(first))
	}
	for i := range first {
		if first[i].Key() != again[i].Key() {
			t.Fatalf("enumeration differs at %d: %s vs %s", i, first[i].Key(), again[i].Key())
		}
	}
	seen := make(map[string]struct{}, len(first))
	for i, c := range first {
		if _, dup := seen[c.Key()]; dup {
			t.Fatalf("duplicate code %s", c.Key())
		}
		seen[c.Key()] = struct{}{}
		if i > 0 && first[i-1].Key() >= c.Key() {
			t.Fatalf("enumeration not ordered at %d", i)
		}
	}
}

func TestExpand_TargetOutOfBounds(t *testing.T) {
	sp := qssaSpace(t)
	if got := sp.Expand([]Code{sp.FullCode()}, Reverse, 0); len(got) != 0 {
		t.Fatalf("expected empty enumeration below minimum, got %d codes", len(got))
	}
	if got := sp.Expand([]Code{sp.MinimalCode()}, Forward, sp.MaxComplexity()+1); len(got) != 0 {
		t.Fatalf("expected empty enumeration above maximum, got %d codes", len(got))
	}
}

func TestValid_NumeratorRule(t *testing.T) {
	sp := qssaSpace(t)
	states := make([]State, sp.NumTerms())
	for i := range states {
		states[i] = Present
	}
	// Removing both the all-substrates and all-products terms leaves no
	// surviving numerator.
	sub, prod := -1, -1
	for i, term := range qssaTerms(t) {
		switch term {
		case "S1_S2":
			sub = i
		case "P1":
			prod = i
		}
	}
	if sub < 0 || prod < 0 {
		t.Fatalf("term layout changed: sub=%d prod=%d", sub, prod)
	}
	states[sub] = Removed
	if !sp.Valid(NewCode(states)) {
		t.Fatalf("removing only the substrate term must stay valid")
	}
	states[prod] = Removed
	if sp.Valid(NewCode(states)) {
		t.Fatalf("removing both numerator terms must be invalid")
	}
}

func qssaTerms(t *testing.T) []string {
	t.Helper()
	eq, err := ratelaw.New(ratelaw.EquationSpec{
		Family:     ratelaw.FamilyQSSA,
		Substrates: []string{"S1", "S2"},
		Products:   []string{"P1"},
	})
	if err != nil {
		t.Fatalf("build equation: %v", err)
	}
	terms := eq.Terms()
	names := make([]string, len(terms))
	for i, term := range terms {
		names[i] = term.Name
	}
	return names
}

func TestValid_TieNeedsSource(t *testing.T) {
	sp := qssaSpace(t)
	states := make([]State, sp.NumTerms())
	for i := range states {
		states[i] = Removed
	}
	// Tie a singleton term with no Present sibling of the same cardinality.
	states[0] = Tied
	sub := -1
	for i, term := range qssaTerms(t) {
		if term == "S1_S2" {
			sub = i
		}
	}
	states[sub] = Present
	if sp.Valid(NewCode(states)) {
		t.Fatalf("tie without a same-cardinality source must be invalid")
	}
	// A Present singleton sibling makes the tie resolvable.
	states[1] = Present
	c := NewCode(states)
	if !sp.Valid(c) {
		t.Fatalf("tie with a present sibling must be valid")
	}
	if src := sp.TieSource(c, 0); src != 1 {
		t.Fatalf("tie source = %d, want 1", src)
	}
}

func TestMWC_StatesStepThroughTied(t *testing.T) {
	sp := mwcSpace(t)
	full := sp.FullCode()
	for _, child := range sp.Children(full) {
		for i := 0; i < child.Len(); i++ {
			if child.State(i) == Removed {
				t.Fatalf("MWC child %s removed a term in one step", child.Key())
			}
		}
	}
	if got, want := sp.MaxComplexity(), 2*sp.NumTerms(); got != want {
		t.Fatalf("max complexity = %d, want %d", got, want)
	}
}

func TestMinimalCode_IsValidAtMinComplexity(t *testing.T) {
	for name, sp := range map[string]*Space{"qssa": qssaSpace(t), "mwc": mwcSpace(t)} {
		c := sp.MinimalCode()
		if !sp.Valid(c) {
			t.Fatalf("%s: minimal code %s invalid", name, c.Key())
		}
		if got := sp.Complexity(c); got != sp.MinComplexity() {
			t.Fatalf("%s: minimal code complexity = %d, want %d", name, got, sp.MinComplexity())
		}
		if len(sp.Children(c)) != 0 {
			t.Fatalf("%s: minimal code should have no children", name)
		}
	}
}

func TestParents_MirrorChildren(t *testing.T) {
	sp := qssaSpace(t)
	full := sp.FullCode()
	for _, child := range sp.Children(full) {
		found := false
		for _, parent := range sp.Parents(child) {
			if parent.Key() == full.Key() {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("child %s does not list %s among parents", child.Key(), full.Key())
		}
	}
}
