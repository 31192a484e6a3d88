package ratelaw

import "strings"

// Term is one additive term of the binding polynomial: the combination of
// simultaneously bound metabolites it represents. The zero-order constant
// term of the polynomial is implicit and never appears here.
//
// The term list produced by EnumerateTerms is the single source of truth for
// "which terms exist": equation construction, parameter naming and
// removal-code enumeration all index into the same slice.
type Term struct {
	Index  int
	Metabs []int // ascending indices into the metabolite tuple
	Name   string
}

// concentration returns the product of the concentrations of the term's
// metabolites.
func (t Term) concentration(conc []float64) float64 {
	p := 1.0
	for _, m := range t.Metabs {
		p *= conc[m]
	}
	return p
}

// EnumerateTerms lists every binding-polynomial term for the given metabolite
// tuple: all subsets of size 1..order, ordered by subset size and then
// lexicographically by metabolite index. The ordering is deterministic so the
// same spec always yields the same term indexing.
func EnumerateTerms(metabs []string, order int) []Term {
	var terms []Term
	for size := 1; size <= order && size <= len(metabs); size++ {
		subset := make([]int, size)
		var rec func(start, depth int)
		rec = func(start, depth int) {
			if depth == size {
				picked := make([]int, size)
				copy(picked, subset)
				names := make([]string, size)
				for i, m := range picked {
					names[i] = metabs[m]
				}
				terms = append(terms, Term{
					Index:  len(terms),
					Metabs: picked,
					Name:   strings.Join(names, "_"),
				})
				return
			}
			for m := start; m <= len(metabs)-(size-depth); m++ {
				subset[depth] = m
				rec(m+1, depth+1)
			}
		}
		rec(0, 0)
	}
	return terms
}

// findTerm returns the index of the term exactly matching want, or -1.
func findTerm(terms []Term, want []int) int {
	for _, t := range terms {
		if len(t.Metabs) != len(want) {
			continue
		}
		match := true
		for i := range want {
			if t.Metabs[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return t.Index
		}
	}
	return -1
}

func ascending(from, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = from + i
	}
	return out
}
