package ratelaw

import "math"

// NewMWC builds the general Monod-Wyman-Changeux rate equation for an enzyme
// with n sites:
//
//	rate = Vmax * (prodS/Ka_sub - prodP/(Ka_prod*Keq)) * Za^(n-1) / (Za^n + L*Zi^n)
//
// with Za = 1 + sum_T prodT/Ka_T over the active-state binding constants and
// Zi the same sum over the inactive-state constants. Parameters are "Vmax",
// the allosteric constant "L", then the registered pair "Ka_<term>",
// "Ki_<term>" for every term; catalysis happens only in the active state, so
// the numerator uses active-state constants.
func NewMWC(spec EquationSpec) (*Equation, error) {
	spec.Family = FamilyMWC
	e, err := newBase(spec)
	if err != nil {
		return nil, err
	}

	params := make([]string, 0, 2+2*len(e.terms))
	params = append(params, "Vmax", "L")
	termParams := make([][]int, len(e.terms))
	for i, t := range e.terms {
		termParams[i] = []int{len(params), len(params) + 1}
		params = append(params, "Ka_"+t.Name, "Ki_"+t.Name)
	}
	e.params = params
	e.termParams = termParams
	e.fixed = []int{0, 1}
	e.indexParams()

	terms := e.terms
	sub, prod := e.subTerm, e.prodTerm
	n := float64(e.spec.Sites)
	e.rate = func(conc, p []float64, keq float64) float64 {
		za, zi := 1.0, 1.0
		for i := range terms {
			c := terms[i].concentration(conc)
			za += c / p[termParams[i][0]]
			zi += c / p[termParams[i][1]]
		}
		cat := terms[sub].concentration(conc) / p[termParams[sub][0]]
		if prod >= 0 {
			cat -= terms[prod].concentration(conc) / (p[termParams[prod][0]] * keq)
		}
		return p[0] * cat * math.Pow(za, n-1) / (math.Pow(za, n) + p[1]*math.Pow(zi, n))
	}
	return e, nil
}
