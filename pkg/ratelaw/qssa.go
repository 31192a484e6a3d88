package ratelaw

// NewQSSA builds the general quasi-steady-state rate equation
//
//	rate = Vmax * (prodS/K_sub - prodP/(K_prod*Keq)) / (1 + sum_T prodT/K_T)
//
// where the sum runs over every binding-polynomial term. Parameters are
// "Vmax" followed by one binding constant "K_<term>" per term. A binding
// constant forced to +Inf makes its term vanish exactly, which is how the
// substitution engine removes terms without touching this function.
func NewQSSA(spec EquationSpec) (*Equation, error) {
	spec.Family = FamilyQSSA
	e, err := newBase(spec)
	if err != nil {
		return nil, err
	}

	params := make([]string, 0, 1+len(e.terms))
	params = append(params, "Vmax")
	termParams := make([][]int, len(e.terms))
	for i, t := range e.terms {
		termParams[i] = []int{len(params)}
		params = append(params, "K_"+t.Name)
	}
	e.params = params
	e.termParams = termParams
	e.fixed = []int{0}
	e.indexParams()

	terms := e.terms
	sub, prod := e.subTerm, e.prodTerm
	e.rate = func(conc, p []float64, keq float64) float64 {
		z := 1.0
		for i := range terms {
			z += terms[i].concentration(conc) / p[termParams[i][0]]
		}
		num := p[0] * terms[sub].concentration(conc) / p[termParams[sub][0]]
		if prod >= 0 {
			num -= p[0] * terms[prod].concentration(conc) / (p[termParams[prod][0]] * keq)
		}
		return num / z
	}
	return e, nil
}
