package fibre

import "calcore/pkg/domain"

// Uncountable reports whether an analysis cannot yield a valid count: either
// the analyst flagged it, or background dust was classified as fail.
func Uncountable(a domain.SampleAnalysis) bool {
	return a.UncountableDust || a.Dust == domain.DustFail
}

// FromAnalysis assembles calculator inputs from a stored analysis and a
// resolved graticule constant. Totals come from the grid, never from stored
// fields.
func FromAnalysis(a domain.SampleAnalysis, constant float64) Inputs {
	fibres, fields := a.Grid.Totals()
	return Inputs{
		Constant:      constant,
		FibresCounted: fibres,
		FieldsCounted: fields,
		FlowRate:      a.FlowRate,
		Minutes:       a.Minutes,
		Uncountable:   Uncountable(a),
	}
}
