// Package fibre converts raw fibre/field counts from phase-contrast
// microscopy into reportable airborne fibre concentrations.
package fibre

import (
	"math"

	"calcore/pkg/domain"
)

// Default graticule constants by filter mount diameter, used when a
// microscope has no passing graticule calibration on file. The 13mm value
// follows the effective filter area ratio against the 25mm mount.
const (
	DefaultConstant25 = 50000
	DefaultConstant13 = 17250
)

// Statistical floor and reporting threshold for counted fibres.
const (
	// FibreFloor is the minimum numerator count: below 10 fibres the count
	// is not statistically distinguishable from 10.
	FibreFloor = 10
	// ReportingThreshold is the concentration below which a low raw count is
	// reported as "<0.01" rather than a number.
	ReportingThreshold = 0.0149
)

// Reported labels that replace a numeric concentration.
const (
	LabelUncountable    = "UDD"
	LabelBelowThreshold = "<0.01"
)

// Inputs carries everything the concentration formula needs. Constant is the
// microscope graticule constant already resolved for the sample's filter
// diameter.
type Inputs struct {
	Constant      float64
	FibresCounted float64
	FieldsCounted int
	FlowRate      float64
	Minutes       float64
	// Uncountable marks a sample whose background dust prevents a valid
	// count; the numeric result is suppressed and UDD reported.
	Uncountable bool
}

// Valuation is the calculated concentration plus the label that downstream
// pass/fail decisions key on. The label, not the raw number, is authoritative.
type Valuation struct {
	Value    float64 `json:"value"`
	Reported string  `json:"reported"`
}

// ConstantForDiameter returns the default graticule constant for a filter
// mount size. Unknown sizes fall back to the 25mm constant.
func ConstantForDiameter(mm int) float64 {
	if mm == 13 {
		return DefaultConstant13
	}
	return DefaultConstant25
}

// Calculate applies the concentration formula
//
//	constant x (max(fibres, 10) / fields) x 1 / (flow x 1000 x minutes)
//
// rounded to 4 decimal places, then derives the reported label: UDD for
// uncountable samples; "<0.01" when the concentration is below the reporting
// threshold and the raw (non-floored) count is under the floor; otherwise the
// value rounded to 2 decimals.
func Calculate(in Inputs) (Valuation, error) {
	if err := validate(in); err != nil {
		return Valuation{}, err
	}
	if in.Uncountable {
		return Valuation{Reported: LabelUncountable}, nil
	}

	fibres := in.FibresCounted
	if fibres < FibreFloor {
		fibres = FibreFloor
	}
	concentration := in.Constant * (fibres / float64(in.FieldsCounted)) / (in.FlowRate * 1000 * in.Minutes)
	concentration = round(concentration, 4)

	if concentration < ReportingThreshold && in.FibresCounted < FibreFloor {
		return Valuation{Value: concentration, Reported: LabelBelowThreshold}, nil
	}
	return Valuation{Value: concentration, Reported: formatReported(concentration)}, nil
}

// BatchPasses reports whether a set of non-blank sample labels passes: every
// reported value must be "<0.01". Any numeric report, or a UDD, fails the
// batch.
func BatchPasses(labels []string) bool {
	for _, label := range labels {
		if label != LabelBelowThreshold {
			return false
		}
	}
	return true
}

func validate(in Inputs) error {
	switch {
	case in.FibresCounted < 0 || math.IsNaN(in.FibresCounted) || math.IsInf(in.FibresCounted, 0):
		return domain.ValidationError{Field: "fibres_counted", Reason: "must be a non-negative number"}
	case in.Uncountable:
		// Uncountable samples skip the numeric checks below; the grid may be
		// legitimately unparsable.
		return nil
	case in.FieldsCounted <= 0:
		return domain.ValidationError{Field: "fields_counted", Reason: "must be positive"}
	case in.Constant <= 0 || math.IsNaN(in.Constant):
		return domain.ValidationError{Field: "constant", Reason: "must be positive"}
	case in.FlowRate <= 0 || math.IsNaN(in.FlowRate):
		return domain.ValidationError{Field: "flow_rate", Reason: "must be positive"}
	case in.Minutes <= 0 || math.IsNaN(in.Minutes):
		return domain.ValidationError{Field: "minutes", Reason: "must be positive"}
	}
	return nil
}

func round(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(x*shift) / shift
}

func formatReported(concentration float64) string {
	return formatFloat(round(concentration, 2))
}
