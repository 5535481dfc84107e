package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Grid dimensions for phase-contrast fibre counting: 5 rows of 20 graticule
// fields each.
const (
	GridRows = 5
	GridCols = 20
)

// DustLevel classifies background dust on a counted sample.
type DustLevel string

// Background dust classifications.
const (
	DustPass   DustLevel = "pass"
	DustMedium DustLevel = "medium"
	DustHigh   DustLevel = "high"
	DustFail   DustLevel = "fail"
)

// FieldCount is one cell of the counting grid: empty, a non-negative fibre
// count, or a half unit. A half contributes 0.5 to the fibre total and 1 to
// the field total; a numeric cell contributes its value and 1 field.
//
// JSON encoding matches the recorded sheet values: null for empty, a number,
// or the string "half".
type FieldCount struct {
	Defined bool
	Half    bool
	Fibres  float64
}

// EmptyField returns an unset cell.
func EmptyField() FieldCount { return FieldCount{} }

// HalfField returns a half-unit cell.
func HalfField() FieldCount { return FieldCount{Defined: true, Half: true} }

// Fibre returns a numeric cell.
func Fibre(count float64) FieldCount { return FieldCount{Defined: true, Fibres: count} }

// Value returns the fibre contribution of the cell.
func (f FieldCount) Value() float64 {
	if !f.Defined {
		return 0
	}
	if f.Half {
		return 0.5
	}
	return f.Fibres
}

// Valid reports whether the cell holds an acceptable value.
func (f FieldCount) Valid() bool {
	if !f.Defined || f.Half {
		return true
	}
	return f.Fibres >= 0 && !math.IsNaN(f.Fibres) && !math.IsInf(f.Fibres, 0)
}

// MarshalJSON encodes the cell as null, a number, or "half".
func (f FieldCount) MarshalJSON() ([]byte, error) {
	switch {
	case !f.Defined:
		return []byte("null"), nil
	case f.Half:
		return json.Marshal("half")
	default:
		return json.Marshal(f.Fibres)
	}
}

// UnmarshalJSON decodes null, a number, or the string "half".
func (f *FieldCount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = FieldCount{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "half" {
			*f = HalfField()
			return nil
		}
		return fmt.Errorf("field count: unknown marker %q", s)
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("field count: %w", err)
	}
	*f = Fibre(n)
	return nil
}

// CountGrid is the 5x20 matrix of per-field fibre counts.
type CountGrid [GridRows][GridCols]FieldCount

// Totals returns the fibre and field totals as a pure function of the grid.
func (g CountGrid) Totals() (fibres float64, fields int) {
	for r := 0; r < GridRows; r++ {
		for c := 0; c < GridCols; c++ {
			cell := g[r][c]
			if !cell.Defined {
				continue
			}
			fibres += cell.Value()
			fields++
		}
	}
	return fibres, fields
}

// SampleAnalysis records a fibre-counting session against one air sample or
// blank. Totals are derived, never stored authoritatively.
type SampleAnalysis struct {
	Base
	SampleRef    string    `json:"sample_ref"`
	MicroscopeID string    `json:"microscope_id"`
	Blank        bool      `json:"blank"`
	Grid         CountGrid `json:"grid"`
	// Categorical session flags recorded by the analyst.
	EdgePass         bool      `json:"edge_pass"`
	DistributionPass bool      `json:"distribution_pass"`
	Dust             DustLevel `json:"dust"`
	// UncountableDust marks a sample whose background dust prevents a valid
	// count; concentration is reported as UDD.
	UncountableDust bool `json:"uncountable_dust"`
	// Sampling parameters used by the concentration calculation.
	FilterDiameterMM int     `json:"filter_diameter_mm"`
	FlowRate         float64 `json:"flow_rate"`
	Minutes          float64 `json:"minutes"`
	OperatorID       string  `json:"operator_id"`
}

// FibresCounted returns the derived fibre total.
func (s SampleAnalysis) FibresCounted() float64 {
	fibres, _ := s.Grid.Totals()
	return fibres
}

// FieldsCounted returns the derived field total.
func (s SampleAnalysis) FieldsCounted() int {
	_, fields := s.Grid.Totals()
	return fields
}
