package core

import "calcore/pkg/domain"

// FrequencySource names where a resolved calibration interval came from.
type FrequencySource string

// Resolution sources in priority order.
const (
	SourceConfig      FrequencySource = "config"
	SourceOverride    FrequencySource = "override"
	SourceTypeDefault FrequencySource = "type_default"
	SourceNone        FrequencySource = "none"
)

// Frequency is a resolved calibration interval. Indefinite means no due date
// is ever computed for the instrument; that is a valid terminal state, not an
// error.
type Frequency struct {
	Months     int
	Indefinite bool
	Source     FrequencySource
}

// typeDefaultMonths holds hard fallbacks for the instrument types whose
// record schema defines one. Types absent here resolve to indefinite when no
// config or override exists.
var typeDefaultMonths = map[domain.InstrumentType]int{
	domain.InstrumentFumeCupboard: 60,
}

// ResolveFrequency resolves the calibration interval for an instrument.
// Resolution order, first match wins: the type's FrequencyConfig (converted
// to months), the instrument-level override, the per-type hard fallback.
// Pure lookup; callers persist the chosen value where needed.
func ResolveFrequency(config *domain.FrequencyConfig, instrument domain.Instrument) Frequency {
	if config != nil && config.Value > 0 {
		return Frequency{Months: config.Months(), Source: SourceConfig}
	}
	if instrument.FrequencyMonths != nil && *instrument.FrequencyMonths > 0 {
		return Frequency{Months: *instrument.FrequencyMonths, Source: SourceOverride}
	}
	if months, ok := typeDefaultMonths[instrument.Type]; ok {
		return Frequency{Months: months, Source: SourceTypeDefault}
	}
	return Frequency{Indefinite: true, Source: SourceNone}
}
