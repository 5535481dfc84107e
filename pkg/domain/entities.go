// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by calcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityInstrument identifies a tracked laboratory instrument record.
	EntityInstrument EntityType = "instrument"
	// EntityCalibrationRecord identifies an active calibration event record.
	EntityCalibrationRecord EntityType = "calibration_record"
	// EntityArchivedCalibration identifies a retired calibration record copy.
	EntityArchivedCalibration EntityType = "archived_calibration"
	// EntityFrequencyConfig identifies a per-type calibration frequency entry.
	EntityFrequencyConfig EntityType = "frequency_config"
	// EntitySampleAnalysis identifies a fibre-count sample analysis record.
	EntitySampleAnalysis EntityType = "sample_analysis"
)

// InstrumentType enumerates the closed set of instrument categories tracked
// for calibration compliance.
type InstrumentType string

// Canonical instrument types. The set is closed: records referencing an
// unknown type are rejected at validation.
const (
	InstrumentAirPump      InstrumentType = "air_pump"
	InstrumentFlowmeter    InstrumentType = "flowmeter"
	InstrumentBalance      InstrumentType = "balance"
	InstrumentMicroscope   InstrumentType = "microscope"
	InstrumentGraticule    InstrumentType = "graticule"
	InstrumentFumeCupboard InstrumentType = "fume_cupboard"
	InstrumentOven         InstrumentType = "oven"
	InstrumentPHMeter      InstrumentType = "ph_meter"
)

// InstrumentTypes lists every recognised instrument type.
var InstrumentTypes = []InstrumentType{
	InstrumentAirPump,
	InstrumentFlowmeter,
	InstrumentBalance,
	InstrumentMicroscope,
	InstrumentGraticule,
	InstrumentFumeCupboard,
	InstrumentOven,
	InstrumentPHMeter,
}

// KnownInstrumentType reports whether t is part of the closed enumeration.
func KnownInstrumentType(t InstrumentType) bool {
	for _, known := range InstrumentTypes {
		if known == t {
			return true
		}
	}
	return false
}

// StatusFlag is the manually maintained operational flag stored on an
// instrument. It is an input to status evaluation, not the evaluated status.
type StatusFlag string

// Manual status flags as entered by operators.
const (
	FlagActive         StatusFlag = "active"
	FlagCalibrationDue StatusFlag = "calibration-due"
	FlagOutOfService   StatusFlag = "out-of-service"
)

// InstrumentStatus is the derived operational classification of an instrument.
type InstrumentStatus string

// Evaluated instrument statuses. Recomputed fresh on every read.
const (
	StatusActive             InstrumentStatus = "Active"
	StatusCalibrationOverdue InstrumentStatus = "Calibration Overdue"
	StatusOutOfService       InstrumentStatus = "Out-of-Service"
)

// CalibrationOutcome records whether a calibration event passed.
type CalibrationOutcome string

// Calibration outcomes.
const (
	OutcomePass CalibrationOutcome = "Pass"
	OutcomeFail CalibrationOutcome = "Fail"
)

// FrequencyUnit qualifies the numeric value of a FrequencyConfig.
type FrequencyUnit string

// Frequency units.
const (
	UnitMonths FrequencyUnit = "months"
	UnitYears  FrequencyUnit = "years"
)

// ArchiveStrategy selects how superseded calibration records are retired.
type ArchiveStrategy string

// Retirement strategies. Both are first-class; restore exists only for SoftTag.
const (
	// StrategyCopyDelete copies the record into the archive bucket and
	// deletes the original from the active set.
	StrategyCopyDelete ArchiveStrategy = "copy_delete"
	// StrategySoftTag marks the record archived in place; active-set queries
	// exclude tagged records.
	StrategySoftTag ArchiveStrategy = "soft_tag"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Instrument represents a physical piece of lab equipment tracked for
// calibration compliance. Reference is the unique human-readable identity;
// ID is the canonical join key used by calibration records.
type Instrument struct {
	Base
	Reference string         `json:"reference"`
	Type      InstrumentType `json:"type"`
	Section   string         `json:"section"`
	Brand     string         `json:"brand"`
	Model     string         `json:"model"`
	Flag      StatusFlag     `json:"status_flag"`
	// FrequencyMonths is the instrument-level override consulted when no
	// FrequencyConfig exists for the type.
	FrequencyMonths *int `json:"frequency_months,omitempty"`
	// LastCalibration / CalibrationDue are authoritative only for instrument
	// types listed in SummaryStoredTypes; for the rest they are derived on
	// read from calibration history.
	LastCalibration *time.Time `json:"last_calibration,omitempty"`
	CalibrationDue  *time.Time `json:"calibration_due,omitempty"`
}

// SummaryStoredTypes lists the instrument types whose summary fields are
// written back to the instrument record after each calibration. All other
// types are aggregated on read.
var SummaryStoredTypes = map[InstrumentType]bool{
	InstrumentBalance:      true,
	InstrumentFumeCupboard: true,
	InstrumentOven:         true,
}

// FrequencyConfig holds the calibration interval for one instrument type.
// At most one entry may exist per type. Absence is not an error: resolution
// falls back to the instrument override, then the type default.
type FrequencyConfig struct {
	Base
	Type  InstrumentType `json:"type"`
	Value int            `json:"value"`
	Unit  FrequencyUnit  `json:"unit"`
}

// Months converts the configured interval to months.
func (c FrequencyConfig) Months() int {
	if c.Unit == UnitYears {
		return c.Value * 12
	}
	return c.Value
}

// TestResult is one named pass/fail check inside a calibration event.
// Air pump calibrations carry several; a record whose checks all fail takes
// the instrument out of service regardless of due date.
type TestResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// CalibrationRecord is a dated event recording the outcome of testing an
// instrument against a reference standard. One shared shape serves every
// instrument type.
type CalibrationRecord struct {
	Base
	// InstrumentID is the canonical instrument join key. InstrumentRef keeps
	// the human-readable reference as it was recorded at ingestion.
	InstrumentID  string             `json:"instrument_id"`
	InstrumentRef string             `json:"instrument_ref,omitempty"`
	Type          InstrumentType     `json:"type"`
	Date          time.Time          `json:"date"`
	Outcome       CalibrationOutcome `json:"outcome"`
	TestResults   []TestResult       `json:"test_results,omitempty"`
	OperatorID    string             `json:"operator_id"`
	Notes         string             `json:"notes,omitempty"`
	// NextCalibration is populated from the resolved frequency when absent.
	NextCalibration *time.Time `json:"next_calibration,omitempty"`
	// Archival marker for the soft-tag strategy. A record carrying ArchivedAt
	// is excluded from the active set.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	ArchivedBy string     `json:"archived_by,omitempty"`
	// Restore audit, written when a soft-tagged record is returned to the
	// active set.
	RestoredAt *time.Time `json:"restored_at,omitempty"`
	RestoredBy string     `json:"restored_by,omitempty"`
	// Graticule calibrations record the derived microscope constant and the
	// filter mount it applies to (25 or 13 mm).
	GraticuleConstant *float64 `json:"graticule_constant,omitempty"`
	FilterDiameterMM  int      `json:"filter_diameter_mm,omitempty"`
}

// Archived reports whether the record carries a soft-tag archival marker.
func (r CalibrationRecord) Archived() bool {
	return r.ArchivedAt != nil
}

// AllTestsFailed reports whether the record has test results and every one of
// them failed.
func (r CalibrationRecord) AllTestsFailed() bool {
	if len(r.TestResults) == 0 {
		return false
	}
	for _, tr := range r.TestResults {
		if tr.Passed {
			return false
		}
	}
	return true
}

// ArchivedCalibration is a copy of a retired calibration record created by
// the copy-then-delete strategy. Never mutated after creation.
type ArchivedCalibration struct {
	CalibrationRecord
	ArchivedFromID string `json:"archived_from_id"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in the audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the subset of violations at warn severity.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
