package core

import "calcore/pkg/domain"

type (
	EntityType          = domain.EntityType
	InstrumentType      = domain.InstrumentType
	InstrumentStatus    = domain.InstrumentStatus
	StatusFlag          = domain.StatusFlag
	Severity            = domain.Severity
	Base                = domain.Base
	Instrument          = domain.Instrument
	CalibrationRecord   = domain.CalibrationRecord
	ArchivedCalibration = domain.ArchivedCalibration
	FrequencyConfig     = domain.FrequencyConfig
	SampleAnalysis      = domain.SampleAnalysis
	Change              = domain.Change
	Action              = domain.Action
	Violation           = domain.Violation
	Result              = domain.Result
	RuleViolationError  = domain.RuleViolationError
	RulesEngine         = domain.RulesEngine
	Rule                = domain.Rule
	Transaction         = domain.Transaction
	TransactionView     = domain.TransactionView
	PersistentStore     = domain.PersistentStore
)

const (
	EntityInstrument          = domain.EntityInstrument
	EntityCalibrationRecord   = domain.EntityCalibrationRecord
	EntityArchivedCalibration = domain.EntityArchivedCalibration
	EntityFrequencyConfig     = domain.EntityFrequencyConfig
	EntitySampleAnalysis      = domain.EntitySampleAnalysis
)

const (
	StatusActive             = domain.StatusActive
	StatusCalibrationOverdue = domain.StatusCalibrationOverdue
	StatusOutOfService       = domain.StatusOutOfService
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(FrequencyBoundsRule())
	engine.Register(CalibrationDateRule())
	engine.Register(DuplicateActiveRecencyRule())
	return engine
}
