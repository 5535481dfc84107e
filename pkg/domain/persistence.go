package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateInstrument(Instrument) (Instrument, error)
	UpdateInstrument(id string, mutator func(*Instrument) error) (Instrument, error)
	DeleteInstrument(id string) error
	CreateCalibration(CalibrationRecord) (CalibrationRecord, error)
	UpdateCalibration(id string, mutator func(*CalibrationRecord) error) (CalibrationRecord, error)
	DeleteCalibration(id string) error
	CreateArchivedCalibration(ArchivedCalibration) (ArchivedCalibration, error)
	CreateFrequencyConfig(FrequencyConfig) (FrequencyConfig, error)
	UpdateFrequencyConfig(id string, mutator func(*FrequencyConfig) error) (FrequencyConfig, error)
	DeleteFrequencyConfig(id string) error
	CreateSampleAnalysis(SampleAnalysis) (SampleAnalysis, error)
	UpdateSampleAnalysis(id string, mutator func(*SampleAnalysis) error) (SampleAnalysis, error)
	FindInstrument(id string) (Instrument, bool)
	FindInstrumentByReference(ref string) (Instrument, bool)
	FindCalibration(id string) (CalibrationRecord, bool)
	ListCalibrations(instrumentID string, activeOnly bool) []CalibrationRecord
}

// TransactionView provides read-only access to snapshot data for rules and
// aggregation.
type TransactionView interface {
	RuleView
	ListAllCalibrations() []CalibrationRecord
	ListArchivedCalibrations(instrumentID string) []ArchivedCalibration
	ListSampleAnalyses() []SampleAnalysis
	FindCalibration(id string) (CalibrationRecord, bool)
	FindSampleAnalysis(id string) (SampleAnalysis, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetInstrument(id string) (Instrument, bool)
	GetInstrumentByReference(ref string) (Instrument, bool)
	ListInstruments() []Instrument
	ListInstrumentsOfType(t InstrumentType) []Instrument
	ListCalibrations(instrumentID string, activeOnly bool) []CalibrationRecord
	ListArchivedCalibrations(instrumentID string) []ArchivedCalibration
	ListFrequencyConfigs() []FrequencyConfig
	GetFrequencyConfig(t InstrumentType) (FrequencyConfig, bool)
	ListSampleAnalyses() []SampleAnalysis
}
