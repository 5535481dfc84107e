package core

import (
	"context"
	"time"

	"calcore/internal/fibre"
	"calcore/pkg/domain"
)

// Service exposes the calibration lifecycle operations over a persistent
// store. All writes run in store transactions; archive-then-insert sequences
// are additionally serialized per instrument by an in-process keyed lock.
type Service struct {
	store   domain.PersistentStore
	locks   *keyedMutex
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a structured logger. Archival and bulk-aggregation
// failures are reported through it rather than returned.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNow overrides the service clock. Intended for tests.
func WithNow(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		locks:   newKeyedMutex(),
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// observe wraps an operation with tracing and metrics.
func (s *Service) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := s.nowFn()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, s.nowFn().Sub(started))
	return err
}

// CreateInstrument persists a new instrument record.
func (s *Service) CreateInstrument(ctx context.Context, instrument domain.Instrument) (domain.Instrument, domain.Result, error) {
	var created domain.Instrument
	var res domain.Result
	err := s.observe(ctx, "create_instrument", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateInstrument(instrument)
			return txErr
		})
		return err
	})
	return created, res, err
}

// UpdateInstrument mutates an instrument using the provided mutator.
func (s *Service) UpdateInstrument(ctx context.Context, id string, mutator func(*domain.Instrument) error) (domain.Instrument, domain.Result, error) {
	var updated domain.Instrument
	var res domain.Result
	err := s.observe(ctx, "update_instrument", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateInstrument(id, mutator)
			return txErr
		})
		return err
	})
	return updated, res, err
}

// DeleteInstrument removes an instrument record.
func (s *Service) DeleteInstrument(ctx context.Context, id string) (domain.Result, error) {
	var res domain.Result
	err := s.observe(ctx, "delete_instrument", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteInstrument(id)
		})
		return err
	})
	return res, err
}

// SetFrequencyConfig creates or replaces the frequency entry for a type.
func (s *Service) SetFrequencyConfig(ctx context.Context, config domain.FrequencyConfig) (domain.FrequencyConfig, domain.Result, error) {
	var saved domain.FrequencyConfig
	var res domain.Result
	err := s.observe(ctx, "set_frequency_config", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if existing, ok := tx.Snapshot().FindFrequencyConfig(config.Type); ok {
				var txErr error
				saved, txErr = tx.UpdateFrequencyConfig(existing.ID, func(c *domain.FrequencyConfig) error {
					c.Value = config.Value
					c.Unit = config.Unit
					return nil
				})
				return txErr
			}
			var txErr error
			saved, txErr = tx.CreateFrequencyConfig(config)
			return txErr
		})
		return err
	})
	return saved, res, err
}

// ResolveFrequency resolves the calibration interval for an instrument
// identified by canonical ID or human-readable reference.
func (s *Service) ResolveFrequency(ctx context.Context, instrumentKey string) (Frequency, error) {
	var freq Frequency
	err := s.observe(ctx, "resolve_frequency", func(ctx context.Context) error {
		instrument, ok := s.lookupInstrument(instrumentKey)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: instrumentKey}
		}
		freq = ResolveFrequency(s.configFor(instrument.Type), instrument)
		return nil
	})
	return freq, err
}

// ArchiveSuperseded retires all active calibration records for the instrument
// dated strictly before newDate. Exposed for callers that insert records
// through the external CRUD layer; RecordCalibration performs the same pass
// internally.
func (s *Service) ArchiveSuperseded(ctx context.Context, instrumentKey string, newDate time.Time, actor string) (ArchiveOutcome, error) {
	var outcome ArchiveOutcome
	err := s.observe(ctx, "archive_superseded", func(ctx context.Context) error {
		instrument, ok := s.lookupInstrument(instrumentKey)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: instrumentKey}
		}
		unlock := s.locks.Lock(instrument.ID)
		defer unlock()

		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			outcome, txErr = archiveSuperseded(tx, instrument, newDate, actor, s.nowFn())
			return txErr
		})
		return err
	})
	return outcome, err
}

// RestoreCalibration returns a soft-tagged record to the active set and
// stamps the restore audit fields.
func (s *Service) RestoreCalibration(ctx context.Context, recordID, actor string) (domain.CalibrationRecord, error) {
	var restored domain.CalibrationRecord
	err := s.observe(ctx, "restore_calibration", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			restored, txErr = restoreCalibration(tx, recordID, actor, s.nowFn())
			return txErr
		})
		return err
	})
	return restored, err
}

// RecordCalibration is the full creation flow: supersede older records,
// populate the due date from the resolved frequency when absent, insert the
// new record, and write back summary fields for instrument types that store
// them. Archival failure is logged and reported in the outcome; it never
// blocks the insert.
func (s *Service) RecordCalibration(ctx context.Context, record domain.CalibrationRecord, actor string) (domain.CalibrationRecord, ArchiveOutcome, error) {
	var created domain.CalibrationRecord
	var outcome ArchiveOutcome
	err := s.observe(ctx, "record_calibration", func(ctx context.Context) error {
		instrument, ok := s.resolveRecordInstrument(&record)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: record.InstrumentID + record.InstrumentRef}
		}
		if record.Date.IsZero() {
			return domain.ValidationError{Field: "date", Reason: "must not be zero"}
		}

		unlock := s.locks.Lock(instrument.ID)
		defer unlock()

		// Archival runs in its own transaction so its failure cannot roll
		// back the insert below.
		_, archiveErr := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			outcome, txErr = archiveSuperseded(tx, instrument, record.Date, actor, s.nowFn())
			return txErr
		})
		if archiveErr != nil {
			s.logger.Warn("archival of superseded calibrations failed; proceeding with insert", map[string]any{
				"instrument": instrument.Reference,
				"error":      archiveErr.Error(),
			})
		}

		if record.NextCalibration == nil {
			freq := ResolveFrequency(s.configFor(instrument.Type), instrument)
			if due, ok := ComputeNextDue(record.Date, freq); ok {
				record.NextCalibration = &due
			}
		}

		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateCalibration(record)
			if txErr != nil {
				return txErr
			}
			if domain.SummaryStoredTypes[instrument.Type] {
				summary := Summarize(tx.ListCalibrations(instrument.ID, true))
				_, txErr = tx.UpdateInstrument(instrument.ID, func(i *domain.Instrument) error {
					i.LastCalibration = summary.LastCalibration
					i.CalibrationDue = summary.CalibrationDue
					return nil
				})
			}
			return txErr
		})
		if err != nil {
			return err
		}
		for _, warning := range res.Warnings() {
			s.logger.Warn(warning.Message, map[string]any{"rule": warning.Rule})
		}
		return nil
	})
	return created, outcome, err
}

// AggregateSummary computes the calibration summary for one instrument.
func (s *Service) AggregateSummary(ctx context.Context, instrumentKey string) (Summary, error) {
	var summary Summary
	err := s.observe(ctx, "aggregate_summary", func(ctx context.Context) error {
		instrument, ok := s.lookupInstrument(instrumentKey)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: instrumentKey}
		}
		if domain.SummaryStoredTypes[instrument.Type] {
			summary = Summary{LastCalibration: instrument.LastCalibration, CalibrationDue: instrument.CalibrationDue}
			return nil
		}
		summary = Summarize(s.store.ListCalibrations(instrument.ID, true))
		return nil
	})
	return summary, err
}

// AggregateSummaries computes summaries for all instruments of a type in one
// pass over the record set. An instrument whose lookup fails degrades to an
// empty summary; the failure is logged, never returned.
func (s *Service) AggregateSummaries(ctx context.Context, t domain.InstrumentType) (map[string]Summary, error) {
	out := map[string]Summary{}
	err := s.observe(ctx, "aggregate_summaries", func(ctx context.Context) error {
		instruments := s.store.ListInstrumentsOfType(t)
		ids := make([]string, 0, len(instruments))
		stored := map[string]Summary{}
		for _, instrument := range instruments {
			if domain.SummaryStoredTypes[instrument.Type] {
				stored[instrument.ID] = Summary{LastCalibration: instrument.LastCalibration, CalibrationDue: instrument.CalibrationDue}
				continue
			}
			ids = append(ids, instrument.ID)
		}

		viewErr := s.store.View(ctx, func(view domain.TransactionView) error {
			for id, summary := range SummarizeAll(view.ListAllCalibrations(), ids) {
				out[id] = summary
			}
			return nil
		})
		if viewErr != nil {
			// Degrade to "no calibration data" for the derived instruments
			// rather than failing the whole listing.
			s.logger.Error("bulk aggregation failed; reporting empty summaries", map[string]any{
				"type":  string(t),
				"error": viewErr.Error(),
			})
			for _, id := range ids {
				out[id] = Summary{}
			}
		}
		for id, summary := range stored {
			out[id] = summary
		}
		return nil
	})
	return out, err
}

// EvaluateInstrument classifies one instrument from current inputs.
func (s *Service) EvaluateInstrument(ctx context.Context, instrumentKey string) (StatusReport, error) {
	var report StatusReport
	err := s.observe(ctx, "evaluate_instrument", func(ctx context.Context) error {
		instrument, ok := s.lookupInstrument(instrumentKey)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityInstrument, ID: instrumentKey}
		}
		history := s.store.ListCalibrations(instrument.ID, true)
		report = EvaluateStatus(instrument, history, s.nowFn())
		return nil
	})
	return report, err
}

// InstrumentStatusRow pairs an instrument with its evaluated report for list
// views.
type InstrumentStatusRow struct {
	Instrument domain.Instrument
	Report     StatusReport
}

// EvaluateAll classifies every instrument. List views call this after bulk
// aggregation.
func (s *Service) EvaluateAll(ctx context.Context) ([]InstrumentStatusRow, error) {
	var rows []InstrumentStatusRow
	err := s.observe(ctx, "evaluate_all", func(ctx context.Context) error {
		now := s.nowFn()
		return s.store.View(ctx, func(view domain.TransactionView) error {
			all := view.ListAllCalibrations()
			byInstrument := map[string][]domain.CalibrationRecord{}
			for _, r := range all {
				if r.Archived() {
					continue
				}
				byInstrument[r.InstrumentID] = append(byInstrument[r.InstrumentID], r)
			}
			for _, instrument := range view.ListInstruments() {
				rows = append(rows, InstrumentStatusRow{
					Instrument: instrument,
					Report:     EvaluateStatus(instrument, byInstrument[instrument.ID], now),
				})
			}
			return nil
		})
	})
	return rows, err
}

// SaveSampleAnalysis validates and persists a fibre-count analysis.
func (s *Service) SaveSampleAnalysis(ctx context.Context, analysis domain.SampleAnalysis) (domain.SampleAnalysis, error) {
	var saved domain.SampleAnalysis
	err := s.observe(ctx, "save_sample_analysis", func(ctx context.Context) error {
		for r := 0; r < domain.GridRows; r++ {
			for c := 0; c < domain.GridCols; c++ {
				if !analysis.Grid[r][c].Valid() {
					return domain.ValidationError{Field: "grid", Reason: "cells must be empty, half, or a non-negative count"}
				}
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			saved, txErr = tx.CreateSampleAnalysis(analysis)
			return txErr
		})
		return err
	})
	return saved, err
}

// CalculateConcentration computes the reportable concentration for a stored
// analysis, resolving the graticule constant from the microscope's most
// recent passing graticule calibration for the sample's filter size.
func (s *Service) CalculateConcentration(ctx context.Context, analysisID string) (fibre.Valuation, error) {
	var valuation fibre.Valuation
	err := s.observe(ctx, "calculate_concentration", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			analysis, ok := view.FindSampleAnalysis(analysisID)
			if !ok {
				return domain.ErrNotFound{Entity: domain.EntitySampleAnalysis, ID: analysisID}
			}
			constant := s.graticuleConstant(view, analysis.MicroscopeID, analysis.FilterDiameterMM)
			var calcErr error
			valuation, calcErr = fibre.Calculate(fibre.FromAnalysis(analysis, constant))
			return calcErr
		})
	})
	return valuation, err
}

// graticuleConstant picks the constant from the newest passing graticule
// calibration matching the filter diameter, falling back to the fixed
// default for the mount size.
func (s *Service) graticuleConstant(view domain.TransactionView, microscopeID string, filterDiameterMM int) float64 {
	var best *domain.CalibrationRecord
	for _, record := range view.ListCalibrations(microscopeID, true) {
		if record.GraticuleConstant == nil || record.Outcome != domain.OutcomePass {
			continue
		}
		if record.FilterDiameterMM != 0 && record.FilterDiameterMM != filterDiameterMM {
			continue
		}
		r := record
		if best == nil || r.Date.After(best.Date) {
			best = &r
		}
	}
	if best != nil {
		return *best.GraticuleConstant
	}
	return fibre.ConstantForDiameter(filterDiameterMM)
}

// lookupInstrument resolves an instrument by canonical ID first, then by
// human-readable reference. The ID is the canonical join key everywhere;
// reference lookups exist because some record types historically linked by
// reference string.
func (s *Service) lookupInstrument(key string) (domain.Instrument, bool) {
	if instrument, ok := s.store.GetInstrument(key); ok {
		return instrument, true
	}
	return s.store.GetInstrumentByReference(key)
}

// resolveRecordInstrument canonicalizes the record's instrument link: the
// resolved ID is written to InstrumentID and the reference retained in
// InstrumentRef.
func (s *Service) resolveRecordInstrument(record *domain.CalibrationRecord) (domain.Instrument, bool) {
	key := record.InstrumentID
	if key == "" {
		key = record.InstrumentRef
	}
	instrument, ok := s.lookupInstrument(key)
	if !ok {
		return domain.Instrument{}, false
	}
	record.InstrumentID = instrument.ID
	if record.InstrumentRef == "" {
		record.InstrumentRef = instrument.Reference
	}
	if record.Type == "" {
		record.Type = instrument.Type
	}
	return instrument, true
}

func (s *Service) configFor(t domain.InstrumentType) *domain.FrequencyConfig {
	if config, ok := s.store.GetFrequencyConfig(t); ok {
		return &config
	}
	return nil
}
