package core

import (
	"fmt"
	"time"

	"calcore/pkg/domain"
)

// archiveStrategies assigns a retirement strategy per instrument type. The
// original system grew both patterns organically; here each type is pinned to
// exactly one so callers stay strategy-agnostic.
var archiveStrategies = map[domain.InstrumentType]domain.ArchiveStrategy{
	domain.InstrumentAirPump:      domain.StrategySoftTag,
	domain.InstrumentMicroscope:   domain.StrategySoftTag,
	domain.InstrumentGraticule:    domain.StrategySoftTag,
	domain.InstrumentPHMeter:      domain.StrategySoftTag,
	domain.InstrumentFlowmeter:    domain.StrategyCopyDelete,
	domain.InstrumentBalance:      domain.StrategyCopyDelete,
	domain.InstrumentFumeCupboard: domain.StrategyCopyDelete,
	domain.InstrumentOven:         domain.StrategyCopyDelete,
}

// StrategyFor returns the retirement strategy for an instrument type.
func StrategyFor(t domain.InstrumentType) domain.ArchiveStrategy {
	if s, ok := archiveStrategies[t]; ok {
		return s
	}
	return domain.StrategySoftTag
}

// ArchiveOutcome reports what a supersession pass retired.
type ArchiveOutcome struct {
	ArchivedCount int
	Strategy      domain.ArchiveStrategy
}

// archiveSuperseded retires every active calibration record for the
// instrument dated strictly before newDate, by date value rather than
// insertion order. Runs inside the caller's transaction; the caller decides whether a
// failure here blocks the new record (per policy it must not).
func archiveSuperseded(tx domain.Transaction, instrument domain.Instrument, newDate time.Time, actor string, now time.Time) (ArchiveOutcome, error) {
	strategy := StrategyFor(instrument.Type)
	outcome := ArchiveOutcome{Strategy: strategy}

	for _, record := range tx.ListCalibrations(instrument.ID, true) {
		if !record.Date.Before(newDate) {
			continue
		}
		switch strategy {
		case domain.StrategySoftTag:
			_, err := tx.UpdateCalibration(record.ID, func(r *domain.CalibrationRecord) error {
				at := now
				r.ArchivedAt = &at
				r.ArchivedBy = actor
				r.RestoredAt = nil
				r.RestoredBy = ""
				return nil
			})
			if err != nil {
				return outcome, fmt.Errorf("soft-tag %s: %w", record.ID, err)
			}
		case domain.StrategyCopyDelete:
			copyAt := now
			archived := domain.ArchivedCalibration{
				CalibrationRecord: record,
				ArchivedFromID:    record.ID,
			}
			archived.ID = ""
			archived.ArchivedAt = &copyAt
			archived.ArchivedBy = actor
			if _, err := tx.CreateArchivedCalibration(archived); err != nil {
				return outcome, fmt.Errorf("copy %s to archive: %w", record.ID, err)
			}
			if err := tx.DeleteCalibration(record.ID); err != nil {
				return outcome, fmt.Errorf("delete archived original %s: %w", record.ID, err)
			}
		default:
			return outcome, fmt.Errorf("unknown archive strategy %q", strategy)
		}
		outcome.ArchivedCount++
	}
	return outcome, nil
}

// restoreCalibration clears a soft-tag marker, returning the record to the
// active set with its event date and outcome untouched, and stamps the
// restore audit fields. Copy-then-delete archives have no restore path.
func restoreCalibration(tx domain.Transaction, recordID, actor string, now time.Time) (domain.CalibrationRecord, error) {
	record, ok := tx.FindCalibration(recordID)
	if !ok {
		return domain.CalibrationRecord{}, domain.ErrNotFound{Entity: domain.EntityCalibrationRecord, ID: recordID}
	}
	if StrategyFor(record.Type) != domain.StrategySoftTag {
		return domain.CalibrationRecord{}, fmt.Errorf("record %s uses the %s strategy; restore is only defined for soft-tag", recordID, StrategyFor(record.Type))
	}
	if !record.Archived() {
		return domain.CalibrationRecord{}, fmt.Errorf("record %s is not archived", recordID)
	}
	return tx.UpdateCalibration(recordID, func(r *domain.CalibrationRecord) error {
		r.ArchivedAt = nil
		r.ArchivedBy = ""
		at := now
		r.RestoredAt = &at
		r.RestoredBy = actor
		return nil
	})
}
