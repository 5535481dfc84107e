package core

import (
	"context"
	"fmt"
	"time"

	"calcore/pkg/domain"
)

// Frequency bounds accepted for a FrequencyConfig, in months.
const (
	MinFrequencyMonths = 1
	MaxFrequencyMonths = 120
)

// earliestRecordDate guards against obvious data-entry mistakes; the lab did
// not exist before this.
var earliestRecordDate = time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)

// FrequencyBoundsRule blocks frequency configs outside the allowed window.
func FrequencyBoundsRule() domain.Rule {
	return frequencyBoundsRule{}
}

type frequencyBoundsRule struct{}

func (frequencyBoundsRule) Name() string { return "calibration_frequency_bounds" }

func (frequencyBoundsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityFrequencyConfig || change.Action == domain.ActionDelete {
			continue
		}
		config, ok := change.After.(domain.FrequencyConfig)
		if !ok {
			continue
		}
		months := config.Months()
		if months < MinFrequencyMonths || months > MaxFrequencyMonths {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "calibration_frequency_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("frequency for %s resolves to %d months, outside %d..%d", config.Type, months, MinFrequencyMonths, MaxFrequencyMonths),
				Entity:   domain.EntityFrequencyConfig,
				EntityID: config.ID,
			})
		}
	}
	return res, nil
}

// CalibrationDateRule blocks calibration records dated in the future or
// before the earliest plausible record date.
func CalibrationDateRule() domain.Rule {
	return calibrationDateRule{now: func() time.Time { return time.Now().UTC() }}
}

type calibrationDateRule struct {
	now func() time.Time
}

func (calibrationDateRule) Name() string { return "calibration_record_date" }

func (r calibrationDateRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	today := r.now()
	for _, change := range changes {
		if change.Entity != domain.EntityCalibrationRecord || change.Action != domain.ActionCreate {
			continue
		}
		record, ok := change.After.(domain.CalibrationRecord)
		if !ok {
			continue
		}
		switch {
		case record.Date.After(today):
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "calibration_record_date",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("calibration for instrument %s is dated in the future (%s)", record.InstrumentID, record.Date.Format("2006-01-02")),
				Entity:   domain.EntityCalibrationRecord,
				EntityID: record.ID,
			})
		case record.Date.Before(earliestRecordDate):
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "calibration_record_date",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("calibration for instrument %s predates %s", record.InstrumentID, earliestRecordDate.Format("2006-01-02")),
				Entity:   domain.EntityCalibrationRecord,
				EntityID: record.ID,
			})
		}
	}
	return res, nil
}

// DuplicateActiveRecencyRule warns when a transaction leaves an instrument
// with more than one unarchived calibration record. A failed archival pass is
// tolerated (the warning is the report), to be reconciled on the next
// supersession attempt.
func DuplicateActiveRecencyRule() domain.Rule {
	return duplicateActiveRecencyRule{}
}

type duplicateActiveRecencyRule struct{}

func (duplicateActiveRecencyRule) Name() string { return "duplicate_active_recency" }

func (duplicateActiveRecencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := map[string]bool{}
	for _, change := range changes {
		if change.Entity != domain.EntityCalibrationRecord {
			continue
		}
		record, ok := change.After.(domain.CalibrationRecord)
		if !ok {
			continue
		}
		if seen[record.InstrumentID] {
			continue
		}
		seen[record.InstrumentID] = true
		active := view.ListCalibrations(record.InstrumentID, true)
		if len(active) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "duplicate_active_recency",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("instrument %s has %d active calibration records; older entries await archival", record.InstrumentID, len(active)),
				Entity:   domain.EntityCalibrationRecord,
				EntityID: record.InstrumentID,
			})
		}
	}
	return res, nil
}
