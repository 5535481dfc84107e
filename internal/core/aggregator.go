package core

import (
	"time"

	"calcore/pkg/domain"
)

// Summary holds the derived per-instrument calibration summary fields.
type Summary struct {
	LastCalibration *time.Time
	CalibrationDue  *time.Time
}

// Summarize computes summary fields from one instrument's calibration
// history. lastCalibration is the max event date; calibrationDue is the max
// due date over records that carry one. Max, not min: a later record's due
// date supersedes earlier ones even if it is pathologically earlier in time.
// Archived records are ignored.
func Summarize(history []domain.CalibrationRecord) Summary {
	var summary Summary
	for i := range history {
		r := &history[i]
		if r.Archived() {
			continue
		}
		if summary.LastCalibration == nil || r.Date.After(*summary.LastCalibration) {
			d := r.Date
			summary.LastCalibration = &d
		}
		if r.NextCalibration != nil {
			if summary.CalibrationDue == nil || r.NextCalibration.After(*summary.CalibrationDue) {
				d := *r.NextCalibration
				summary.CalibrationDue = &d
			}
		}
	}
	return summary
}

// SummarizeAll computes summaries for many instruments in a single pass over
// the full record set, joined on the canonical instrument ID. Instruments
// with no records map to an empty summary.
func SummarizeAll(records []domain.CalibrationRecord, instrumentIDs []string) map[string]Summary {
	wanted := make(map[string]bool, len(instrumentIDs))
	for _, id := range instrumentIDs {
		wanted[id] = true
	}
	grouped := make(map[string][]domain.CalibrationRecord)
	for _, r := range records {
		if !wanted[r.InstrumentID] {
			continue
		}
		grouped[r.InstrumentID] = append(grouped[r.InstrumentID], r)
	}
	out := make(map[string]Summary, len(instrumentIDs))
	for _, id := range instrumentIDs {
		out[id] = Summarize(grouped[id])
	}
	return out
}
