package core

import (
	"time"

	"calcore/pkg/domain"
)

// StatusReport is the evaluated classification of one instrument plus the
// inputs that produced it, for display at the boundary layer.
type StatusReport struct {
	Status          domain.InstrumentStatus
	LastCalibration *time.Time
	CalibrationDue  *time.Time
	// DaysUntilDue is meaningful only when DueKnown; 0 means due today,
	// which is not yet overdue.
	DaysUntilDue int
	DueKnown     bool
}

// DueToday reports whether the instrument's due date is exactly today.
func (r StatusReport) DueToday() bool {
	return r.DueKnown && r.DaysUntilDue == 0
}

// EvaluateStatus classifies an instrument from its manual flag, summary dates
// and calibration history. Not a state machine: recomputed fresh on every
// read. Rules apply in order, first match wins:
//
//  1. manual out-of-service flag
//  2. no calibration date or no due date on record
//  3. air pumps whose most recent record's checks all failed
//  4. due date strictly before today
//  5. otherwise Active
func EvaluateStatus(instrument domain.Instrument, history []domain.CalibrationRecord, now time.Time) StatusReport {
	last, due := summaryDates(instrument, history)
	report := StatusReport{LastCalibration: last, CalibrationDue: due}
	if due != nil {
		report.DueKnown = true
		report.DaysUntilDue = daysUntil(*due, now)
	}

	if instrument.Flag == domain.FlagOutOfService {
		report.Status = domain.StatusOutOfService
		return report
	}
	if last == nil || due == nil {
		// Zero calibration history never counts as Active.
		report.Status = domain.StatusOutOfService
		return report
	}
	if instrument.Type == domain.InstrumentAirPump {
		if latest := mostRecent(history); latest != nil && latest.AllTestsFailed() {
			report.Status = domain.StatusOutOfService
			return report
		}
	}
	if report.DaysUntilDue < 0 {
		report.Status = domain.StatusCalibrationOverdue
		return report
	}
	report.Status = domain.StatusActive
	return report
}

// summaryDates picks the authoritative summary fields for stored-summary
// types and derives them from history for everything else.
func summaryDates(instrument domain.Instrument, history []domain.CalibrationRecord) (last, due *time.Time) {
	if domain.SummaryStoredTypes[instrument.Type] {
		return instrument.LastCalibration, instrument.CalibrationDue
	}
	summary := Summarize(history)
	return summary.LastCalibration, summary.CalibrationDue
}

// mostRecent returns the record with the greatest event date, preferring the
// later entry on ties (history is sorted date ascending by the stores).
func mostRecent(history []domain.CalibrationRecord) *domain.CalibrationRecord {
	var latest *domain.CalibrationRecord
	for i := range history {
		r := &history[i]
		if r.Archived() {
			continue
		}
		if latest == nil || !r.Date.Before(latest.Date) {
			latest = r
		}
	}
	return latest
}

// daysUntil computes ceil((due_midnight - now_midnight) / 1 day). Both sides
// are truncated to midnight so the comparison is day-granular.
func daysUntil(due, now time.Time) int {
	dueMid := midnight(due)
	nowMid := midnight(now)
	diff := dueMid.Sub(nowMid)
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
