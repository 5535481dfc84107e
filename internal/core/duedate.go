package core

import "time"

// AddMonths advances a date by a number of calendar months, clamping to the
// last day of the target month when the source day does not exist there:
// 2024-01-31 + 1 month = 2024-02-29. The alternative roll-forward behavior of
// native date arithmetic (Jan 31 + 1 month = Mar 2/3) is deliberately not
// reproduced; one rule applies at every call site.
func AddMonths(date time.Time, months int) time.Time {
	year, month, day := date.Date()
	hour, minute, sec := date.Clock()

	// Anchor at the first of the month so Date's own month normalization
	// cannot spill into the following month, then clamp the day.
	target := time.Date(year, month, 1, hour, minute, sec, date.Nanosecond(), date.Location()).AddDate(0, months, 0)
	if last := lastDayOfMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, date.Nanosecond(), date.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeNextDue returns the due date for a calibration event given the
// resolved interval. The zero return with ok=false means "never due".
func ComputeNextDue(date time.Time, freq Frequency) (time.Time, bool) {
	if freq.Indefinite || freq.Months <= 0 {
		return time.Time{}, false
	}
	return AddMonths(date, freq.Months), true
}
