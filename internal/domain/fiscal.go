package domain

import "time"

// FiscalYear returns the fiscal year containing ts. A startMonth of January
// (or zero) yields the calendar year; otherwise a year is labelled by the
// calendar year in which it ends, so with July a date in August 2023 belongs
// to fiscal year 2024.
func FiscalYear(ts time.Time, startMonth time.Month) int {
	ts = ts.UTC()
	if startMonth <= time.January || startMonth > time.December {
		return ts.Year()
	}
	if ts.Month() >= startMonth {
		return ts.Year() + 1
	}
	return ts.Year()
}
