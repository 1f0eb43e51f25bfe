package ledger

import "time"

// MonthWindow returns the calendar month containing at, as evaluated in loc,
// as the half-open UTC interval [from, to).
func MonthWindow(at time.Time, loc *time.Location) (from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}
