package ledger

import (
	"time"

	"github.com/google/uuid"
)

// AccountingPeriod is a contiguous date range that partitions ledger activity.
// Identity is the unique (company, start, end) triple; periods for the same
// company never overlap.
type AccountingPeriod struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Closed    bool
	ClosedAt  *time.Time
	ClosedBy  *uuid.UUID
}

// DateOnly truncates t to midnight UTC. Period arithmetic works on dates, not
// instants.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains reports whether d (taken as a date) falls inside the period,
// boundaries inclusive.
func (p AccountingPeriod) Contains(d time.Time) bool {
	d = DateOnly(d)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// Overlaps reports whether two date ranges intersect.
func (p AccountingPeriod) Overlaps(start, end time.Time) bool {
	return !DateOnly(end).Before(DateOnly(p.StartDate)) && !DateOnly(start).After(DateOnly(p.EndDate))
}

// MonthPeriodBounds returns the first and last day of a calendar month.
func MonthPeriodBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}
