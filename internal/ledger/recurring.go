package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Frequency describes how often a recurring template fires.
type Frequency string

const (
	FrequencyDaily        Frequency = "daily"
	FrequencyWeekly       Frequency = "weekly"
	FrequencyBiweekly     Frequency = "biweekly"
	FrequencyMonthly      Frequency = "monthly"
	FrequencyQuarterly    Frequency = "quarterly"
	FrequencySemiAnnually Frequency = "semiannually"
	FrequencyAnnually     Frequency = "annually"
	// FrequencyCustom uses Interval as a raw day count.
	FrequencyCustom Frequency = "custom"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiAnnually, FrequencyAnnually, FrequencyCustom:
		return true
	}
	return false
}

// EndRule describes when a recurring template stops firing.
type EndRule string

const (
	EndRuleNever            EndRule = "never"
	EndRuleAfterOccurrences EndRule = "after_occurrences"
	EndRuleOnDate           EndRule = "on_date"
)

// TemplateStatus is the lifecycle state of a recurring template.
type TemplateStatus string

const (
	TemplateStatusActive    TemplateStatus = "active"
	TemplateStatusPaused    TemplateStatus = "paused"
	TemplateStatusCompleted TemplateStatus = "completed"
	TemplateStatusCancelled TemplateStatus = "cancelled"
)

// TemplateLine is one line of a recurring template's fully balanced line set.
type TemplateLine struct {
	AccountID   uuid.UUID
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// RecurringTemplate periodically emits journal entries. Identity is unique
// per company by name.
type RecurringTemplate struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Memo      string
	CurrencyCode string
	Frequency Frequency
	// Interval multiplies the frequency unit and must be positive.
	Interval  int
	StartDate time.Time
	EndRule   EndRule
	// EndAfter bounds occurrences when EndRule is after_occurrences.
	EndAfter int
	// EndDate bounds the schedule when EndRule is on_date.
	EndDate *time.Time
	Status  TemplateStatus
	Lines   []TemplateLine
	// NextRunDate is the next intended entry date; always >= StartDate.
	NextRunDate     time.Time
	LastRunDate     *time.Time
	OccurrenceCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Balanced reports whether the template's lines sum to equal debits and
// credits within epsilon.
func (t RecurringTemplate) Balanced(epsilon decimal.Decimal) bool {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range t.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit.Sub(credit).Abs().LessThanOrEqual(epsilon)
}

// OccurrenceDate computes the date of the n-th occurrence (n=0 is the start
// date itself). Month-based frequencies anchor on the start day: when the
// target month is shorter, the date clamps to the month's last day and never
// rolls into the following month. Anchoring on the start date rather than the
// previous run keeps a Jan-31 monthly schedule on 31sts after passing through
// February.
func (t RecurringTemplate) OccurrenceDate(n int) (time.Time, error) {
	start := DateOnly(t.StartDate)
	if n < 0 {
		return time.Time{}, fmt.Errorf("occurrence index %d", n)
	}
	switch t.Frequency {
	case FrequencyDaily:
		return start.AddDate(0, 0, n*t.Interval), nil
	case FrequencyWeekly:
		return start.AddDate(0, 0, n*t.Interval*7), nil
	case FrequencyBiweekly:
		return start.AddDate(0, 0, n*t.Interval*14), nil
	case FrequencyCustom:
		return start.AddDate(0, 0, n*t.Interval), nil
	case FrequencyMonthly:
		return addMonthsClamped(start, n*t.Interval), nil
	case FrequencyQuarterly:
		return addMonthsClamped(start, n*t.Interval*3), nil
	case FrequencySemiAnnually:
		return addMonthsClamped(start, n*t.Interval*6), nil
	case FrequencyAnnually:
		return addMonthsClamped(start, n*t.Interval*12), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", t.Frequency)
}

// Finished reports whether the template's end rule is exhausted given its
// occurrence count and next run date.
func (t RecurringTemplate) Finished(next time.Time) bool {
	switch t.EndRule {
	case EndRuleAfterOccurrences:
		return t.OccurrenceCount >= t.EndAfter
	case EndRuleOnDate:
		return t.EndDate != nil && DateOnly(next).After(DateOnly(*t.EndDate))
	}
	return false
}

// addMonthsClamped adds months to a date, clamping to the last day of the
// target month instead of rolling over (Jan 31 + 1mo = Feb 28/29).
func addMonthsClamped(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	firstOfTarget := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, time.UTC)
}
