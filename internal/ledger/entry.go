package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus is the lifecycle state of a journal entry.
type EntryStatus string

const (
	EntryStatusDraft           EntryStatus = "draft"
	EntryStatusPendingApproval EntryStatus = "pending_approval"
	EntryStatusApproved        EntryStatus = "approved"
	EntryStatusPosted          EntryStatus = "posted"
	EntryStatusVoid            EntryStatus = "void"
	// EntryStatusReversing marks the generated counter-entry while it is
	// in flight between creation and post.
	EntryStatusReversing EntryStatus = "reversing"
)

// Mutable reports whether entry fields other than status may still change.
func (s EntryStatus) Mutable() bool {
	return s == EntryStatusDraft || s == EntryStatusPendingApproval
}

// Postable reports whether the posting engine accepts an entry in this state.
// Draft entries post directly when no approval workflow gates them.
func (s EntryStatus) Postable() bool {
	return s == EntryStatusDraft || s == EntryStatusApproved || s == EntryStatusReversing
}

// JournalEntry is a balanced set of journal lines identified by a sequential
// entry number scoped to its company.
type JournalEntry struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	EntryNumber string
	Date        time.Time
	Reference   string
	Memo        string
	CurrencyCode string
	// ExchangeRate converts entry-currency amounts into the base currency.
	ExchangeRate decimal.Decimal
	Status       EntryStatus
	Adjusting    bool
	Reversing    bool
	// ReversedEntryID links a reversal to its original and vice versa.
	ReversedEntryID *uuid.UUID
	// PeriodID is resolved from Date at create/update time; nil when no
	// open period covers the date yet.
	PeriodID    *uuid.UUID
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	CreatedBy   uuid.UUID
	ApprovedBy  *uuid.UUID
	RejectReason string
	PostedAt    *time.Time
	PostedBy    *uuid.UUID
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Lines are ordered by LineNumber, 1..N contiguous.
	Lines []JournalEntryLine
}

// JournalEntryLine is one side of a double entry. Exactly one of Debit and
// Credit is positive.
type JournalEntryLine struct {
	ID                 uuid.UUID
	EntryID            uuid.UUID
	LineNumber         int
	AccountID          uuid.UUID
	Description        string
	Reference          string
	TrackingCategoryID *uuid.UUID
	Debit              decimal.Decimal
	Credit             decimal.Decimal
	CurrencyCode       string
	ExchangeRate       decimal.Decimal
}

// BaseDebit returns the line's debit converted to base currency.
func (l JournalEntryLine) BaseDebit() decimal.Decimal { return l.Debit.Mul(l.rate()) }

// BaseCredit returns the line's credit converted to base currency.
func (l JournalEntryLine) BaseCredit() decimal.Decimal { return l.Credit.Mul(l.rate()) }

func (l JournalEntryLine) rate() decimal.Decimal {
	if l.ExchangeRate.IsZero() {
		return decimal.New(1, 0)
	}
	return l.ExchangeRate
}

// SortLines orders lines by line number in place.
func (e *JournalEntry) SortLines() {
	sort.Slice(e.Lines, func(i, j int) bool { return e.Lines[i].LineNumber < e.Lines[j].LineNumber })
}

// ComputeTotals recalculates the entry's base-currency debit and credit
// totals from its lines.
func (e *JournalEntry) ComputeTotals() {
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range e.Lines {
		debit = debit.Add(l.BaseDebit())
		credit = credit.Add(l.BaseCredit())
	}
	e.TotalDebit = debit
	e.TotalCredit = credit
}

// Balanced reports whether debit and credit totals agree within epsilon.
func (e JournalEntry) Balanced(epsilon decimal.Decimal) bool {
	return e.TotalDebit.Sub(e.TotalCredit).Abs().LessThanOrEqual(epsilon)
}

// entryNumberPrefix formats the month prefix of an entry number, JE-YYYYMM-.
func entryNumberPrefix(date time.Time) string {
	return fmt.Sprintf("JE-%04d%02d-", date.Year(), int(date.Month()))
}

// FormatEntryNumber builds the sequential entry number for a date, e.g.
// JE-202501-0001.
func FormatEntryNumber(date time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", entryNumberPrefix(date), seq)
}

// ParseEntryNumber splits an entry number into its year-month key and
// sequence.
func ParseEntryNumber(num string) (yearMonth string, seq int, err error) {
	parts := strings.Split(num, "-")
	if len(parts) != 3 || parts[0] != "JE" || len(parts[1]) != 6 {
		return "", 0, fmt.Errorf("malformed entry number %q", num)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("malformed entry number %q", num)
	}
	return parts[1], seq, nil
}

// YearMonthKey returns the YYYYMM sequence bucket for a date.
func YearMonthKey(date time.Time) string {
	return fmt.Sprintf("%04d%02d", date.Year(), int(date.Month()))
}
