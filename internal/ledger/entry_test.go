package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestEntryNumberFormatAndParse(t *testing.T) {
	date := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	num := FormatEntryNumber(date, 7)
	if num != "JE-202501-0007" {
		t.Fatalf("unexpected entry number %s", num)
	}
	ym, seq, err := ParseEntryNumber(num)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ym != "202501" || seq != 7 {
		t.Fatalf("parsed %s/%d", ym, seq)
	}
	if YearMonthKey(date) != "202501" {
		t.Fatalf("year-month key %s", YearMonthKey(date))
	}

	for _, bad := range []string{"", "JE-2025-0001", "XX-202501-0001", "JE-202501-0000", "JE-202501-x"} {
		if _, _, err := ParseEntryNumber(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestComputeTotalsWithExchangeRate(t *testing.T) {
	e := JournalEntry{
		Lines: []JournalEntryLine{
			{LineNumber: 1, Debit: decimal.RequireFromString("100"), ExchangeRate: decimal.RequireFromString("1.25")},
			{LineNumber: 2, Credit: decimal.RequireFromString("100"), ExchangeRate: decimal.RequireFromString("1.25")},
		},
	}
	e.ComputeTotals()
	if !e.TotalDebit.Equal(decimal.RequireFromString("125")) {
		t.Fatalf("total debit %s", e.TotalDebit)
	}
	if !e.Balanced(decimal.New(1, -2)) {
		t.Fatalf("entry should balance")
	}

	// A zero rate counts as 1.
	e.Lines[0].ExchangeRate = decimal.Zero
	e.ComputeTotals()
	if !e.TotalDebit.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("total debit with unit rate %s", e.TotalDebit)
	}
}

func TestStatusGates(t *testing.T) {
	if !EntryStatusDraft.Mutable() || !EntryStatusPendingApproval.Mutable() {
		t.Fatalf("draft and pending should be mutable")
	}
	if EntryStatusPosted.Mutable() || EntryStatusVoid.Mutable() {
		t.Fatalf("posted and void must be immutable")
	}
	if !EntryStatusDraft.Postable() || !EntryStatusApproved.Postable() || !EntryStatusReversing.Postable() {
		t.Fatalf("draft, approved and reversing should be postable")
	}
	if EntryStatusPosted.Postable() || EntryStatusPendingApproval.Postable() {
		t.Fatalf("posted and pending must not be postable")
	}
}
