package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/report"
	"github.com/corefin/ledger/internal/storage/memory"
)

type fixture struct {
	store     *memory.Store
	reports   report.Service
	entries   journal.Service
	poster    posting.Service
	companyID uuid.UUID
	userID    uuid.UUID
	cash      ledger.Account
	loan      ledger.Account
	capital   ledger.Account
	revenue   ledger.Account
	rent      ledger.Account
	equipment ledger.Account
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	cfg := config.Default()
	companyID := uuid.New()
	mk := func(code string, c ledger.Classification, sub ledger.Subtype) ledger.Account {
		a := ledger.Account{
			ID:             uuid.New(),
			CompanyID:      companyID,
			Code:           code,
			Name:           "Account " + code,
			Classification: c,
			Subtype:        sub,
			Status:         ledger.AccountStatusActive,
			CurrencyCode:   "USD",
		}
		store.SeedAccount(a)
		return a
	}
	periods := period.New(store, store)
	if _, err := periods.Open(context.Background(), companyID, date(2025, 1, 1), date(2025, 1, 31), ""); err != nil {
		t.Fatalf("open period: %v", err)
	}
	return fixture{
		store:     store,
		reports:   report.New(store, cfg),
		entries:   journal.New(store, store, periods, cfg),
		poster:    posting.New(store, cfg),
		companyID: companyID,
		userID:    uuid.New(),
		cash:      mk("1000", ledger.ClassificationAsset, ledger.SubtypeCash),
		loan:      mk("2100", ledger.ClassificationLiability, ledger.SubtypeLoan),
		capital:   mk("3000", ledger.ClassificationEquity, ledger.SubtypeCapital),
		revenue:   mk("4000", ledger.ClassificationRevenue, ledger.SubtypeOperatingRevenue),
		rent:      mk("5100", ledger.ClassificationExpense, ledger.SubtypeOperatingExpense),
		equipment: mk("1500", ledger.ClassificationAsset, ledger.SubtypeFixedAsset),
	}
}

func (f fixture) post(t *testing.T, d time.Time, debitAcc, creditAcc uuid.UUID, amount string) ledger.JournalEntry {
	t.Helper()
	ctx := context.Background()
	e, err := f.entries.Create(ctx, ledger.JournalEntry{
		CompanyID: f.companyID,
		Date:      d,
		CreatedBy: f.userID,
		Lines: []ledger.JournalEntryLine{
			{AccountID: debitAcc, Debit: dec(amount)},
			{AccountID: creditAcc, Credit: dec(amount)},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	posted, err := f.poster.Post(ctx, f.companyID, e.ID, f.userID)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return posted
}

// Seed a small month of activity: capital in, a loan drawn, revenue earned,
// rent paid, equipment bought.
func (f fixture) seedActivity(t *testing.T) {
	f.post(t, date(2025, 1, 2), f.cash.ID, f.capital.ID, "10000.00")
	f.post(t, date(2025, 1, 5), f.cash.ID, f.loan.ID, "5000.00")
	f.post(t, date(2025, 1, 10), f.cash.ID, f.revenue.ID, "2500.00")
	f.post(t, date(2025, 1, 15), f.rent.ID, f.cash.ID, "900.00")
	f.post(t, date(2025, 1, 20), f.equipment.ID, f.cash.ID, "3000.00")
}

func TestTrialBalanceBalances(t *testing.T) {
	f := setup(t)
	f.seedActivity(t)
	ctx := context.Background()

	tb, err := f.reports.TrialBalance(ctx, f.companyID, date(2025, 1, 31), false)
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	if !tb.Balanced {
		t.Fatalf("trial balance out of balance: %s vs %s", tb.TotalDebit, tb.TotalCredit)
	}
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		t.Fatalf("totals differ: %s vs %s", tb.TotalDebit, tb.TotalCredit)
	}
	byCode := make(map[string]report.TrialBalanceRow)
	for _, r := range tb.Rows {
		byCode[r.Code] = r
	}
	if !byCode["1000"].Debit.Equal(dec("13600.00")) {
		t.Fatalf("cash row %+v", byCode["1000"])
	}
	if !byCode["2100"].Credit.Equal(dec("5000.00")) {
		t.Fatalf("loan row %+v", byCode["2100"])
	}
	if !byCode["5100"].Debit.Equal(dec("900.00")) {
		t.Fatalf("rent row %+v", byCode["5100"])
	}
}

func TestTrialBalanceCutoffAndReversal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	e := f.post(t, date(2025, 1, 10), f.cash.ID, f.revenue.ID, "100.00")

	// As-of before the entry date excludes it.
	tb, err := f.reports.TrialBalance(ctx, f.companyID, date(2025, 1, 5), false)
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	if len(tb.Rows) != 0 {
		t.Fatalf("expected no rows before activity, got %d", len(tb.Rows))
	}

	// After reversal the voided original and its counter-entry cancel.
	if _, err := f.poster.Reverse(ctx, f.companyID, e.ID, date(2025, 1, 12), "", f.userID); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	tb, _ = f.reports.TrialBalance(ctx, f.companyID, date(2025, 1, 31), false)
	if len(tb.Rows) != 0 {
		t.Fatalf("reversed activity should net to zero, got %d rows", len(tb.Rows))
	}
	if !tb.Balanced {
		t.Fatalf("empty trial balance should report balanced")
	}
}

func TestBalanceSheetIdentity(t *testing.T) {
	f := setup(t)
	f.seedActivity(t)
	ctx := context.Background()

	bs, err := f.reports.BalanceSheet(ctx, f.companyID, date(2025, 1, 31))
	if err != nil {
		t.Fatalf("balance sheet: %v", err)
	}
	// Net income (2500 - 900) is not yet closed into equity, so the gap
	// between the sides equals retained income.
	if !bs.TotalAssets.Equal(dec("16600.00")) {
		t.Fatalf("total assets %s", bs.TotalAssets)
	}
	if !bs.TotalLiabilities.Equal(dec("5000.00")) {
		t.Fatalf("total liabilities %s", bs.TotalLiabilities)
	}
	if !bs.TotalEquity.Equal(dec("10000.00")) {
		t.Fatalf("total equity %s", bs.TotalEquity)
	}
	gap := bs.TotalAssets.Sub(bs.TotalLiabilities).Sub(bs.TotalEquity)
	if !gap.Equal(dec("1600.00")) {
		t.Fatalf("unclosed net income %s", gap)
	}

	// Closing net income into capital restores the identity.
	f.post(t, date(2025, 1, 31), f.revenue.ID, f.capital.ID, "2500.00")
	f.post(t, date(2025, 1, 31), f.capital.ID, f.rent.ID, "900.00")
	bs, _ = f.reports.BalanceSheet(ctx, f.companyID, date(2025, 1, 31))
	if !bs.InBalance {
		t.Fatalf("balance sheet should balance after closing entries")
	}
	if !bs.TotalEquity.Equal(dec("11600.00")) {
		t.Fatalf("equity after close %s", bs.TotalEquity)
	}
}

func TestIncomeStatement(t *testing.T) {
	f := setup(t)
	f.seedActivity(t)
	ctx := context.Background()

	is, err := f.reports.IncomeStatement(ctx, f.companyID, date(2025, 1, 1), date(2025, 1, 31))
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if !is.TotalRevenue.Equal(dec("2500.00")) {
		t.Fatalf("revenue %s", is.TotalRevenue)
	}
	if !is.TotalExpenses.Equal(dec("900.00")) {
		t.Fatalf("expenses %s", is.TotalExpenses)
	}
	if !is.NetIncome.Equal(dec("1600.00")) {
		t.Fatalf("net income %s", is.NetIncome)
	}
}

func TestCashFlowSections(t *testing.T) {
	f := setup(t)
	f.seedActivity(t)
	ctx := context.Background()

	cf, err := f.reports.CashFlow(ctx, f.companyID, date(2025, 1, 1), date(2025, 1, 31))
	if err != nil {
		t.Fatalf("cash flow: %v", err)
	}
	// Operating: revenue in 2500, rent out 900.
	if !cf.NetOperating.Equal(dec("1600.00")) {
		t.Fatalf("operating %s", cf.NetOperating)
	}
	// Investing: equipment purchase.
	if !cf.NetInvesting.Equal(dec("-3000.00")) {
		t.Fatalf("investing %s", cf.NetInvesting)
	}
	// Financing: capital 10000 plus loan 5000.
	if !cf.NetFinancing.Equal(dec("15000.00")) {
		t.Fatalf("financing %s", cf.NetFinancing)
	}
	if !cf.NetChange.Equal(dec("13600.00")) {
		t.Fatalf("net change %s", cf.NetChange)
	}
	if !cf.OpeningCash.IsZero() || !cf.ClosingCash.Equal(dec("13600.00")) {
		t.Fatalf("cash bounds %s..%s", cf.OpeningCash, cf.ClosingCash)
	}
}
