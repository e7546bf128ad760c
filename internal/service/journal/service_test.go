package journal_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/storage/memory"
)

type fixture struct {
	svc       journal.Service
	store     *memory.Store
	companyID uuid.UUID
	cash      ledger.Account
	revenue   ledger.Account
	expense   ledger.Account
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	companyID := uuid.New()
	cash := seedAccount(store, companyID, "1000", ledger.ClassificationAsset)
	revenue := seedAccount(store, companyID, "4000", ledger.ClassificationRevenue)
	expense := seedAccount(store, companyID, "5000", ledger.ClassificationExpense)
	periods := period.New(store, store)
	if _, err := periods.Open(context.Background(), companyID, date(2025, 1, 1), date(2025, 1, 31), ""); err != nil {
		t.Fatalf("open period: %v", err)
	}
	return fixture{
		svc:       journal.New(store, store, periods, config.Default()),
		store:     store,
		companyID: companyID,
		cash:      cash,
		revenue:   revenue,
		expense:   expense,
	}
}

func seedAccount(store *memory.Store, companyID uuid.UUID, code string, c ledger.Classification) ledger.Account {
	a := ledger.Account{
		ID:             uuid.New(),
		CompanyID:      companyID,
		Code:           code,
		Name:           "Account " + code,
		Classification: c,
		Status:         ledger.AccountStatusActive,
		CurrencyCode:   "USD",
	}
	store.SeedAccount(a)
	return a
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func validEntry(f fixture) ledger.JournalEntry {
	return ledger.JournalEntry{
		CompanyID:    f.companyID,
		Date:         date(2025, 1, 15),
		Reference:    "INV-100",
		Memo:         "January sale",
		CurrencyCode: "USD",
		CreatedBy:    uuid.New(),
		Lines: []ledger.JournalEntryLine{
			{AccountID: f.cash.ID, Debit: dec("150.00")},
			{AccountID: f.revenue.ID, Credit: dec("150.00")},
		},
	}
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, validEntry(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.EntryNumber != "JE-202501-0001" {
		t.Fatalf("entry number %s", first.EntryNumber)
	}
	if first.Status != ledger.EntryStatusDraft {
		t.Fatalf("status %s", first.Status)
	}
	if first.PeriodID == nil {
		t.Fatalf("period should resolve")
	}
	if !first.TotalDebit.Equal(dec("150.00")) || !first.TotalCredit.Equal(dec("150.00")) {
		t.Fatalf("totals %s/%s", first.TotalDebit, first.TotalCredit)
	}

	second, err := f.svc.Create(ctx, validEntry(f))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.EntryNumber != "JE-202501-0002" {
		t.Fatalf("second entry number %s", second.EntryNumber)
	}

	// A different month gets its own sequence.
	e := validEntry(f)
	e.Date = date(2025, 2, 3)
	third, err := f.svc.Create(ctx, e)
	if err != nil {
		t.Fatalf("create third: %v", err)
	}
	if third.EntryNumber != "JE-202502-0001" {
		t.Fatalf("third entry number %s", third.EntryNumber)
	}
	if third.PeriodID != nil {
		t.Fatalf("no period covers February yet")
	}
}

func TestCreateConcurrentNumbering(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	const n = 20

	numbers := make(chan string, n)
	errc := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := f.svc.Create(ctx, validEntry(f))
			if err != nil {
				errc <- err
				return
			}
			numbers <- e.EntryNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errc)

	for err := range errc {
		t.Fatalf("concurrent create: %v", err)
	}

	seen := make(map[string]bool, n)
	for num := range numbers {
		if seen[num] {
			t.Fatalf("entry number %s assigned twice", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d entry numbers, want %d", len(seen), n)
	}
	for i := 1; i <= n; i++ {
		want := fmt.Sprintf("JE-202501-%04d", i)
		if !seen[want] {
			t.Fatalf("missing entry number %s", want)
		}
	}
}

func TestValidationMatrix(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*ledger.JournalEntry)
		want   error
	}{
		{"one line", func(e *ledger.JournalEntry) { e.Lines = e.Lines[:1] }, errs.ErrValidation},
		{"unbalanced", func(e *ledger.JournalEntry) { e.Lines[1].Credit = dec("140.00") }, errs.ErrUnbalancedEntry},
		{"negative amount", func(e *ledger.JournalEntry) {
			e.Lines[0].Debit = dec("-150.00")
		}, errs.ErrValidation},
		{"both sides", func(e *ledger.JournalEntry) {
			e.Lines[0].Credit = dec("150.00")
		}, errs.ErrValidation},
		{"neither side", func(e *ledger.JournalEntry) {
			e.Lines[0].Debit = decimal.Zero
		}, errs.ErrValidation},
		{"same account twice", func(e *ledger.JournalEntry) {
			e.Lines[1].AccountID = e.Lines[0].AccountID
		}, errs.ErrValidation},
		{"missing account", func(e *ledger.JournalEntry) {
			e.Lines[0].AccountID = uuid.New()
		}, errs.ErrNotFound},
		{"zero date", func(e *ledger.JournalEntry) { e.Date = time.Time{} }, errs.ErrValidation},
		{"bad currency", func(e *ledger.JournalEntry) { e.CurrencyCode = "ZZZZ" }, errs.ErrValidation},
		{"negative rate", func(e *ledger.JournalEntry) { e.ExchangeRate = dec("-1") }, errs.ErrValidation},
	}
	for _, tc := range cases {
		e := validEntry(f)
		tc.mutate(&e)
		if _, err := f.svc.Create(ctx, e); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestInactiveAccountRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inactive := f.cash
	inactive.Status = ledger.AccountStatusInactive
	f.store.SeedAccount(inactive)

	if _, err := f.svc.Create(ctx, validEntry(f)); !errors.Is(err, errs.ErrAccountInactive) {
		t.Fatalf("inactive account: got %v", err)
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, validEntry(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	changed := validEntry(f)
	changed.ID = created.ID
	changed.Memo = "corrected memo"
	changed.Lines = []ledger.JournalEntryLine{
		{AccountID: f.expense.ID, Debit: dec("80.00")},
		{AccountID: f.cash.ID, Credit: dec("80.00")},
	}
	updated, err := f.svc.Update(ctx, changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EntryNumber != created.EntryNumber {
		t.Fatalf("entry number changed: %s", updated.EntryNumber)
	}
	if updated.CreatedBy != created.CreatedBy {
		t.Fatalf("created_by changed")
	}
	if updated.Memo != "corrected memo" || !updated.TotalDebit.Equal(dec("80.00")) {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestUpdateAndDeleteGates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	now := time.Now().UTC()
	posted := validEntry(f)
	posted.ID = uuid.New()
	posted.EntryNumber = "JE-202501-0099"
	posted.Status = ledger.EntryStatusPosted
	posted.PostedAt = &now
	for i := range posted.Lines {
		posted.Lines[i].LineNumber = i + 1
	}
	f.store.SeedEntry(posted)

	if _, err := f.svc.Update(ctx, posted); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("update posted: got %v", err)
	}
	if err := f.svc.Delete(ctx, f.companyID, posted.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("delete posted: got %v", err)
	}

	draft, err := f.svc.Create(ctx, validEntry(f))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Delete(ctx, f.companyID, draft.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := f.svc.Get(ctx, f.companyID, draft.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("deleted entry still visible: %v", err)
	}
}

func TestSearchFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sale, _ := f.svc.Create(ctx, validEntry(f))
	rent := validEntry(f)
	rent.Reference = "RENT-01"
	rent.Memo = "Office rent"
	rent.Date = date(2025, 1, 5)
	rent.Lines = []ledger.JournalEntryLine{
		{AccountID: f.expense.ID, Debit: dec("900.00")},
		{AccountID: f.cash.ID, Credit: dec("900.00")},
	}
	if _, err := f.svc.Create(ctx, rent); err != nil {
		t.Fatalf("create rent: %v", err)
	}

	got, total, err := f.svc.Search(ctx, f.companyID, journal.Filter{Reference: "rent"}, 0, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || len(got) != 1 || got[0].Reference != "RENT-01" {
		t.Fatalf("reference filter: %d %+v", total, got)
	}

	got, total, _ = f.svc.Search(ctx, f.companyID, journal.Filter{AccountID: f.revenue.ID}, 0, 0)
	if total != 1 || got[0].ID != sale.ID {
		t.Fatalf("account filter: %d", total)
	}

	from := date(2025, 1, 10)
	_, total, _ = f.svc.Search(ctx, f.companyID, journal.Filter{DateFrom: &from}, 0, 0)
	if total != 1 {
		t.Fatalf("date filter: %d", total)
	}

	// Results are ordered by date; rent (Jan 5) precedes the sale (Jan 15).
	got, total, _ = f.svc.Search(ctx, f.companyID, journal.Filter{}, 1, 0)
	if total != 2 || len(got) != 1 || got[0].Reference != "RENT-01" {
		t.Fatalf("paging: total=%d first=%+v", total, got)
	}
	got, _, _ = f.svc.Search(ctx, f.companyID, journal.Filter{}, 1, 1)
	if len(got) != 1 || got[0].ID != sale.ID {
		t.Fatalf("second page wrong")
	}
}
