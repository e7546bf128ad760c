package recurring_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/recurring"
	"github.com/corefin/ledger/internal/storage/memory"
)

type fixture struct {
	store     *memory.Store
	svc       recurring.Service
	entries   journal.Service
	companyID uuid.UUID
	rent      ledger.Account
	cash      ledger.Account
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	cfg := config.Default()
	companyID := uuid.New()
	mk := func(code string, c ledger.Classification) ledger.Account {
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
	cash := mk("1000", ledger.ClassificationAsset)
	rent := mk("5100", ledger.ClassificationExpense)
	periods := period.New(store, store)
	ctx := context.Background()
	// A generous period range so catch-up runs land in open periods.
	for m := time.January; m <= time.June; m++ {
		start, end := ledger.MonthPeriodBounds(2025, m)
		if _, err := periods.Open(ctx, companyID, start, end, ""); err != nil {
			t.Fatalf("open period: %v", err)
		}
	}
	entries := journal.New(store, store, periods, cfg)
	poster := posting.New(store, cfg)
	return fixture{
		store:     store,
		svc:       recurring.New(store, store, entries, poster, cfg, testLogger()),
		entries:   entries,
		companyID: companyID,
		rent:      rent,
		cash:      cash,
	}
}

func (f fixture) template(name string, start time.Time) ledger.RecurringTemplate {
	return ledger.RecurringTemplate{
		CompanyID:    f.companyID,
		Name:         name,
		Memo:         "Monthly rent",
		CurrencyCode: "USD",
		Frequency:    ledger.FrequencyMonthly,
		StartDate:    start,
		Lines: []ledger.TemplateLine{
			{AccountID: f.rent.ID, Debit: dec("1200.00")},
			{AccountID: f.cash.ID, Credit: dec("1200.00")},
		},
	}
}

func TestCreateDefaults(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.template("Rent", date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != ledger.TemplateStatusActive || created.OccurrenceCount != 0 {
		t.Fatalf("defaults: %+v", created)
	}
	if !created.NextRunDate.Equal(date(2025, 1, 31)) {
		t.Fatalf("next run %s", created.NextRunDate.Format("2006-01-02"))
	}
	if created.EndRule != ledger.EndRuleNever {
		t.Fatalf("end rule %s", created.EndRule)
	}

	if _, err := f.svc.Create(ctx, f.template("Rent", date(2025, 2, 1))); !errors.Is(err, errs.ErrBusinessRule) {
		t.Fatalf("duplicate name: got %v", err)
	}

	unbalanced := f.template("Broken", date(2025, 1, 1))
	unbalanced.Lines[1].Credit = dec("1100.00")
	if _, err := f.svc.Create(ctx, unbalanced); !errors.Is(err, errs.ErrUnbalancedEntry) {
		t.Fatalf("unbalanced template: got %v", err)
	}
}

func TestRunOnceCatchesUpMissedOccurrences(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.template("Rent", date(2025, 1, 31)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// First wake on Feb 28: January 31 and February 28 are both due.
	n, err := f.svc.RunOnce(ctx, date(2025, 2, 28))
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 2 {
		t.Fatalf("posted %d entries, want 2", n)
	}

	after, err := f.svc.Get(ctx, f.companyID, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.OccurrenceCount != 2 {
		t.Fatalf("occurrence count %d", after.OccurrenceCount)
	}
	if !ledger.DateOnly(after.NextRunDate).Equal(date(2025, 3, 31)) {
		t.Fatalf("next run %s", after.NextRunDate.Format("2006-01-02"))
	}
	if after.LastRunDate == nil || !after.LastRunDate.Equal(date(2025, 2, 28)) {
		t.Fatalf("last run %+v", after.LastRunDate)
	}

	// Both generated entries are posted with the intended dates.
	entries, total, err := f.entries.Search(ctx, f.companyID, journal.Filter{Status: ledger.EntryStatusPosted}, 0, 0)
	if err != nil || total != 2 {
		t.Fatalf("search: %v total=%d", err, total)
	}
	if !entries[0].Date.Equal(date(2025, 1, 31)) || !entries[1].Date.Equal(date(2025, 2, 28)) {
		t.Fatalf("entry dates %s %s", entries[0].Date, entries[1].Date)
	}

	// Running again on the same day posts nothing.
	n, err = f.svc.RunOnce(ctx, date(2025, 2, 28))
	if err != nil || n != 0 {
		t.Fatalf("rerun: %v n=%d", err, n)
	}
}

func TestRunOnceSkipsRecordedRuns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.template("Rent", date(2025, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Simulate a crash after the run was recorded but before the template
	// advanced: the next wake must not double-post.
	if err := f.store.RecordRun(ctx, created.ID, uuid.New(), date(2025, 1, 15)); err != nil {
		t.Fatalf("record run: %v", err)
	}
	n, err := f.svc.RunOnce(ctx, date(2025, 1, 15))
	if err != nil || n != 0 {
		t.Fatalf("run once: %v n=%d", err, n)
	}
	after, _ := f.svc.Get(ctx, f.companyID, created.ID)
	if after.OccurrenceCount != 1 || !ledger.DateOnly(after.NextRunDate).Equal(date(2025, 2, 15)) {
		t.Fatalf("template did not advance: %+v", after)
	}
}

func TestEndAfterOccurrencesCompletes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tmpl := f.template("Rent", date(2025, 1, 10))
	tmpl.EndRule = ledger.EndRuleAfterOccurrences
	tmpl.EndAfter = 2
	created, err := f.svc.Create(ctx, tmpl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := f.svc.RunOnce(ctx, date(2025, 6, 30))
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 2 {
		t.Fatalf("posted %d entries, want 2", n)
	}
	after, _ := f.svc.Get(ctx, f.companyID, created.ID)
	if after.Status != ledger.TemplateStatusCompleted {
		t.Fatalf("status %s", after.Status)
	}

	// A completed template never fires again.
	if n, _ := f.svc.RunOnce(ctx, date(2025, 12, 31)); n != 0 {
		t.Fatalf("completed template fired")
	}
}

func TestFailedSubmissionDoesNotAdvance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// No period covers 2024, so posting fails.
	created, err := f.svc.Create(ctx, f.template("Rent", date(2024, 12, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := f.svc.RunOnce(ctx, date(2024, 12, 1))
	if err != nil || n != 0 {
		t.Fatalf("run once: %v n=%d", err, n)
	}
	after, _ := f.svc.Get(ctx, f.companyID, created.ID)
	if after.OccurrenceCount != 0 || !ledger.DateOnly(after.NextRunDate).Equal(date(2024, 12, 1)) {
		t.Fatalf("failed run advanced the template: %+v", after)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.template("Rent", date(2025, 1, 1)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paused, err := f.svc.Pause(ctx, f.companyID, created.ID)
	if err != nil || paused.Status != ledger.TemplateStatusPaused {
		t.Fatalf("pause: %v %s", err, paused.Status)
	}
	// Paused templates are not due.
	if n, _ := f.svc.RunOnce(ctx, date(2025, 3, 1)); n != 0 {
		t.Fatalf("paused template fired")
	}
	if _, err := f.svc.Pause(ctx, f.companyID, created.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("double pause: got %v", err)
	}

	resumed, err := f.svc.Resume(ctx, f.companyID, created.ID)
	if err != nil || resumed.Status != ledger.TemplateStatusActive {
		t.Fatalf("resume: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, f.companyID, created.ID)
	if err != nil || cancelled.Status != ledger.TemplateStatusCancelled {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Resume(ctx, f.companyID, created.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("resume cancelled: got %v", err)
	}
	if _, err := f.svc.Update(ctx, cancelled); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("update cancelled: got %v", err)
	}
}
