package period_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/storage/memory"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpenRejectsOverlap(t *testing.T) {
	store := memory.New()
	svc := period.New(store, store)
	ctx := context.Background()
	companyID := uuid.New()

	jan, err := svc.Open(ctx, companyID, date(2025, 1, 1), date(2025, 1, 31), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if jan.Name != "January 2025" {
		t.Fatalf("default name %q", jan.Name)
	}

	if _, err := svc.Open(ctx, companyID, date(2025, 1, 31), date(2025, 2, 28), ""); !errors.Is(err, errs.ErrBusinessRule) {
		t.Fatalf("overlap: got %v", err)
	}
	if _, err := svc.Open(ctx, companyID, date(2025, 2, 28), date(2025, 2, 1), ""); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("inverted range: got %v", err)
	}
	if _, err := svc.Open(ctx, companyID, date(2025, 2, 1), date(2025, 2, 28), "Feb"); err != nil {
		t.Fatalf("adjacent period: %v", err)
	}

	// Another company may use the same range.
	if _, err := svc.Open(ctx, uuid.New(), date(2025, 1, 1), date(2025, 1, 31), ""); err != nil {
		t.Fatalf("other company: %v", err)
	}
}

func TestResolve(t *testing.T) {
	store := memory.New()
	svc := period.New(store, store)
	ctx := context.Background()
	companyID := uuid.New()

	jan, _ := svc.Open(ctx, companyID, date(2025, 1, 1), date(2025, 1, 31), "")
	p, ok, err := svc.Resolve(ctx, companyID, date(2025, 1, 15))
	if err != nil || !ok || p.ID != jan.ID {
		t.Fatalf("resolve: %v %v %+v", err, ok, p)
	}
	if _, ok, _ := svc.Resolve(ctx, companyID, date(2025, 2, 15)); ok {
		t.Fatalf("no period covers February")
	}
}

func TestCloseBlockedByUnpostedEntries(t *testing.T) {
	store := memory.New()
	svc := period.New(store, store)
	ctx := context.Background()
	companyID := uuid.New()
	userID := uuid.New()

	if _, err := svc.Open(ctx, companyID, date(2025, 1, 1), date(2025, 1, 31), ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	draft := ledger.JournalEntry{
		ID:        uuid.New(),
		CompanyID: companyID,
		Date:      date(2025, 1, 10),
		Status:    ledger.EntryStatusDraft,
		Lines: []ledger.JournalEntryLine{
			{LineNumber: 1, AccountID: uuid.New(), Debit: decimal.RequireFromString("10")},
			{LineNumber: 2, AccountID: uuid.New(), Credit: decimal.RequireFromString("10")},
		},
	}
	store.SeedEntry(draft)

	if _, err := svc.Close(ctx, companyID, 2025, time.January, userID); !errors.Is(err, errs.ErrBusinessRule) {
		t.Fatalf("close with draft: got %v", err)
	}

	// Posted entries no longer block.
	now := time.Now().UTC()
	draft.Status = ledger.EntryStatusPosted
	draft.PostedAt = &now
	store.SeedEntry(draft)

	closed, err := svc.Close(ctx, companyID, 2025, time.January, userID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.Closed || closed.ClosedAt == nil || closed.ClosedBy == nil || *closed.ClosedBy != userID {
		t.Fatalf("close did not stamp: %+v", closed)
	}

	if _, err := svc.Close(ctx, companyID, 2025, time.January, userID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("double close: got %v", err)
	}
	if _, err := svc.Close(ctx, companyID, 2025, time.March, userID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("close missing month: got %v", err)
	}
}

func TestReopen(t *testing.T) {
	store := memory.New()
	svc := period.New(store, store)
	ctx := context.Background()
	companyID := uuid.New()

	jan, _ := svc.Open(ctx, companyID, date(2025, 1, 1), date(2025, 1, 31), "")
	if _, err := svc.Reopen(ctx, companyID, jan.ID); !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("reopen open period: got %v", err)
	}
	if _, err := svc.Close(ctx, companyID, 2025, time.January, uuid.New()); err != nil {
		t.Fatalf("close: %v", err)
	}
	reopened, err := svc.Reopen(ctx, companyID, jan.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Closed || reopened.ClosedAt != nil || reopened.ClosedBy != nil {
		t.Fatalf("reopen did not clear close state: %+v", reopened)
	}
}
