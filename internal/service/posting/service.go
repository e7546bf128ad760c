// Package posting implements the posting engine: the atomic transition of
// journal entries from draft to posted, reversal, and the approval-state
// transitions it consumes. All balance writes go through the balance
// projector inside a single store transaction; a failure at any step rolls
// the whole batch back.
package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/balance"
)

// Tx is one posting transaction. Implementations lock the entry row and the
// touched account rows for the duration; Commit applies everything or
// nothing.
type Tx interface {
	balance.Store

	GetEntryForUpdate(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error)
	// AccountsForUpdate locks and returns the given accounts. Callers pass
	// IDs in a deterministic order so concurrent posts cannot deadlock.
	AccountsForUpdate(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	UpdateEntry(ctx context.Context, e ledger.JournalEntry) error
	CreateEntry(ctx context.Context, e ledger.JournalEntry) error
	NextEntryNumber(ctx context.Context, companyID uuid.UUID, yearMonth string) (int, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens posting transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Service exposes the posting engine operations.
type Service interface {
	SubmitForApproval(ctx context.Context, companyID, entryID, userID uuid.UUID) (ledger.JournalEntry, error)
	Approve(ctx context.Context, companyID, entryID, approverID uuid.UUID) (ledger.JournalEntry, error)
	Reject(ctx context.Context, companyID, entryID, approverID uuid.UUID, reason string) (ledger.JournalEntry, error)
	Post(ctx context.Context, companyID, entryID, userID uuid.UUID) (ledger.JournalEntry, error)
	// Reverse posts a fresh entry with debits and credits swapped
	// line-for-line, links both entries, and voids the original.
	Reverse(ctx context.Context, companyID, entryID uuid.UUID, reversalDate time.Time, reference string, userID uuid.UUID) (ledger.JournalEntry, error)
}

type service struct {
	store     Store
	projector *balance.Projector
	cfg       config.Config
}

// New constructs the posting engine.
func New(store Store, cfg config.Config) Service {
	return &service{store: store, projector: balance.NewProjector(cfg), cfg: cfg}
}

func (s *service) SubmitForApproval(ctx context.Context, companyID, entryID, userID uuid.UUID) (ledger.JournalEntry, error) {
	return s.transition(ctx, companyID, entryID, func(e *ledger.JournalEntry) error {
		if e.Status != ledger.EntryStatusDraft {
			return fmt.Errorf("entry %s is %s, not draft: %w", e.EntryNumber, e.Status, errs.ErrInvalidState)
		}
		e.Status = ledger.EntryStatusPendingApproval
		return nil
	})
}

func (s *service) Approve(ctx context.Context, companyID, entryID, approverID uuid.UUID) (ledger.JournalEntry, error) {
	return s.transition(ctx, companyID, entryID, func(e *ledger.JournalEntry) error {
		if e.Status != ledger.EntryStatusPendingApproval {
			return fmt.Errorf("entry %s is %s, not pending approval: %w", e.EntryNumber, e.Status, errs.ErrInvalidState)
		}
		e.Status = ledger.EntryStatusApproved
		e.ApprovedBy = &approverID
		return nil
	})
}

func (s *service) Reject(ctx context.Context, companyID, entryID, approverID uuid.UUID, reason string) (ledger.JournalEntry, error) {
	if reason == "" {
		return ledger.JournalEntry{}, fmt.Errorf("a rejection reason is required: %w", errs.ErrValidation)
	}
	e, err := s.transition(ctx, companyID, entryID, func(e *ledger.JournalEntry) error {
		if e.Status != ledger.EntryStatusPendingApproval {
			return fmt.Errorf("entry %s is %s, not pending approval: %w", e.EntryNumber, e.Status, errs.ErrInvalidState)
		}
		e.Status = ledger.EntryStatusDraft
		e.ApprovedBy = nil
		e.RejectReason = reason
		return nil
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	entriesRejected.Inc()
	return e, nil
}

func (s *service) transition(ctx context.Context, companyID, entryID uuid.UUID, mutate func(*ledger.JournalEntry) error) (ledger.JournalEntry, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := mutate(&e); err != nil {
		return ledger.JournalEntry{}, err
	}
	e.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateEntry(ctx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

// Post atomically transitions an entry to Posted and applies its lines to the
// ledger balances. Cancellation is honored before the transaction begins;
// once balance application starts the operation runs to commit or rollback.
func (s *service) Post(ctx context.Context, companyID, entryID, userID uuid.UUID) (ledger.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.JournalEntry{}, err
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	posted, err := s.postLocked(ctx, tx, e, userID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	entriesPosted.Inc()
	return posted, nil
}

// postLocked runs the post algorithm against an entry already locked in tx.
func (s *service) postLocked(ctx context.Context, tx Tx, e ledger.JournalEntry, userID uuid.UUID) (ledger.JournalEntry, error) {
	if e.Deleted {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s: %w", e.EntryNumber, errs.ErrNotFound)
	}
	if !e.Status.Postable() {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s is %s: %w", e.EntryNumber, e.Status, errs.ErrInvalidState)
	}

	// Re-derive totals inside the lock; stored totals may have drifted.
	e.SortLines()
	e.ComputeTotals()
	if !e.Balanced(s.cfg.Epsilon) {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s debits %s != credits %s: %w",
			e.EntryNumber, e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2), errs.ErrUnbalancedEntry)
	}

	p, err := s.resolveOpenPeriod(ctx, tx, e.CompanyID, e.Date)
	if err != nil {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s: %w", e.EntryNumber, err)
	}

	ids := make([]uuid.UUID, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, l.AccountID)
	}
	sortUUIDs(ids)
	accounts, err := tx.AccountsForUpdate(ctx, e.CompanyID, ids)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	for _, l := range e.Lines {
		acc, ok := accounts[l.AccountID]
		if !ok {
			return ledger.JournalEntry{}, fmt.Errorf("line %d account: %w", l.LineNumber, errs.ErrNotFound)
		}
		if !acc.IsActive() {
			return ledger.JournalEntry{}, fmt.Errorf("account %s is %s: %w", acc.Code, acc.Status, errs.ErrAccountInactive)
		}
	}

	// Apply lines in line-number order; each account sees this entry once
	// per line, and closing-balance recomputation is associative across
	// entries.
	for _, l := range e.Lines {
		acc := accounts[l.AccountID]
		if err := s.projector.Apply(ctx, tx, acc, p.ID, l.BaseDebit(), l.BaseCredit()); err != nil {
			return ledger.JournalEntry{}, err
		}
	}

	now := time.Now().UTC()
	e.Status = ledger.EntryStatusPosted
	e.PeriodID = &p.ID
	e.PostedAt = &now
	e.PostedBy = &userID
	e.UpdatedAt = now
	if err := tx.UpdateEntry(ctx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

// resolveOpenPeriod finds the open period containing date. With a grace
// window configured, a date up to PeriodGraceDays past a period's end still
// resolves into that period when no later period covers it.
func (s *service) resolveOpenPeriod(ctx context.Context, tx Tx, companyID uuid.UUID, date time.Time) (ledger.AccountingPeriod, error) {
	periods, err := tx.PeriodsByCompany(ctx, companyID)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	for _, p := range periods {
		if p.Contains(date) {
			if p.Closed {
				return ledger.AccountingPeriod{}, fmt.Errorf("period %s is closed: %w", p.Name, errs.ErrPeriodClosed)
			}
			return p, nil
		}
	}
	if s.cfg.PeriodGraceDays > 0 {
		d := ledger.DateOnly(date)
		for i := len(periods) - 1; i >= 0; i-- {
			p := periods[i]
			end := ledger.DateOnly(p.EndDate)
			if d.After(end) && !d.After(end.AddDate(0, 0, s.cfg.PeriodGraceDays)) {
				if p.Closed {
					return ledger.AccountingPeriod{}, fmt.Errorf("period %s is closed: %w", p.Name, errs.ErrPeriodClosed)
				}
				return p, nil
			}
		}
	}
	return ledger.AccountingPeriod{}, fmt.Errorf("no open period covers %s: %w", ledger.DateOnly(date).Format("2006-01-02"), errs.ErrPeriodClosed)
}

// Reverse creates and posts the counter-entry inside one transaction, then
// voids the original and links the pair.
func (s *service) Reverse(ctx context.Context, companyID, entryID uuid.UUID, reversalDate time.Time, reference string, userID uuid.UUID) (ledger.JournalEntry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.JournalEntry{}, err
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orig, err := tx.GetEntryForUpdate(ctx, companyID, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if orig.Status != ledger.EntryStatusPosted {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s is %s, only posted entries reverse: %w", orig.EntryNumber, orig.Status, errs.ErrInvalidState)
	}
	if orig.ReversedEntryID != nil {
		return ledger.JournalEntry{}, fmt.Errorf("entry %s is already reversed: %w", orig.EntryNumber, errs.ErrInvalidState)
	}
	if reversalDate.IsZero() {
		reversalDate = orig.Date
	}

	seq, err := tx.NextEntryNumber(ctx, companyID, ledger.YearMonthKey(reversalDate))
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	now := time.Now().UTC()
	rev := ledger.JournalEntry{
		ID:              uuid.New(),
		CompanyID:       companyID,
		EntryNumber:     ledger.FormatEntryNumber(reversalDate, seq),
		Date:            ledger.DateOnly(reversalDate),
		Reference:       reference,
		Memo:            "Reversal of " + orig.EntryNumber,
		CurrencyCode:    orig.CurrencyCode,
		ExchangeRate:    orig.ExchangeRate,
		Status:          ledger.EntryStatusReversing,
		Reversing:       true,
		ReversedEntryID: &orig.ID,
		CreatedBy:       userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	orig.SortLines()
	for _, l := range orig.Lines {
		rev.Lines = append(rev.Lines, ledger.JournalEntryLine{
			ID:           uuid.New(),
			EntryID:      rev.ID,
			LineNumber:   l.LineNumber,
			AccountID:    l.AccountID,
			Description:  l.Description,
			Reference:    l.Reference,
			Debit:        l.Credit,
			Credit:       l.Debit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
		})
	}
	rev.ComputeTotals()
	if err := tx.CreateEntry(ctx, rev); err != nil {
		return ledger.JournalEntry{}, err
	}

	posted, err := s.postLocked(ctx, tx, rev, userID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}

	orig.Status = ledger.EntryStatusVoid
	orig.ReversedEntryID = &posted.ID
	orig.UpdatedAt = now
	if err := tx.UpdateEntry(ctx, orig); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	entriesReversed.Inc()
	return posted, nil
}

func sortUUIDs(ids []uuid.UUID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].String() < ids[j-1].String(); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
