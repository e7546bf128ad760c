// Package period implements the accounting-period registry: opening,
// resolving, closing, and administratively reopening periods.
package period

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

// Repo defines read operations needed by the service.
type Repo interface {
	// ListPeriods returns a company's periods ordered by start date.
	ListPeriods(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error)
	GetPeriod(ctx context.Context, companyID, periodID uuid.UUID) (ledger.AccountingPeriod, error)
	// CountUnpostedEntries counts non-deleted entries dated in [start, end]
	// that are neither Posted nor Void. These block a close.
	CountUnpostedEntries(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreatePeriod(ctx context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error)
	UpdatePeriod(ctx context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error)
}

// Service exposes the period registry operations.
type Service interface {
	Open(ctx context.Context, companyID uuid.UUID, start, end time.Time, name string) (ledger.AccountingPeriod, error)
	Close(ctx context.Context, companyID uuid.UUID, year int, month time.Month, closedBy uuid.UUID) (ledger.AccountingPeriod, error)
	// Reopen clears the closed flag. Policy for who may reopen lives with
	// the caller.
	Reopen(ctx context.Context, companyID, periodID uuid.UUID) (ledger.AccountingPeriod, error)
	Resolve(ctx context.Context, companyID uuid.UUID, date time.Time) (ledger.AccountingPeriod, bool, error)
	List(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error)
}

type service struct {
	repo   Repo
	writer Writer
}

// New constructs the period service.
func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) Open(ctx context.Context, companyID uuid.UUID, start, end time.Time, name string) (ledger.AccountingPeriod, error) {
	if companyID == uuid.Nil {
		return ledger.AccountingPeriod{}, errs.ErrValidation
	}
	start, end = ledger.DateOnly(start), ledger.DateOnly(end)
	if end.Before(start) {
		return ledger.AccountingPeriod{}, fmt.Errorf("start must not be after end: %w", errs.ErrValidation)
	}
	existing, err := s.repo.ListPeriods(ctx, companyID)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	for _, p := range existing {
		if p.Overlaps(start, end) {
			return ledger.AccountingPeriod{}, fmt.Errorf("period overlaps %s: %w", p.Name, errs.ErrBusinessRule)
		}
	}
	if name == "" {
		name = start.Format("January 2006")
	}
	p := ledger.AccountingPeriod{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      name,
		StartDate: start,
		EndDate:   end,
	}
	return s.writer.CreatePeriod(ctx, p)
}

// Close marks the calendar-month period closed. It fails with the count of
// blocking entries when any entry in the range is still mutable, and is
// atomic: flag, timestamp and closing user are written together.
func (s *service) Close(ctx context.Context, companyID uuid.UUID, year int, month time.Month, closedBy uuid.UUID) (ledger.AccountingPeriod, error) {
	if companyID == uuid.Nil {
		return ledger.AccountingPeriod{}, errs.ErrValidation
	}
	start, _ := ledger.MonthPeriodBounds(year, month)
	p, ok, err := s.Resolve(ctx, companyID, start)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	if !ok {
		return ledger.AccountingPeriod{}, fmt.Errorf("no period covers %04d-%02d: %w", year, int(month), errs.ErrNotFound)
	}
	if p.Closed {
		return ledger.AccountingPeriod{}, fmt.Errorf("period %s already closed: %w", p.Name, errs.ErrInvalidState)
	}
	blockers, err := s.repo.CountUnpostedEntries(ctx, companyID, p.StartDate, p.EndDate)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	if blockers > 0 {
		return ledger.AccountingPeriod{}, fmt.Errorf("%d unposted entries block the close: %w", blockers, errs.ErrBusinessRule)
	}
	now := time.Now().UTC()
	p.Closed = true
	p.ClosedAt = &now
	p.ClosedBy = &closedBy
	return s.writer.UpdatePeriod(ctx, p)
}

func (s *service) Reopen(ctx context.Context, companyID, periodID uuid.UUID) (ledger.AccountingPeriod, error) {
	p, err := s.repo.GetPeriod(ctx, companyID, periodID)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	if !p.Closed {
		return ledger.AccountingPeriod{}, fmt.Errorf("period %s is open: %w", p.Name, errs.ErrInvalidState)
	}
	p.Closed = false
	p.ClosedAt = nil
	p.ClosedBy = nil
	return s.writer.UpdatePeriod(ctx, p)
}

func (s *service) Resolve(ctx context.Context, companyID uuid.UUID, date time.Time) (ledger.AccountingPeriod, bool, error) {
	periods, err := s.repo.ListPeriods(ctx, companyID)
	if err != nil {
		return ledger.AccountingPeriod{}, false, err
	}
	for _, p := range periods {
		if p.Contains(date) {
			return p, true, nil
		}
	}
	return ledger.AccountingPeriod{}, false, nil
}

func (s *service) List(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	if companyID == uuid.Nil {
		return nil, errs.ErrValidation
	}
	return s.repo.ListPeriods(ctx, companyID)
}
