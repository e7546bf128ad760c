// Package journal implements the journal store: structural validation of
// entries and lines, deterministic entry numbering, and search. Posting and
// reversal live in the posting package.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/money"
	"github.com/corefin/ledger/internal/service/period"
)

// Filter narrows an entry search. Zero values mean "any".
type Filter struct {
	Status     ledger.EntryStatus
	DateFrom   *time.Time
	DateTo     *time.Time
	Reference  string
	Memo       string
	AccountID  uuid.UUID
	CreatedBy  uuid.UUID
	ApprovedBy uuid.UUID
}

// Repo defines read operations needed by the service.
type Repo interface {
	GetEntry(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error)
	SearchEntries(ctx context.Context, companyID uuid.UUID, f Filter, limit, offset int) ([]ledger.JournalEntry, int, error)
	AccountsByIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	UpdateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	// NextEntryNumber atomically allocates the next sequence number for the
	// (company, YYYYMM) bucket. Concurrent callers observe strict monotonicity.
	NextEntryNumber(ctx context.Context, companyID uuid.UUID, yearMonth string) (int, error)
}

// Service exposes journal CRUD and validation.
type Service interface {
	Validate(ctx context.Context, e *ledger.JournalEntry) error
	Create(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	Get(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error)
	Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	Delete(ctx context.Context, companyID, entryID uuid.UUID) error
	Search(ctx context.Context, companyID uuid.UUID, f Filter, limit, offset int) ([]ledger.JournalEntry, int, error)
}

type service struct {
	repo    Repo
	writer  Writer
	periods period.Service
	cfg     config.Config
}

// New constructs the journal service.
func New(repo Repo, writer Writer, periods period.Service, cfg config.Config) Service {
	return &service{repo: repo, writer: writer, periods: periods, cfg: cfg}
}

// Validate checks every structural invariant of an entry and its lines,
// normalizes line numbers and currency codes, and recomputes totals.
func (s *service) Validate(ctx context.Context, e *ledger.JournalEntry) error {
	if e.CompanyID == uuid.Nil {
		return fmt.Errorf("company_id is required: %w", errs.ErrValidation)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("date is required: %w", errs.ErrValidation)
	}
	e.CurrencyCode = money.NormalizeCurrency(e.CurrencyCode)
	if e.CurrencyCode == "" {
		e.CurrencyCode = s.cfg.BaseCurrency
	}
	if !money.ValidCurrency(e.CurrencyCode) {
		return fmt.Errorf("invalid currency %q: %w", e.CurrencyCode, errs.ErrValidation)
	}
	if e.ExchangeRate.IsZero() {
		e.ExchangeRate = decimal.New(1, 0)
	}
	if e.ExchangeRate.IsNegative() {
		return fmt.Errorf("exchange rate must be positive: %w", errs.ErrValidation)
	}
	if len(e.Lines) < 2 {
		return fmt.Errorf("entry needs at least two lines: %w", errs.ErrValidation)
	}

	assignNumbers := true
	for _, l := range e.Lines {
		if l.LineNumber != 0 {
			assignNumbers = false
			break
		}
	}
	seenNumbers := make(map[int]struct{}, len(e.Lines))
	seenAccounts := make(map[uuid.UUID]int, len(e.Lines))
	ids := make([]uuid.UUID, 0, len(e.Lines))
	for i := range e.Lines {
		l := &e.Lines[i]
		if assignNumbers {
			l.LineNumber = i + 1
		}
		if l.LineNumber < 1 || l.LineNumber > len(e.Lines) {
			return fmt.Errorf("line %d: line numbers must be 1..%d: %w", l.LineNumber, len(e.Lines), errs.ErrValidation)
		}
		if _, dup := seenNumbers[l.LineNumber]; dup {
			return fmt.Errorf("duplicate line number %d: %w", l.LineNumber, errs.ErrValidation)
		}
		seenNumbers[l.LineNumber] = struct{}{}
		if l.AccountID == uuid.Nil {
			return fmt.Errorf("line %d: account_id is required: %w", l.LineNumber, errs.ErrValidation)
		}
		if prev, dup := seenAccounts[l.AccountID]; dup {
			return fmt.Errorf("lines %d and %d reference the same account: %w", prev, l.LineNumber, errs.ErrValidation)
		}
		seenAccounts[l.AccountID] = l.LineNumber
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("line %d: amounts must not be negative: %w", l.LineNumber, errs.ErrValidation)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return fmt.Errorf("line %d: exactly one of debit and credit must be positive: %w", l.LineNumber, errs.ErrValidation)
		}
		if l.CurrencyCode == "" {
			l.CurrencyCode = e.CurrencyCode
		}
		l.CurrencyCode = money.NormalizeCurrency(l.CurrencyCode)
		if !money.ValidCurrency(l.CurrencyCode) {
			return fmt.Errorf("line %d: invalid currency %q: %w", l.LineNumber, l.CurrencyCode, errs.ErrValidation)
		}
		if l.ExchangeRate.IsZero() {
			l.ExchangeRate = e.ExchangeRate
		}
		ids = append(ids, l.AccountID)
	}

	accounts, err := s.repo.AccountsByIDs(ctx, e.CompanyID, ids)
	if err != nil {
		return err
	}
	for _, l := range e.Lines {
		acc, ok := accounts[l.AccountID]
		if !ok {
			return fmt.Errorf("line %d: account not found: %w", l.LineNumber, errs.ErrNotFound)
		}
		if !acc.IsActive() {
			return fmt.Errorf("line %d: account %s is %s: %w", l.LineNumber, acc.Code, acc.Status, errs.ErrAccountInactive)
		}
	}

	e.SortLines()
	e.ComputeTotals()
	if !e.Balanced(s.cfg.Epsilon) {
		return fmt.Errorf("debits %s != credits %s: %w",
			e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2), errs.ErrUnbalancedEntry)
	}
	return nil
}

// Create validates the entry, resolves its period, allocates the next entry
// number and persists it as Draft. An entry dated outside any open period may
// be stored; it just cannot advance to Posted until a period covers it.
func (s *service) Create(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	if err := s.Validate(ctx, &e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if p, ok, err := s.periods.Resolve(ctx, e.CompanyID, e.Date); err != nil {
		return ledger.JournalEntry{}, err
	} else if ok {
		e.PeriodID = &p.ID
	} else {
		e.PeriodID = nil
	}

	seq, err := s.writer.NextEntryNumber(ctx, e.CompanyID, ledger.YearMonthKey(e.Date))
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	now := time.Now().UTC()
	e.ID = uuid.New()
	e.EntryNumber = ledger.FormatEntryNumber(e.Date, seq)
	if e.Status == "" {
		e.Status = ledger.EntryStatusDraft
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	for i := range e.Lines {
		e.Lines[i].ID = uuid.New()
		e.Lines[i].EntryID = e.ID
	}
	return s.writer.CreateEntry(ctx, e)
}

func (s *service) Get(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	if companyID == uuid.Nil || entryID == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrValidation
	}
	return s.repo.GetEntry(ctx, companyID, entryID)
}

// Update replaces the mutable fields of a Draft or PendingApproval entry.
// Totals are recomputed and the full validation re-runs.
func (s *service) Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	current, err := s.Get(ctx, e.CompanyID, e.ID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if !current.Status.Mutable() {
		return ledger.JournalEntry{}, fmt.Errorf("%s entry is immutable: %w", current.Status, errs.ErrInvalidState)
	}
	if err := s.Validate(ctx, &e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if p, ok, err := s.periods.Resolve(ctx, e.CompanyID, e.Date); err != nil {
		return ledger.JournalEntry{}, err
	} else if ok {
		e.PeriodID = &p.ID
	} else {
		e.PeriodID = nil
	}
	// Identity and provenance fields never change on update.
	e.EntryNumber = current.EntryNumber
	e.Status = current.Status
	e.CreatedBy = current.CreatedBy
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = time.Now().UTC()
	for i := range e.Lines {
		if e.Lines[i].ID == uuid.Nil {
			e.Lines[i].ID = uuid.New()
		}
		e.Lines[i].EntryID = e.ID
	}
	return s.writer.UpdateEntry(ctx, e)
}

// Delete soft-deletes a Draft entry. Anything further along the lifecycle
// must be reversed instead.
func (s *service) Delete(ctx context.Context, companyID, entryID uuid.UUID) error {
	e, err := s.Get(ctx, companyID, entryID)
	if err != nil {
		return err
	}
	if e.Status != ledger.EntryStatusDraft {
		return fmt.Errorf("only draft entries may be deleted: %w", errs.ErrInvalidState)
	}
	e.Deleted = true
	e.UpdatedAt = time.Now().UTC()
	_, err = s.writer.UpdateEntry(ctx, e)
	return err
}

func (s *service) Search(ctx context.Context, companyID uuid.UUID, f Filter, limit, offset int) ([]ledger.JournalEntry, int, error) {
	if companyID == uuid.Nil {
		return nil, 0, errs.ErrValidation
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.SearchEntries(ctx, companyID, f, limit, offset)
}
