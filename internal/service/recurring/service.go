// Package recurring manages journal templates that fire on a schedule and a
// scheduler loop that submits the generated entries.
package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/money"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/posting"
)

// Repo defines read operations needed by the service.
type Repo interface {
	ListTemplates(ctx context.Context, companyID uuid.UUID) ([]ledger.RecurringTemplate, error)
	GetTemplate(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)
	// DueTemplates returns active templates across all companies whose next
	// run date is on or before asOf.
	DueTemplates(ctx context.Context, asOf time.Time) ([]ledger.RecurringTemplate, error)
	// RunExists reports whether a run for (template, intended entry date) was
	// already recorded. This is the duplicate guard for crash recovery.
	RunExists(ctx context.Context, templateID uuid.UUID, date time.Time) (bool, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateTemplate(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error)
	UpdateTemplate(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error)
	RecordRun(ctx context.Context, templateID, entryID uuid.UUID, date time.Time) error
}

// Service exposes template CRUD, lifecycle transitions and the run step the
// scheduler drives.
type Service interface {
	Create(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error)
	Update(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error)
	Get(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)
	List(ctx context.Context, companyID uuid.UUID) ([]ledger.RecurringTemplate, error)
	Pause(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)
	Resume(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)
	Cancel(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)
	ListDue(ctx context.Context, asOf time.Time) ([]ledger.RecurringTemplate, error)
	// RunOnce processes every due template, catching up missed occurrences
	// one at a time. It returns the number of entries posted.
	RunOnce(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo    Repo
	writer  Writer
	entries journal.Service
	poster  posting.Service
	cfg     config.Config
	log     *slog.Logger
}

// New constructs the recurring service.
func New(repo Repo, writer Writer, entries journal.Service, poster posting.Service, cfg config.Config, log *slog.Logger) Service {
	return &service{repo: repo, writer: writer, entries: entries, poster: poster, cfg: cfg, log: log}
}

func (s *service) validate(t *ledger.RecurringTemplate) error {
	if t.CompanyID == uuid.Nil {
		return fmt.Errorf("company_id is required: %w", errs.ErrValidation)
	}
	if t.Name == "" {
		return fmt.Errorf("name is required: %w", errs.ErrValidation)
	}
	if !t.Frequency.Valid() {
		return fmt.Errorf("invalid frequency %q: %w", t.Frequency, errs.ErrValidation)
	}
	if t.Interval <= 0 {
		t.Interval = 1
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("start_date is required: %w", errs.ErrValidation)
	}
	t.StartDate = ledger.DateOnly(t.StartDate)
	switch t.EndRule {
	case "":
		t.EndRule = ledger.EndRuleNever
	case ledger.EndRuleNever:
	case ledger.EndRuleAfterOccurrences:
		if t.EndAfter <= 0 {
			return fmt.Errorf("end_after must be positive: %w", errs.ErrValidation)
		}
	case ledger.EndRuleOnDate:
		if t.EndDate == nil || t.EndDate.Before(t.StartDate) {
			return fmt.Errorf("end_date must be on or after start_date: %w", errs.ErrValidation)
		}
	default:
		return fmt.Errorf("invalid end_rule %q: %w", t.EndRule, errs.ErrValidation)
	}
	t.CurrencyCode = money.NormalizeCurrency(t.CurrencyCode)
	if t.CurrencyCode == "" {
		t.CurrencyCode = s.cfg.BaseCurrency
	}
	if !money.ValidCurrency(t.CurrencyCode) {
		return fmt.Errorf("invalid currency %q: %w", t.CurrencyCode, errs.ErrValidation)
	}
	if len(t.Lines) < 2 {
		return fmt.Errorf("template needs at least two lines: %w", errs.ErrValidation)
	}
	for i, l := range t.Lines {
		if l.AccountID == uuid.Nil {
			return fmt.Errorf("line %d: account_id is required: %w", i+1, errs.ErrValidation)
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("line %d: amounts must not be negative: %w", i+1, errs.ErrValidation)
		}
		if l.Debit.IsPositive() == l.Credit.IsPositive() {
			return fmt.Errorf("line %d: exactly one of debit and credit must be positive: %w", i+1, errs.ErrValidation)
		}
	}
	if !t.Balanced(s.cfg.Epsilon) {
		return fmt.Errorf("template lines are unbalanced: %w", errs.ErrUnbalancedEntry)
	}
	return nil
}

func (s *service) Create(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	if err := s.validate(&t); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	existing, err := s.repo.ListTemplates(ctx, t.CompanyID)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	for _, other := range existing {
		if other.Name == t.Name && other.Status != ledger.TemplateStatusCancelled {
			return ledger.RecurringTemplate{}, fmt.Errorf("template %q already exists: %w", t.Name, errs.ErrBusinessRule)
		}
	}
	now := time.Now().UTC()
	t.ID = uuid.New()
	t.Status = ledger.TemplateStatusActive
	t.NextRunDate = t.StartDate
	t.LastRunDate = nil
	t.OccurrenceCount = 0
	t.CreatedAt = now
	t.UpdatedAt = now
	return s.writer.CreateTemplate(ctx, t)
}

// Update replaces a template's definition. Schedule progress (occurrence
// count, last run) is preserved; the next run date is recomputed from the
// new schedule so an edited frequency takes effect immediately.
func (s *service) Update(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	current, err := s.Get(ctx, t.CompanyID, t.ID)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if current.Status == ledger.TemplateStatusCancelled || current.Status == ledger.TemplateStatusCompleted {
		return ledger.RecurringTemplate{}, fmt.Errorf("%s template is immutable: %w", current.Status, errs.ErrInvalidState)
	}
	if err := s.validate(&t); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	t.Status = current.Status
	t.LastRunDate = current.LastRunDate
	t.OccurrenceCount = current.OccurrenceCount
	next, err := t.OccurrenceDate(t.OccurrenceCount)
	if err != nil {
		return ledger.RecurringTemplate{}, fmt.Errorf("%s: %w", err, errs.ErrValidation)
	}
	t.NextRunDate = next
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	return s.writer.UpdateTemplate(ctx, t)
}

func (s *service) Get(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	if companyID == uuid.Nil || templateID == uuid.Nil {
		return ledger.RecurringTemplate{}, errs.ErrValidation
	}
	return s.repo.GetTemplate(ctx, companyID, templateID)
}

func (s *service) List(ctx context.Context, companyID uuid.UUID) ([]ledger.RecurringTemplate, error) {
	if companyID == uuid.Nil {
		return nil, errs.ErrValidation
	}
	return s.repo.ListTemplates(ctx, companyID)
}

func (s *service) transition(ctx context.Context, companyID, templateID uuid.UUID, from []ledger.TemplateStatus, to ledger.TemplateStatus) (ledger.RecurringTemplate, error) {
	t, err := s.Get(ctx, companyID, templateID)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	ok := false
	for _, st := range from {
		if t.Status == st {
			ok = true
			break
		}
	}
	if !ok {
		return ledger.RecurringTemplate{}, fmt.Errorf("cannot move %s template to %s: %w", t.Status, to, errs.ErrInvalidState)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return s.writer.UpdateTemplate(ctx, t)
}

func (s *service) Pause(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	return s.transition(ctx, companyID, templateID,
		[]ledger.TemplateStatus{ledger.TemplateStatusActive}, ledger.TemplateStatusPaused)
}

func (s *service) Resume(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	return s.transition(ctx, companyID, templateID,
		[]ledger.TemplateStatus{ledger.TemplateStatusPaused}, ledger.TemplateStatusActive)
}

func (s *service) Cancel(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	return s.transition(ctx, companyID, templateID,
		[]ledger.TemplateStatus{ledger.TemplateStatusActive, ledger.TemplateStatusPaused}, ledger.TemplateStatusCancelled)
}

func (s *service) ListDue(ctx context.Context, asOf time.Time) ([]ledger.RecurringTemplate, error) {
	return s.repo.DueTemplates(ctx, ledger.DateOnly(asOf))
}

// RunOnce walks the due templates. Each occurrence is processed in order: if
// no run for the intended date exists the template's entry is created and
// posted, the run is recorded, and the template advances to its next
// occurrence. A failed submission stops that template without advancing, so
// it retries on the next wake.
func (s *service) RunOnce(ctx context.Context, now time.Time) (int, error) {
	today := ledger.DateOnly(now)
	due, err := s.repo.DueTemplates(ctx, today)
	if err != nil {
		return 0, err
	}
	posted := 0
	for _, t := range due {
		n, err := s.runTemplate(ctx, t, today)
		posted += n
		if err != nil {
			if ctx.Err() != nil {
				return posted, ctx.Err()
			}
			s.log.Error("recurring template run failed",
				slog.String("template_id", t.ID.String()),
				slog.String("template", t.Name),
				slog.String("error", err.Error()))
		}
	}
	return posted, nil
}

func (s *service) runTemplate(ctx context.Context, t ledger.RecurringTemplate, today time.Time) (int, error) {
	posted := 0
	for t.Status == ledger.TemplateStatusActive && !ledger.DateOnly(t.NextRunDate).After(today) {
		date := ledger.DateOnly(t.NextRunDate)
		exists, err := s.repo.RunExists(ctx, t.ID, date)
		if err != nil {
			return posted, err
		}
		if !exists {
			entry, err := s.submit(ctx, t, date)
			if err != nil {
				return posted, err
			}
			if err := s.writer.RecordRun(ctx, t.ID, entry.ID, date); err != nil {
				return posted, err
			}
			posted++
		}

		t.OccurrenceCount++
		t.LastRunDate = &date
		next, err := t.OccurrenceDate(t.OccurrenceCount)
		if err != nil {
			return posted, err
		}
		if t.Finished(next) {
			t.Status = ledger.TemplateStatusCompleted
		}
		t.NextRunDate = next
		t.UpdatedAt = time.Now().UTC()
		if t, err = s.writer.UpdateTemplate(ctx, t); err != nil {
			return posted, err
		}
	}
	return posted, nil
}

// submit materializes one occurrence as a journal entry and posts it.
func (s *service) submit(ctx context.Context, t ledger.RecurringTemplate, date time.Time) (ledger.JournalEntry, error) {
	e := ledger.JournalEntry{
		CompanyID:    t.CompanyID,
		Date:         date,
		Reference:    fmt.Sprintf("Recurring: %s - %s", t.Name, date.Format("2006-01-02")),
		Memo:         t.Memo,
		CurrencyCode: t.CurrencyCode,
	}
	for _, l := range t.Lines {
		e.Lines = append(e.Lines, ledger.JournalEntryLine{
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	created, err := s.entries.Create(ctx, e)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.poster.Post(ctx, created.CompanyID, created.ID, uuid.Nil)
}
