package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

const templateCols = `id, company_id, name, memo, currency_code, frequency, interval_count,
	start_date, end_rule, end_after, end_date, status, next_run_date, last_run_date,
	occurrence_count, created_at, updated_at`

func scanTemplate(row pgx.Row) (ledger.RecurringTemplate, error) {
	var t ledger.RecurringTemplate
	err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Memo, &t.CurrencyCode,
		&t.Frequency, &t.Interval, &t.StartDate, &t.EndRule, &t.EndAfter,
		&t.EndDate, &t.Status, &t.NextRunDate, &t.LastRunDate,
		&t.OccurrenceCount, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) loadTemplateLines(ctx context.Context, templateIDs []uuid.UUID) (map[uuid.UUID][]ledger.TemplateLine, error) {
	if len(templateIDs) == 0 {
		return map[uuid.UUID][]ledger.TemplateLine{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select template_id, account_id, description, debit::text, credit::text
		from recurring_template_lines
		where template_id = any($1)
		order by template_id, position
	`, templateIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.TemplateLine)
	for rows.Next() {
		var id uuid.UUID
		var l ledger.TemplateLine
		var debit, credit string
		if err := rows.Scan(&id, &l.AccountID, &l.Description, &debit, &credit); err != nil {
			return nil, err
		}
		l.Debit = parseDec(debit)
		l.Credit = parseDec(credit)
		out[id] = append(out[id], l)
	}
	return out, rows.Err()
}

func (s *Store) fillTemplateLines(ctx context.Context, ts []ledger.RecurringTemplate) error {
	ids := make([]uuid.UUID, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	lines, err := s.loadTemplateLines(ctx, ids)
	if err != nil {
		return err
	}
	for i := range ts {
		ts[i].Lines = lines[ts[i].ID]
	}
	return nil
}

// --- recurring.Repo ---

func (s *Store) ListTemplates(ctx context.Context, companyID uuid.UUID) ([]ledger.RecurringTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		select `+templateCols+`
		from recurring_templates
		where company_id = $1
		order by name
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.RecurringTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, s.fillTemplateLines(ctx, out)
}

func (s *Store) GetTemplate(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	t, err := scanTemplate(s.pool.QueryRow(ctx, `
		select `+templateCols+`
		from recurring_templates
		where id = $1 and company_id = $2
	`, templateID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.RecurringTemplate{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	lines, err := s.loadTemplateLines(ctx, []uuid.UUID{t.ID})
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	t.Lines = lines[t.ID]
	return t, nil
}

func (s *Store) DueTemplates(ctx context.Context, asOf time.Time) ([]ledger.RecurringTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		select `+templateCols+`
		from recurring_templates
		where status = 'active' and next_run_date <= $1
		order by company_id, name
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.RecurringTemplate, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, s.fillTemplateLines(ctx, out)
}

func (s *Store) RunExists(ctx context.Context, templateID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		select exists (
			select 1 from recurring_runs
			where template_id = $1 and run_date = $2
		)
	`, templateID, date).Scan(&exists)
	return exists, err
}

// --- recurring.Writer ---

func (s *Store) CreateTemplate(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
		insert into recurring_templates (`+templateCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, t.ID, t.CompanyID, t.Name, t.Memo, t.CurrencyCode, t.Frequency, t.Interval,
		t.StartDate, t.EndRule, t.EndAfter, t.EndDate, t.Status, t.NextRunDate,
		t.LastRunDate, t.OccurrenceCount, t.CreatedAt, t.UpdatedAt); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if err := insertTemplateLines(ctx, tx, t); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	return t, nil
}

func insertTemplateLines(ctx context.Context, q execer, t ledger.RecurringTemplate) error {
	for i, l := range t.Lines {
		if _, err := q.Exec(ctx, `
			insert into recurring_template_lines (template_id, position, account_id, description, debit, credit)
			values ($1,$2,$3,$4,$5,$6)
		`, t.ID, i+1, l.AccountID, l.Description, l.Debit.String(), l.Credit.String()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateTemplate(ctx context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	tag, err := tx.Exec(ctx, `
		update recurring_templates
		set name = $3, memo = $4, currency_code = $5, frequency = $6,
		    interval_count = $7, start_date = $8, end_rule = $9, end_after = $10,
		    end_date = $11, status = $12, next_run_date = $13, last_run_date = $14,
		    occurrence_count = $15, updated_at = $16
		where id = $1 and company_id = $2
	`, t.ID, t.CompanyID, t.Name, t.Memo, t.CurrencyCode, t.Frequency, t.Interval,
		t.StartDate, t.EndRule, t.EndAfter, t.EndDate, t.Status, t.NextRunDate,
		t.LastRunDate, t.OccurrenceCount, t.UpdatedAt)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.RecurringTemplate{}, errs.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `delete from recurring_template_lines where template_id = $1`, t.ID); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if err := insertTemplateLines(ctx, tx, t); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.RecurringTemplate{}, err
	}
	return t, nil
}

func (s *Store) RecordRun(ctx context.Context, templateID, entryID uuid.UUID, date time.Time) error {
	_, err := s.pool.Exec(ctx, `
		insert into recurring_runs (template_id, run_date, entry_id)
		values ($1,$2,$3)
	`, templateID, date, entryID)
	if isUniqueViolation(err) {
		return fmt.Errorf("run for %s on %s: %w", templateID, date.Format("2006-01-02"), errs.ErrDuplicateEntryNumber)
	}
	return err
}
