package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
)

const entryCols = `id, company_id, entry_number, date, reference, memo, currency_code,
	exchange_rate::text, status, adjusting, reversing, reversed_entry_id, period_id,
	total_debit::text, total_credit::text, created_by, approved_by, reject_reason,
	posted_at, posted_by, deleted, created_at, updated_at`

func scanEntry(row pgx.Row) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	var rate, debit, credit string
	err := row.Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &e.Date, &e.Reference,
		&e.Memo, &e.CurrencyCode, &rate, &e.Status, &e.Adjusting, &e.Reversing,
		&e.ReversedEntryID, &e.PeriodID, &debit, &credit, &e.CreatedBy,
		&e.ApprovedBy, &e.RejectReason, &e.PostedAt, &e.PostedBy, &e.Deleted,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.ExchangeRate = parseDec(rate)
	e.TotalDebit = parseDec(debit)
	e.TotalCredit = parseDec(credit)
	return e, nil
}

// lineQuerier is satisfied by both the pool and a pgx transaction.
type lineQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q lineQuerier, entryIDs []uuid.UUID) (map[uuid.UUID][]ledger.JournalEntryLine, error) {
	if len(entryIDs) == 0 {
		return map[uuid.UUID][]ledger.JournalEntryLine{}, nil
	}
	rows, err := q.Query(ctx, `
		select id, entry_id, line_number, account_id, description, reference,
		       tracking_category_id, debit::text, credit::text, currency_code, exchange_rate::text
		from journal_entry_lines
		where entry_id = any($1)
		order by entry_id, line_number
	`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.JournalEntryLine)
	for rows.Next() {
		var l ledger.JournalEntryLine
		var debit, credit, rate string
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID,
			&l.Description, &l.Reference, &l.TrackingCategoryID,
			&debit, &credit, &l.CurrencyCode, &rate); err != nil {
			return nil, err
		}
		l.Debit = parseDec(debit)
		l.Credit = parseDec(credit)
		l.ExchangeRate = parseDec(rate)
		out[l.EntryID] = append(out[l.EntryID], l)
	}
	return out, rows.Err()
}

// --- journal.Repo ---

func (s *Store) GetEntry(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
		select `+entryCols+`
		from journal_entries
		where id = $1 and company_id = $2 and not deleted
	`, entryID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := loadLines(ctx, s.pool, []uuid.UUID{e.ID})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Lines = lines[e.ID]
	return e, nil
}

// SearchEntries builds the filter clause dynamically and returns one page
// plus the total match count.
func (s *Store) SearchEntries(ctx context.Context, companyID uuid.UUID, f journal.Filter, limit, offset int) ([]ledger.JournalEntry, int, error) {
	where := []string{"e.company_id = $1", "not e.deleted"}
	args := []any{companyID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		where = append(where, "e.status = "+arg(f.Status))
	}
	if f.DateFrom != nil {
		where = append(where, "e.date >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "e.date <= "+arg(*f.DateTo))
	}
	if f.Reference != "" {
		where = append(where, "e.reference ilike "+arg("%"+f.Reference+"%"))
	}
	if f.Memo != "" {
		where = append(where, "e.memo ilike "+arg("%"+f.Memo+"%"))
	}
	if f.CreatedBy != uuid.Nil {
		where = append(where, "e.created_by = "+arg(f.CreatedBy))
	}
	if f.ApprovedBy != uuid.Nil {
		where = append(where, "e.approved_by = "+arg(f.ApprovedBy))
	}
	if f.AccountID != uuid.Nil {
		where = append(where, `exists (
			select 1 from journal_entry_lines l
			where l.entry_id = e.id and l.account_id = `+arg(f.AccountID)+")")
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.pool.QueryRow(ctx, "select count(*) from journal_entries e where "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any(nil), args...), limit, offset)
	rows, err := s.pool.Query(ctx, `
		select `+entryCols+`
		from journal_entries e
		where `+cond+`
		order by e.date, e.entry_number
		limit $`+fmt.Sprint(len(args)+1)+` offset $`+fmt.Sprint(len(args)+2),
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]ledger.JournalEntry, 0, limit)
	ids := make([]uuid.UUID, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lines, err := loadLines(ctx, s.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, total, nil
}

// --- journal.Writer ---

// execer is satisfied by both the pool and a pgx transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertEntry(ctx context.Context, q execer, e ledger.JournalEntry) error {
	_, err := q.Exec(ctx, `
		insert into journal_entries (id, company_id, entry_number, date, reference,
			memo, currency_code, exchange_rate, status, adjusting, reversing,
			reversed_entry_id, period_id, total_debit, total_credit, created_by,
			approved_by, reject_reason, posted_at, posted_by, deleted, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, e.ID, e.CompanyID, e.EntryNumber, e.Date, e.Reference, e.Memo,
		e.CurrencyCode, e.ExchangeRate.String(), e.Status, e.Adjusting, e.Reversing,
		e.ReversedEntryID, e.PeriodID, e.TotalDebit.String(), e.TotalCredit.String(),
		e.CreatedBy, e.ApprovedBy, e.RejectReason, e.PostedAt, e.PostedBy,
		e.Deleted, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("entry number %s: %w", e.EntryNumber, errs.ErrDuplicateEntryNumber)
	}
	if err != nil {
		return err
	}
	return insertLines(ctx, q, e)
}

func insertLines(ctx context.Context, q execer, e ledger.JournalEntry) error {
	for _, l := range e.Lines {
		if _, err := q.Exec(ctx, `
			insert into journal_entry_lines (id, entry_id, line_number, account_id,
				description, reference, tracking_category_id, debit, credit,
				currency_code, exchange_rate)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, l.ID, l.EntryID, l.LineNumber, l.AccountID, l.Description, l.Reference,
			l.TrackingCategoryID, l.Debit.String(), l.Credit.String(),
			l.CurrencyCode, l.ExchangeRate.String()); err != nil {
			return err
		}
	}
	return nil
}

func updateEntry(ctx context.Context, q execer, e ledger.JournalEntry) error {
	tag, err := q.Exec(ctx, `
		update journal_entries
		set date = $3, reference = $4, memo = $5, currency_code = $6,
		    exchange_rate = $7, status = $8, adjusting = $9, reversing = $10,
		    reversed_entry_id = $11, period_id = $12, total_debit = $13,
		    total_credit = $14, approved_by = $15, reject_reason = $16,
		    posted_at = $17, posted_by = $18, deleted = $19, updated_at = $20
		where id = $1 and company_id = $2
	`, e.ID, e.CompanyID, e.Date, e.Reference, e.Memo, e.CurrencyCode,
		e.ExchangeRate.String(), e.Status, e.Adjusting, e.Reversing,
		e.ReversedEntryID, e.PeriodID, e.TotalDebit.String(), e.TotalCredit.String(),
		e.ApprovedBy, e.RejectReason, e.PostedAt, e.PostedBy, e.Deleted, e.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	// Replace lines wholesale; entries are small and this keeps line updates
	// trivially correct.
	if _, err := q.Exec(ctx, `delete from journal_entry_lines where entry_id = $1`, e.ID); err != nil {
		return err
	}
	return insertLines(ctx, q, e)
}

func (s *Store) CreateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := insertEntry(ctx, tx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := updateEntry(ctx, tx, e); err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

// NextEntryNumber allocates the next sequence value for (company, YYYYMM) via
// an upsert that returns the incremented value; concurrent callers serialize
// on the sequence row.
func (s *Store) NextEntryNumber(ctx context.Context, companyID uuid.UUID, yearMonth string) (int, error) {
	return nextEntryNumber(ctx, s.pool, companyID, yearMonth)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func nextEntryNumber(ctx context.Context, q rowQuerier, companyID uuid.UUID, yearMonth string) (int, error) {
	var seq int
	err := q.QueryRow(ctx, `
		insert into entry_sequences (company_id, year_month, next_value)
		values ($1, $2, 1)
		on conflict (company_id, year_month)
		do update set next_value = entry_sequences.next_value + 1
		returning next_value
	`, companyID, yearMonth).Scan(&seq)
	return seq, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
