// Package postgres provides the pgx-backed store that satisfies the
// repository and writer interfaces used across the service layer.
//
// It is intentionally explicit: plain SQL, no ORM. The schema lives under
// migrations/. This package maps between domain entities and rows and runs
// the necessary statements and transactions.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// numeric columns travel as strings; parseDec converts them back.
func parseDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

const accountCols = `id, company_id, code, name, description, classification, subtype,
	parent_id, status, system, tax_related, reconcilable, currency_code,
	opening_balance::text, opening_balance_date, created_at, updated_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var opening string
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Description,
		&a.Classification, &a.Subtype, &a.ParentID, &a.Status, &a.System,
		&a.TaxRelated, &a.Reconcilable, &a.CurrencyCode, &opening,
		&a.OpeningBalanceDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	a.OpeningBalance = parseDec(opening)
	return a, nil
}

// --- account.Repo / account.Writer ---

func (s *Store) ListAccounts(ctx context.Context, companyID uuid.UUID) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `
		select `+accountCols+`
		from accounts
		where company_id = $1
		order by code
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAccount(ctx context.Context, companyID, accountID uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx, `
		select `+accountCols+`
		from accounts
		where id = $1 and company_id = $2
	`, accountID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) AccountsByIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]ledger.Account{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select `+accountCols+`
		from accounts
		where company_id = $1 and id = any($2)
	`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (s *Store) HasPostedLines(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		select exists (
			select 1
			from journal_entry_lines l
			join journal_entries e on e.id = l.entry_id
			where l.account_id = $1 and e.posted_at is not null and not e.deleted
		)
	`, accountID).Scan(&exists)
	return exists, err
}

func (s *Store) PostedTotalsThrough(ctx context.Context, companyID uuid.UUID, asOf *time.Time) (map[uuid.UUID]ledger.DebitCredit, error) {
	rows, err := s.pool.Query(ctx, `
		select l.account_id,
		       coalesce(sum(l.debit * l.exchange_rate), 0)::text,
		       coalesce(sum(l.credit * l.exchange_rate), 0)::text
		from journal_entry_lines l
		join journal_entries e on e.id = l.entry_id
		where e.company_id = $1
		  and e.posted_at is not null
		  and not e.deleted
		  and ($2::date is null or e.date <= $2::date)
		group by l.account_id
	`, companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ledger.DebitCredit)
	for rows.Next() {
		var id uuid.UUID
		var debit, credit string
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return nil, err
		}
		out[id] = ledger.DebitCredit{Debit: parseDec(debit), Credit: parseDec(credit)}
	}
	return out, rows.Err()
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (id, company_id, code, name, description, classification,
			subtype, parent_id, status, system, tax_related, reconcilable,
			currency_code, opening_balance, opening_balance_date, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, a.ID, a.CompanyID, a.Code, a.Name, a.Description, a.Classification,
		a.Subtype, a.ParentID, a.Status, a.System, a.TaxRelated, a.Reconcilable,
		a.CurrencyCode, a.OpeningBalance.String(), a.OpeningBalanceDate, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	tag, err := s.pool.Exec(ctx, `
		update accounts
		set code = $3, name = $4, description = $5, classification = $6,
		    subtype = $7, parent_id = $8, status = $9, tax_related = $10,
		    reconcilable = $11, currency_code = $12, opening_balance = $13,
		    opening_balance_date = $14, updated_at = $15
		where id = $1 and company_id = $2
	`, a.ID, a.CompanyID, a.Code, a.Name, a.Description, a.Classification,
		a.Subtype, a.ParentID, a.Status, a.TaxRelated, a.Reconcilable,
		a.CurrencyCode, a.OpeningBalance.String(), a.OpeningBalanceDate, a.UpdatedAt)
	if err != nil {
		return ledger.Account{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// --- period.Repo / period.Writer ---

const periodCols = `id, company_id, name, start_date, end_date, closed, closed_at, closed_by`

func scanPeriod(row pgx.Row) (ledger.AccountingPeriod, error) {
	var p ledger.AccountingPeriod
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate,
		&p.Closed, &p.ClosedAt, &p.ClosedBy)
	return p, err
}

func (s *Store) ListPeriods(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	return listPeriods(ctx, s.pool, companyID)
}

func listPeriods(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	rows, err := q.Query(ctx, `
		select `+periodCols+`
		from accounting_periods
		where company_id = $1
		order by start_date
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.AccountingPeriod, 0)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetPeriod(ctx context.Context, companyID, periodID uuid.UUID) (ledger.AccountingPeriod, error) {
	p, err := scanPeriod(s.pool.QueryRow(ctx, `
		select `+periodCols+`
		from accounting_periods
		where id = $1 and company_id = $2
	`, periodID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AccountingPeriod{}, errs.ErrNotFound
	}
	return p, err
}

func (s *Store) CountUnpostedEntries(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		select count(*)
		from journal_entries
		where company_id = $1
		  and not deleted
		  and status not in ('posted', 'void')
		  and date >= $2 and date <= $3
	`, companyID, start, end).Scan(&n)
	return n, err
}

func (s *Store) CreatePeriod(ctx context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error) {
	_, err := s.pool.Exec(ctx, `
		insert into accounting_periods (id, company_id, name, start_date, end_date, closed, closed_at, closed_by)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.CompanyID, p.Name, p.StartDate, p.EndDate, p.Closed, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	return p, nil
}

func (s *Store) UpdatePeriod(ctx context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error) {
	tag, err := s.pool.Exec(ctx, `
		update accounting_periods
		set name = $3, start_date = $4, end_date = $5, closed = $6, closed_at = $7, closed_by = $8
		where id = $1 and company_id = $2
	`, p.ID, p.CompanyID, p.Name, p.StartDate, p.EndDate, p.Closed, p.ClosedAt, p.ClosedBy)
	if err != nil {
		return ledger.AccountingPeriod{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.AccountingPeriod{}, errs.ErrNotFound
	}
	return p, nil
}
