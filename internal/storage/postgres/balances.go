package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corefin/ledger/internal/ledger"
)

// --- balance.Store / balance.RebuildStore ---

func (s *Store) PeriodsByCompany(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	return listPeriods(ctx, s.pool, companyID)
}

func (s *Store) GetBalance(ctx context.Context, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error) {
	return getBalance(ctx, s.pool, accountID, periodID)
}

func getBalance(ctx context.Context, q rowQuerier, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error) {
	var b ledger.LedgerBalance
	var opening, debit, credit, closing string
	err := q.QueryRow(ctx, `
		select id, account_id, period_id, opening::text, period_debit::text,
		       period_credit::text, closing::text
		from ledger_balances
		where account_id = $1 and period_id = $2
	`, accountID, periodID).Scan(&b.ID, &b.AccountID, &b.PeriodID,
		&opening, &debit, &credit, &closing)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.LedgerBalance{}, false, nil
	}
	if err != nil {
		return ledger.LedgerBalance{}, false, err
	}
	b.Opening = parseDec(opening)
	b.PeriodDebit = parseDec(debit)
	b.PeriodCredit = parseDec(credit)
	b.Closing = parseDec(closing)
	return b, true, nil
}

func (s *Store) UpsertBalance(ctx context.Context, b ledger.LedgerBalance) error {
	return upsertBalance(ctx, s.pool, b)
}

func upsertBalance(ctx context.Context, q execer, b ledger.LedgerBalance) error {
	_, err := q.Exec(ctx, `
		insert into ledger_balances (id, account_id, period_id, opening,
			period_debit, period_credit, closing)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (account_id, period_id)
		do update set opening = excluded.opening,
		              period_debit = excluded.period_debit,
		              period_credit = excluded.period_credit,
		              closing = excluded.closing
	`, b.ID, b.AccountID, b.PeriodID, b.Opening.String(),
		b.PeriodDebit.String(), b.PeriodCredit.String(), b.Closing.String())
	return err
}

func (s *Store) PostedTotalsByPeriod(ctx context.Context, companyID, accountID uuid.UUID) (map[uuid.UUID]ledger.DebitCredit, error) {
	rows, err := s.pool.Query(ctx, `
		select e.period_id,
		       coalesce(sum(l.debit * l.exchange_rate), 0)::text,
		       coalesce(sum(l.credit * l.exchange_rate), 0)::text
		from journal_entry_lines l
		join journal_entries e on e.id = l.entry_id
		where e.company_id = $1
		  and l.account_id = $2
		  and e.posted_at is not null
		  and not e.deleted
		  and e.period_id is not null
		group by e.period_id
	`, companyID, accountID)
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

// --- report.Repo ---

func (s *Store) PostedLinesInRange(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error) {
	rows, err := s.pool.Query(ctx, `
		select e.id, e.entry_number, e.date, e.period_id, l.account_id, l.line_number,
		       (l.debit * l.exchange_rate)::text, (l.credit * l.exchange_rate)::text
		from journal_entry_lines l
		join journal_entries e on e.id = l.entry_id
		where e.company_id = $1
		  and e.posted_at is not null
		  and not e.deleted
		  and e.period_id is not null
		  and ($2::date is null or e.date >= $2::date)
		  and ($3::date is null or e.date <= $3::date)
		order by e.entry_number, l.line_number
	`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.PostedLine, 0)
	for rows.Next() {
		var l ledger.PostedLine
		var debit, credit string
		if err := rows.Scan(&l.EntryID, &l.EntryNumber, &l.Date, &l.PeriodID,
			&l.AccountID, &l.LineNumber, &debit, &credit); err != nil {
			return nil, err
		}
		l.Debit = parseDec(debit)
		l.Credit = parseDec(credit)
		out = append(out, l)
	}
	return out, rows.Err()
}
