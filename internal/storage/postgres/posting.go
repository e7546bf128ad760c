package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/posting"
)

// Begin opens a posting transaction backed by a database transaction.
func (s *Store) Begin(ctx context.Context) (posting.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

// pgTx wraps one pgx transaction. Row locks taken via the ForUpdate methods
// are held until Commit or Rollback.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (t *pgTx) GetEntryForUpdate(ctx context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `
		select `+entryCols+`
		from journal_entries
		where id = $1 and company_id = $2 and not deleted
		for update
	`, entryID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := loadLines(ctx, t.tx, []uuid.UUID{e.ID})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Lines = lines[e.ID]
	return e, nil
}

// AccountsForUpdate locks account rows one at a time in the order given, so
// callers that sort their IDs get a global lock order and concurrent posts
// cannot deadlock.
func (t *pgTx) AccountsForUpdate(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		a, err := scanAccount(t.tx.QueryRow(ctx, `
			select `+accountCols+`
			from accounts
			where id = $1 and company_id = $2
			for update
		`, id, companyID))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, nil
}

func (t *pgTx) CreateEntry(ctx context.Context, e ledger.JournalEntry) error {
	return insertEntry(ctx, t.tx, e)
}

func (t *pgTx) UpdateEntry(ctx context.Context, e ledger.JournalEntry) error {
	return updateEntry(ctx, t.tx, e)
}

func (t *pgTx) NextEntryNumber(ctx context.Context, companyID uuid.UUID, yearMonth string) (int, error) {
	return nextEntryNumber(ctx, t.tx, companyID, yearMonth)
}

func (t *pgTx) PeriodsByCompany(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	return listPeriods(ctx, t.tx, companyID)
}

func (t *pgTx) GetBalance(ctx context.Context, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error) {
	return getBalance(ctx, t.tx, accountID, periodID)
}

func (t *pgTx) UpsertBalance(ctx context.Context, b ledger.LedgerBalance) error {
	return upsertBalance(ctx, t.tx, b)
}
