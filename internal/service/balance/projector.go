// Package balance maintains the per-(account, period) ledger balances. Rows
// are derived state: only the posting engine writes them, and Rebuild can
// reconstruct any chain from posted lines plus the account's opening balance.
package balance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

// Store is the minimal persistence surface the projector writes through. The
// posting engine passes its transaction so balance writes commit atomically
// with the entry.
type Store interface {
	// PeriodsByCompany returns the company's periods ordered by start date.
	PeriodsByCompany(ctx context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error)
	GetBalance(ctx context.Context, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error)
	UpsertBalance(ctx context.Context, b ledger.LedgerBalance) error
}

// RebuildStore adds the posted-line scan Rebuild needs.
type RebuildStore interface {
	Store
	// PostedTotalsByPeriod sums posted line debits/credits for one account,
	// grouped by period.
	PostedTotalsByPeriod(ctx context.Context, companyID, accountID uuid.UUID) (map[uuid.UUID]ledger.DebitCredit, error)
}

// Projector applies posted amounts to balance rows and keeps the
// opening/closing chain contiguous.
type Projector struct {
	cfg config.Config
}

// NewProjector constructs a projector.
func NewProjector(cfg config.Config) *Projector { return &Projector{cfg: cfg} }

// Read returns the balance row for (account, period).
func (pr *Projector) Read(ctx context.Context, st Store, accountID, periodID uuid.UUID) (ledger.LedgerBalance, error) {
	b, ok, err := st.GetBalance(ctx, accountID, periodID)
	if err != nil {
		return ledger.LedgerBalance{}, err
	}
	if !ok {
		return ledger.LedgerBalance{}, fmt.Errorf("no balance for account %s in period %s: %w", accountID, periodID, errs.ErrNotFound)
	}
	return b, nil
}

// Apply accumulates one posted line's base-currency debit and credit into the
// (account, period) row, seeding the opening balance when the row does not
// exist yet, then re-chains the openings of every later existing row. Writing
// into a closed period is rejected.
func (pr *Projector) Apply(ctx context.Context, st Store, acc ledger.Account, periodID uuid.UUID, debit, credit decimal.Decimal) error {
	periods, err := st.PeriodsByCompany(ctx, acc.CompanyID)
	if err != nil {
		return err
	}
	idx := indexOf(periods, periodID)
	if idx < 0 {
		return fmt.Errorf("period %s: %w", periodID, errs.ErrNotFound)
	}
	if periods[idx].Closed {
		return fmt.Errorf("period %s is closed: %w", periods[idx].Name, errs.ErrPeriodClosed)
	}

	row, ok, err := st.GetBalance(ctx, acc.ID, periodID)
	if err != nil {
		return err
	}
	if !ok {
		opening, err := pr.openingFor(ctx, st, acc, periods, idx)
		if err != nil {
			return err
		}
		row = ledger.LedgerBalance{
			ID:           uuid.New(),
			AccountID:    acc.ID,
			PeriodID:     periodID,
			Opening:      opening,
			PeriodDebit:  decimal.Zero,
			PeriodCredit: decimal.Zero,
		}
	}
	row.ApplyLine(acc.NormalSide(), debit, credit)
	if err := st.UpsertBalance(ctx, row); err != nil {
		return err
	}
	return pr.chainForward(ctx, st, acc, periods, idx, row.Closing)
}

// ForwardFill materializes zero-activity balance rows for every period from
// the first through the given one, chaining openings, so that posting into a
// skipped period starts from a primed opening balance.
//
// The posting path computes openings on the fly and never needs this;
// ForwardFill is the administrative priming surface for operators who want
// explicit rows for sparse accounts, typically ahead of reporting or an
// opening-balance audit.
func (pr *Projector) ForwardFill(ctx context.Context, st Store, acc ledger.Account, throughPeriodID uuid.UUID) error {
	periods, err := st.PeriodsByCompany(ctx, acc.CompanyID)
	if err != nil {
		return err
	}
	through := indexOf(periods, throughPeriodID)
	if through < 0 {
		return fmt.Errorf("period %s: %w", throughPeriodID, errs.ErrNotFound)
	}
	carry := acc.OpeningBalance
	for i := 0; i <= through; i++ {
		row, ok, err := st.GetBalance(ctx, acc.ID, periods[i].ID)
		if err != nil {
			return err
		}
		if ok {
			carry = row.Closing
			continue
		}
		if periods[i].Closed {
			// A closed period with no row contributes nothing; skip
			// rather than write frozen state.
			continue
		}
		row = ledger.LedgerBalance{
			ID:           uuid.New(),
			AccountID:    acc.ID,
			PeriodID:     periods[i].ID,
			Opening:      carry,
			PeriodDebit:  decimal.Zero,
			PeriodCredit: decimal.Zero,
		}
		row.Recompute(acc.NormalSide())
		if err := st.UpsertBalance(ctx, row); err != nil {
			return err
		}
		carry = row.Closing
	}
	return nil
}

// Rebuild recomputes the account's balance chain from posted lines and the
// stated opening balance, through the given period (or the whole chain when
// throughPeriodID is nil). It is the authoritative continuity check: a frozen
// closed-period row that disagrees with the recomputation is an error.
func (pr *Projector) Rebuild(ctx context.Context, st RebuildStore, acc ledger.Account, throughPeriodID *uuid.UUID) error {
	periods, err := st.PeriodsByCompany(ctx, acc.CompanyID)
	if err != nil {
		return err
	}
	through := len(periods) - 1
	if throughPeriodID != nil {
		through = indexOf(periods, *throughPeriodID)
		if through < 0 {
			return fmt.Errorf("period %s: %w", *throughPeriodID, errs.ErrNotFound)
		}
	}
	totals, err := st.PostedTotalsByPeriod(ctx, acc.CompanyID, acc.ID)
	if err != nil {
		return err
	}
	carry := acc.OpeningBalance
	for i := 0; i <= through; i++ {
		dc := totals[periods[i].ID]
		row := ledger.LedgerBalance{
			ID:           uuid.New(),
			AccountID:    acc.ID,
			PeriodID:     periods[i].ID,
			Opening:      carry,
			PeriodDebit:  dc.Debit,
			PeriodCredit: dc.Credit,
		}
		row.Recompute(acc.NormalSide())
		existing, ok, err := st.GetBalance(ctx, acc.ID, periods[i].ID)
		if err != nil {
			return err
		}
		if ok {
			row.ID = existing.ID
		}
		if periods[i].Closed {
			if ok && !existing.Closing.Sub(row.Closing).Abs().LessThanOrEqual(pr.cfg.Epsilon) {
				return fmt.Errorf("closed period %s balance drifted (stored %s, derived %s): %w",
					periods[i].Name, existing.Closing.String(), row.Closing.String(), errs.ErrBusinessRule)
			}
			if ok {
				carry = existing.Closing
				continue
			}
		}
		if err := st.UpsertBalance(ctx, row); err != nil {
			return err
		}
		carry = row.Closing
	}
	return nil
}

// openingFor finds the opening balance for periods[idx]: the closing of the
// nearest earlier period that has a row, or the account's stated opening
// balance when none exists.
func (pr *Projector) openingFor(ctx context.Context, st Store, acc ledger.Account, periods []ledger.AccountingPeriod, idx int) (decimal.Decimal, error) {
	for i := idx - 1; i >= 0; i-- {
		row, ok, err := st.GetBalance(ctx, acc.ID, periods[i].ID)
		if err != nil {
			return decimal.Zero, err
		}
		if ok {
			return row.Closing, nil
		}
	}
	return acc.OpeningBalance, nil
}

// chainForward pushes a changed closing balance through every later period
// that already has a row. A later closed period whose row would change is a
// continuity violation.
func (pr *Projector) chainForward(ctx context.Context, st Store, acc ledger.Account, periods []ledger.AccountingPeriod, idx int, carry decimal.Decimal) error {
	for i := idx + 1; i < len(periods); i++ {
		row, ok, err := st.GetBalance(ctx, acc.ID, periods[i].ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if row.Opening.Equal(carry) {
			carry = row.Closing
			continue
		}
		if periods[i].Closed {
			return fmt.Errorf("period %s is closed, cannot restate its opening: %w", periods[i].Name, errs.ErrPeriodClosed)
		}
		row.Opening = carry
		row.Recompute(acc.NormalSide())
		if err := st.UpsertBalance(ctx, row); err != nil {
			return err
		}
		carry = row.Closing
	}
	return nil
}

func indexOf(periods []ledger.AccountingPeriod, id uuid.UUID) int {
	for i, p := range periods {
		if p.ID == id {
			return i
		}
	}
	return -1
}
