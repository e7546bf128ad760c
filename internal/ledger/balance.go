package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerBalance is the stored per-(account, period) running balance. It is
// derived state: fully reconstructible from posted lines plus the account's
// opening balance, and maintained only by the posting engine.
type LedgerBalance struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	PeriodID     uuid.UUID
	Opening      decimal.Decimal
	PeriodDebit  decimal.Decimal
	PeriodCredit decimal.Decimal
	Closing      decimal.Decimal
}

// Recompute derives the closing balance from opening plus the signed net of
// the period's activity for the given normal side.
func (b *LedgerBalance) Recompute(side Side) {
	if side == SideDebit {
		b.Closing = b.Opening.Add(b.PeriodDebit.Sub(b.PeriodCredit))
		return
	}
	b.Closing = b.Opening.Add(b.PeriodCredit.Sub(b.PeriodDebit))
}

// ApplyLine accumulates one posted line's base-currency amounts and
// recomputes the closing balance.
func (b *LedgerBalance) ApplyLine(side Side, debit, credit decimal.Decimal) {
	b.PeriodDebit = b.PeriodDebit.Add(debit)
	b.PeriodCredit = b.PeriodCredit.Add(credit)
	b.Recompute(side)
}
