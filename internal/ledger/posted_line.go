package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostedLine is the flattened read model of one posted journal line, used by
// reporting and balance rebuilds. Amounts are in base currency.
type PostedLine struct {
	EntryID     uuid.UUID
	EntryNumber string
	Date        time.Time
	PeriodID    uuid.UUID
	AccountID   uuid.UUID
	LineNumber  int
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}
