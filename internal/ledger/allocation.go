package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationMethod selects how a rule splits an input amount.
type AllocationMethod string

const (
	AllocationPercentage AllocationMethod = "percentage"
	AllocationFixed      AllocationMethod = "fixed"
)

// AllocationDestination is one target of an allocation rule.
type AllocationDestination struct {
	AccountID uuid.UUID
	// Percent applies under the percentage method (0..100].
	Percent decimal.Decimal
	// FixedAmount applies under the fixed method.
	FixedAmount decimal.Decimal
	Sequence    int
	Active      bool
}

// AllocationRule deterministically splits an amount across destination
// accounts. Identity is per company by name.
type AllocationRule struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Name         string
	Method       AllocationMethod
	Destinations []AllocationDestination
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ActiveDestinations returns the active destinations ordered by sequence.
func (r AllocationRule) ActiveDestinations() []AllocationDestination {
	out := make([]AllocationDestination, 0, len(r.Destinations))
	for _, d := range r.Destinations {
		if d.Active {
			out = append(out, d)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Sequence < out[j-1].Sequence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// PercentTotal sums the active destinations' percentages.
func (r AllocationRule) PercentTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range r.ActiveDestinations() {
		sum = sum.Add(d.Percent)
	}
	return sum
}

// FixedTotal sums the active destinations' fixed amounts.
func (r AllocationRule) FixedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range r.ActiveDestinations() {
		sum = sum.Add(d.FixedAmount)
	}
	return sum
}

// AccountAmount pairs an account with an allocated amount.
type AccountAmount struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
}
