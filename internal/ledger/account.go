// Package ledger defines the domain entities of the general ledger core and
// the pure invariant rules that apply to them. Everything here is free of I/O;
// services and stores depend on this package, never the other way around.
package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// Classification enumerates the broad typing of an account. It is a closed
// set: the normal-balance side and statement-section assignment are total
// functions over it.
type Classification string

const (
	ClassificationAsset     Classification = "asset"
	ClassificationLiability Classification = "liability"
	ClassificationEquity    Classification = "equity"
	ClassificationRevenue   Classification = "revenue"
	ClassificationExpense   Classification = "expense"
	ClassificationGain      Classification = "gain"
	ClassificationLoss      Classification = "loss"
)

// Valid reports whether c is one of the seven known classifications.
func (c Classification) Valid() bool {
	switch c {
	case ClassificationAsset, ClassificationLiability, ClassificationEquity,
		ClassificationRevenue, ClassificationExpense, ClassificationGain, ClassificationLoss:
		return true
	}
	return false
}

// NormalSide returns the side on which balances of this classification
// increase: Asset/Expense/Loss are debit-normal, the rest credit-normal.
func (c Classification) NormalSide() Side {
	switch c {
	case ClassificationAsset, ClassificationExpense, ClassificationLoss:
		return SideDebit
	default:
		return SideCredit
	}
}

// Subtype refines a classification for reporting. Only the subtypes below are
// recognized; the zero value means "none".
type Subtype string

const (
	SubtypeCash              Subtype = "cash"
	SubtypeBank              Subtype = "bank"
	SubtypeReceivable        Subtype = "receivable"
	SubtypeInventory         Subtype = "inventory"
	SubtypeFixedAsset        Subtype = "fixed_asset"
	SubtypeInvestment        Subtype = "investment"
	SubtypeIntangible        Subtype = "intangible"
	SubtypePayable           Subtype = "payable"
	SubtypeAccrual           Subtype = "accrual"
	SubtypeLoan              Subtype = "loan"
	SubtypeTax               Subtype = "tax"
	SubtypeCapital           Subtype = "capital"
	SubtypeRetainedEarnings  Subtype = "retained_earnings"
	SubtypeDividend          Subtype = "dividend"
	SubtypeOperatingRevenue  Subtype = "operating_revenue"
	SubtypeOtherRevenue      Subtype = "other_revenue"
	SubtypeOperatingExpense  Subtype = "operating_expense"
	SubtypeCostOfGoodsSold   Subtype = "cost_of_goods_sold"
	SubtypeDepreciation      Subtype = "depreciation"
	SubtypeInterest          Subtype = "interest"
)

// IsCashLike reports whether the subtype represents a cash position for the
// cash-flow statement.
func (s Subtype) IsCashLike() bool { return s == SubtypeCash || s == SubtypeBank }

// CashFlowSection names one of the three sections of the cash-flow statement.
type CashFlowSection string

const (
	CashFlowOperating CashFlowSection = "operating"
	CashFlowInvesting CashFlowSection = "investing"
	CashFlowFinancing CashFlowSection = "financing"
)

// CashFlowSectionFor classifies a contra-side account into a cash-flow
// section by its subtype, falling back to Operating.
func CashFlowSectionFor(c Classification, s Subtype) CashFlowSection {
	switch s {
	case SubtypeFixedAsset, SubtypeInvestment, SubtypeIntangible:
		return CashFlowInvesting
	case SubtypeLoan, SubtypeCapital, SubtypeDividend, SubtypeRetainedEarnings:
		return CashFlowFinancing
	}
	if c == ClassificationEquity {
		return CashFlowFinancing
	}
	return CashFlowOperating
}

// AccountStatus tracks the lifecycle of an account in the chart.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusArchived AccountStatus = "archived"
)

var reAccountCode = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-\.]{0,31}$`)

// NormalizeAccountCode uppercases and trims an account code.
func NormalizeAccountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidAccountCode reports whether a normalized code is acceptable.
func ValidAccountCode(code string) bool { return reAccountCode.MatchString(code) }

// Account is a node in a company's chart of accounts. Identity is the unique
// (company, code) pair among non-archived accounts.
type Account struct {
	ID             uuid.UUID
	CompanyID      uuid.UUID
	Code           string
	Name           string
	Description    string
	Classification Classification
	Subtype        Subtype
	// ParentID points at the parent account; the hierarchy is a tree and
	// parent and child share a classification.
	ParentID *uuid.UUID
	Status   AccountStatus
	// System marks reserved accounts that cannot be deleted or retyped.
	System       bool
	TaxRelated   bool
	Reconcilable bool
	CurrencyCode string
	// OpeningBalance seeds the first ledger-balance row for the account,
	// effective from OpeningBalanceDate.
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NormalSide is the side on which this account's balance increases.
func (a Account) NormalSide() Side { return a.Classification.NormalSide() }

// IsActive reports whether the account may be referenced by new journal lines.
func (a Account) IsActive() bool { return a.Status == AccountStatusActive }

// SignedNet converts raw debit/credit totals into a balance signed by the
// account's normal side: debit-normal accounts grow with debits, credit-normal
// accounts with credits.
func (a Account) SignedNet(debit, credit decimal.Decimal) decimal.Decimal {
	if a.NormalSide() == SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// DebitCredit carries a raw pair of posted totals.
type DebitCredit struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Add accumulates another pair into this one.
func (dc DebitCredit) Add(o DebitCredit) DebitCredit {
	return DebitCredit{Debit: dc.Debit.Add(o.Debit), Credit: dc.Credit.Add(o.Credit)}
}

// AccountNode is one node of the chart-of-accounts tree returned by the
// hierarchy query.
type AccountNode struct {
	Account  Account
	Children []*AccountNode
}
