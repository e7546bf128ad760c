// Package report derives the trial balance, balance sheet, income statement
// and cash-flow statement from posted data. Every report is a pure function
// of the posted lines, the account registry, and (for balance sheet and cash
// flow) the stated opening balances: re-running one over the same posted
// dataset yields identical rows.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

// Repo defines the read operations reports run over.
type Repo interface {
	ListAccounts(ctx context.Context, companyID uuid.UUID) ([]ledger.Account, error)
	// PostedLinesInRange returns lines of every entry that reached Posted,
	// including since-voided originals whose reversals cancel them, with
	// entry dates in [from, to]; a nil bound is unbounded on that side.
	PostedLinesInRange(ctx context.Context, companyID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error)
}

// Row is one account line of a report section.
type Row struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

// TrialBalanceRow carries an account's net position in debit/credit columns.
type TrialBalanceRow struct {
	AccountID      uuid.UUID             `json:"account_id"`
	Code           string                `json:"code"`
	Name           string                `json:"name"`
	Classification ledger.Classification `json:"classification"`
	Debit          decimal.Decimal       `json:"debit"`
	Credit         decimal.Decimal       `json:"credit"`
}

// TrialBalance lists every account with posted activity through AsOf.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// BalanceSheet partitions signed balances into the accounting equation.
type BalanceSheet struct {
	AsOf             time.Time       `json:"as_of"`
	Assets           []Row           `json:"assets"`
	Liabilities      []Row           `json:"liabilities"`
	Equity           []Row           `json:"equity"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	InBalance        bool            `json:"in_balance"`
}

// IncomeStatement nets revenue against expenses over a range.
type IncomeStatement struct {
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Revenue       []Row           `json:"revenue"`
	Expenses      []Row           `json:"expenses"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	NetIncome     decimal.Decimal `json:"net_income"`
}

// CashFlow classifies cash movements into the three standard sections.
type CashFlow struct {
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Operating    []Row           `json:"operating"`
	Investing    []Row           `json:"investing"`
	Financing    []Row           `json:"financing"`
	NetOperating decimal.Decimal `json:"net_operating"`
	NetInvesting decimal.Decimal `json:"net_investing"`
	NetFinancing decimal.Decimal `json:"net_financing"`
	OpeningCash  decimal.Decimal `json:"opening_cash"`
	ClosingCash  decimal.Decimal `json:"closing_cash"`
	NetChange    decimal.Decimal `json:"net_change"`
}

// Service generates the four statements.
type Service interface {
	TrialBalance(ctx context.Context, companyID uuid.UUID, asOf time.Time, includeZero bool) (TrialBalance, error)
	BalanceSheet(ctx context.Context, companyID uuid.UUID, asOf time.Time) (BalanceSheet, error)
	IncomeStatement(ctx context.Context, companyID uuid.UUID, start, end time.Time) (IncomeStatement, error)
	CashFlow(ctx context.Context, companyID uuid.UUID, start, end time.Time) (CashFlow, error)
}

type service struct {
	repo Repo
	cfg  config.Config
}

// New constructs the statement generator.
func New(repo Repo, cfg config.Config) Service { return &service{repo: repo, cfg: cfg} }

// totalsThrough sums posted activity per account in [from, to].
func (s *service) totalsThrough(ctx context.Context, companyID uuid.UUID, from, to *time.Time) (map[uuid.UUID]ledger.DebitCredit, error) {
	lines, err := s.repo.PostedLinesInRange(ctx, companyID, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]ledger.DebitCredit)
	for _, l := range lines {
		out[l.AccountID] = out[l.AccountID].Add(ledger.DebitCredit{Debit: l.Debit, Credit: l.Credit})
	}
	return out, nil
}

func (s *service) TrialBalance(ctx context.Context, companyID uuid.UUID, asOf time.Time, includeZero bool) (TrialBalance, error) {
	if companyID == uuid.Nil {
		return TrialBalance{}, errs.ErrValidation
	}
	accounts, err := s.repo.ListAccounts(ctx, companyID)
	if err != nil {
		return TrialBalance{}, err
	}
	totals, err := s.totalsThrough(ctx, companyID, nil, &asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: ledger.DateOnly(asOf), TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, a := range accounts {
		if !a.IsActive() {
			continue
		}
		dc, posted := totals[a.ID]
		net := dc.Debit.Sub(dc.Credit)
		if (!posted || net.IsZero()) && !includeZero {
			continue
		}
		row := TrialBalanceRow{
			AccountID:      a.ID,
			Code:           a.Code,
			Name:           a.Name,
			Classification: a.Classification,
			Debit:          decimal.Zero,
			Credit:         decimal.Zero,
		}
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.Balanced = tb.TotalDebit.Sub(tb.TotalCredit).Abs().LessThanOrEqual(s.cfg.Epsilon)
	return tb, nil
}

func (s *service) BalanceSheet(ctx context.Context, companyID uuid.UUID, asOf time.Time) (BalanceSheet, error) {
	if companyID == uuid.Nil {
		return BalanceSheet{}, errs.ErrValidation
	}
	accounts, err := s.repo.ListAccounts(ctx, companyID)
	if err != nil {
		return BalanceSheet{}, err
	}
	totals, err := s.totalsThrough(ctx, companyID, nil, &asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BalanceSheet{
		AsOf:             ledger.DateOnly(asOf),
		TotalAssets:      decimal.Zero,
		TotalLiabilities: decimal.Zero,
		TotalEquity:      decimal.Zero,
	}
	for _, a := range accounts {
		if !a.IsActive() {
			continue
		}
		dc := totals[a.ID]
		bal := a.SignedNet(dc.Debit, dc.Credit).Add(s.openingThrough(a, asOf))
		if bal.IsZero() {
			continue
		}
		row := Row{AccountID: a.ID, Code: a.Code, Name: a.Name, Amount: bal}
		switch a.Classification {
		case ledger.ClassificationAsset:
			bs.Assets = append(bs.Assets, row)
			bs.TotalAssets = bs.TotalAssets.Add(bal)
		case ledger.ClassificationLiability:
			bs.Liabilities = append(bs.Liabilities, row)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(bal)
		case ledger.ClassificationEquity:
			bs.Equity = append(bs.Equity, row)
			bs.TotalEquity = bs.TotalEquity.Add(bal)
		}
	}
	sortRows(bs.Assets)
	sortRows(bs.Liabilities)
	sortRows(bs.Equity)
	bs.InBalance = bs.TotalAssets.Sub(bs.TotalLiabilities.Add(bs.TotalEquity)).Abs().LessThanOrEqual(s.cfg.Epsilon)
	return bs, nil
}

func (s *service) IncomeStatement(ctx context.Context, companyID uuid.UUID, start, end time.Time) (IncomeStatement, error) {
	if companyID == uuid.Nil {
		return IncomeStatement{}, errs.ErrValidation
	}
	accounts, err := s.repo.ListAccounts(ctx, companyID)
	if err != nil {
		return IncomeStatement{}, err
	}
	totals, err := s.totalsThrough(ctx, companyID, &start, &end)
	if err != nil {
		return IncomeStatement{}, err
	}
	is := IncomeStatement{
		Start:         ledger.DateOnly(start),
		End:           ledger.DateOnly(end),
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, a := range accounts {
		dc, ok := totals[a.ID]
		if !ok {
			continue
		}
		bal := a.SignedNet(dc.Debit, dc.Credit)
		if bal.IsZero() {
			continue
		}
		row := Row{AccountID: a.ID, Code: a.Code, Name: a.Name, Amount: bal}
		switch a.Classification {
		case ledger.ClassificationRevenue, ledger.ClassificationGain:
			is.Revenue = append(is.Revenue, row)
			is.TotalRevenue = is.TotalRevenue.Add(bal)
		case ledger.ClassificationExpense, ledger.ClassificationLoss:
			is.Expenses = append(is.Expenses, row)
			is.TotalExpenses = is.TotalExpenses.Add(bal)
		}
	}
	sortRows(is.Revenue)
	sortRows(is.Expenses)
	is.NetIncome = is.TotalRevenue.Sub(is.TotalExpenses)
	return is, nil
}

// CashFlow derives the three sections strictly from posted lines: for every
// entry that touches a cash or bank account in the range, each contra line
// contributes (credit - debit) to the section its account's subtype maps to.
// Summed over an entry this equals the entry's cash delta, so the sections
// net to the change in cash positions.
func (s *service) CashFlow(ctx context.Context, companyID uuid.UUID, start, end time.Time) (CashFlow, error) {
	if companyID == uuid.Nil {
		return CashFlow{}, errs.ErrValidation
	}
	accounts, err := s.repo.ListAccounts(ctx, companyID)
	if err != nil {
		return CashFlow{}, err
	}
	byID := make(map[uuid.UUID]ledger.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	cf := CashFlow{
		Start:        ledger.DateOnly(start),
		End:          ledger.DateOnly(end),
		NetOperating: decimal.Zero,
		NetInvesting: decimal.Zero,
		NetFinancing: decimal.Zero,
		OpeningCash:  decimal.Zero,
		ClosingCash:  decimal.Zero,
	}

	// Opening cash: everything posted before the range plus stated opening
	// balances effective by then.
	dayBefore := ledger.DateOnly(start).AddDate(0, 0, -1)
	beforeTotals, err := s.totalsThrough(ctx, companyID, nil, &dayBefore)
	if err != nil {
		return CashFlow{}, err
	}
	for _, a := range accounts {
		if !a.Subtype.IsCashLike() {
			continue
		}
		dc := beforeTotals[a.ID]
		cf.OpeningCash = cf.OpeningCash.Add(a.SignedNet(dc.Debit, dc.Credit)).Add(s.openingThrough(a, dayBefore))
	}

	lines, err := s.repo.PostedLinesInRange(ctx, companyID, &start, &end)
	if err != nil {
		return CashFlow{}, err
	}
	byEntry := make(map[uuid.UUID][]ledger.PostedLine)
	var entryOrder []uuid.UUID
	for _, l := range lines {
		if _, seen := byEntry[l.EntryID]; !seen {
			entryOrder = append(entryOrder, l.EntryID)
		}
		byEntry[l.EntryID] = append(byEntry[l.EntryID], l)
	}

	sections := map[ledger.CashFlowSection]map[uuid.UUID]decimal.Decimal{
		ledger.CashFlowOperating: {},
		ledger.CashFlowInvesting: {},
		ledger.CashFlowFinancing: {},
	}
	for _, entryID := range entryOrder {
		group := byEntry[entryID]
		touchesCash := false
		for _, l := range group {
			if byID[l.AccountID].Subtype.IsCashLike() {
				touchesCash = true
				break
			}
		}
		if !touchesCash {
			continue
		}
		for _, l := range group {
			acc := byID[l.AccountID]
			if acc.Subtype.IsCashLike() {
				continue
			}
			delta := l.Credit.Sub(l.Debit)
			if delta.IsZero() {
				continue
			}
			section := ledger.CashFlowSectionFor(acc.Classification, acc.Subtype)
			sections[section][acc.ID] = sections[section][acc.ID].Add(delta)
		}
	}

	cf.Operating, cf.NetOperating = sectionRows(sections[ledger.CashFlowOperating], byID)
	cf.Investing, cf.NetInvesting = sectionRows(sections[ledger.CashFlowInvesting], byID)
	cf.Financing, cf.NetFinancing = sectionRows(sections[ledger.CashFlowFinancing], byID)
	cf.NetChange = cf.NetOperating.Add(cf.NetInvesting).Add(cf.NetFinancing)
	cf.ClosingCash = cf.OpeningCash.Add(cf.NetChange)
	return cf, nil
}

// openingThrough returns the account's stated opening balance when its
// effective date falls on or before asOf.
func (s *service) openingThrough(a ledger.Account, asOf time.Time) decimal.Decimal {
	if a.OpeningBalance.IsZero() || a.OpeningBalanceDate == nil {
		return decimal.Zero
	}
	if ledger.DateOnly(*a.OpeningBalanceDate).After(ledger.DateOnly(asOf)) {
		return decimal.Zero
	}
	return a.OpeningBalance
}

func sectionRows(amounts map[uuid.UUID]decimal.Decimal, byID map[uuid.UUID]ledger.Account) ([]Row, decimal.Decimal) {
	rows := make([]Row, 0, len(amounts))
	net := decimal.Zero
	for id, amt := range amounts {
		a := byID[id]
		rows = append(rows, Row{AccountID: id, Code: a.Code, Name: a.Name, Amount: amt})
		net = net.Add(amt)
	}
	sortRows(rows)
	return rows, net
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
}
