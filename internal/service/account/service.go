// Package account implements the account registry: chart-of-accounts CRUD,
// hierarchy maintenance, and balance lookups. Identity fields lock down once
// posted lines reference an account.
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/money"
)

// Repo defines read operations needed by the service.
type Repo interface {
	ListAccounts(ctx context.Context, companyID uuid.UUID) ([]ledger.Account, error)
	GetAccount(ctx context.Context, companyID, accountID uuid.UUID) (ledger.Account, error)
	// HasPostedLines reports whether any posted journal line references the account.
	HasPostedLines(ctx context.Context, accountID uuid.UUID) (bool, error)
	// PostedTotalsThrough sums posted line debits/credits per account through
	// asOf (inclusive); nil asOf means all posted activity.
	PostedTotalsThrough(ctx context.Context, companyID uuid.UUID, asOf *time.Time) (map[uuid.UUID]ledger.DebitCredit, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
}

// BalanceReport is the result of a balance lookup.
type BalanceReport struct {
	AccountID       uuid.UUID
	Code            string
	Name            string
	NormalSide      ledger.Side
	AsOf            *time.Time
	IncludeChildren bool
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	// Balance is the signed net by the account's normal side.
	Balance decimal.Decimal
}

// Service exposes the account registry operations.
type Service interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, companyID, accountID uuid.UUID) (ledger.Account, error)
	List(ctx context.Context, companyID uuid.UUID) ([]ledger.Account, error)
	Update(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Delete(ctx context.Context, companyID, accountID uuid.UUID) error
	Tree(ctx context.Context, companyID uuid.UUID) ([]*ledger.AccountNode, error)
	Balance(ctx context.Context, companyID, accountID uuid.UUID, asOf *time.Time, includeChildren bool) (BalanceReport, error)
}

type service struct {
	repo   Repo
	writer Writer
	cfg    config.Config
}

// New constructs the account service.
func New(repo Repo, writer Writer, cfg config.Config) Service {
	return &service{repo: repo, writer: writer, cfg: cfg}
}

func (s *service) validate(a *ledger.Account) error {
	if a.CompanyID == uuid.Nil {
		return fmt.Errorf("company_id is required: %w", errs.ErrValidation)
	}
	a.Code = ledger.NormalizeAccountCode(a.Code)
	if !ledger.ValidAccountCode(a.Code) {
		return fmt.Errorf("invalid account code %q: %w", a.Code, errs.ErrValidation)
	}
	if a.Name == "" {
		return fmt.Errorf("name is required: %w", errs.ErrValidation)
	}
	if !a.Classification.Valid() {
		return fmt.Errorf("invalid classification %q: %w", a.Classification, errs.ErrValidation)
	}
	a.CurrencyCode = money.NormalizeCurrency(a.CurrencyCode)
	if a.CurrencyCode == "" {
		a.CurrencyCode = s.cfg.BaseCurrency
	}
	if !money.ValidCurrency(a.CurrencyCode) {
		return fmt.Errorf("invalid currency %q: %w", a.CurrencyCode, errs.ErrValidation)
	}
	if !a.OpeningBalance.IsZero() && a.OpeningBalanceDate == nil {
		return fmt.Errorf("opening balance requires an effective date: %w", errs.ErrValidation)
	}
	return nil
}

func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := s.validate(&a); err != nil {
		return ledger.Account{}, err
	}
	existing, err := s.repo.ListAccounts(ctx, a.CompanyID)
	if err != nil {
		return ledger.Account{}, err
	}
	// Codes are unique per company among non-archived accounts; archived
	// accounts keep their code without blocking reuse.
	for _, other := range existing {
		if other.Status != ledger.AccountStatusArchived && other.Code == a.Code {
			return ledger.Account{}, fmt.Errorf("account code %s already in use: %w", a.Code, errs.ErrBusinessRule)
		}
	}
	if a.ParentID != nil {
		parent, err := s.repo.GetAccount(ctx, a.CompanyID, *a.ParentID)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("parent account: %w", err)
		}
		if parent.Classification != a.Classification {
			return ledger.Account{}, fmt.Errorf("parent and child must share classification: %w", errs.ErrBusinessRule)
		}
	}
	now := time.Now().UTC()
	a.ID = uuid.New()
	a.Status = ledger.AccountStatusActive
	a.CreatedAt = now
	a.UpdatedAt = now
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Get(ctx context.Context, companyID, accountID uuid.UUID) (ledger.Account, error) {
	if companyID == uuid.Nil || accountID == uuid.Nil {
		return ledger.Account{}, errs.ErrValidation
	}
	return s.repo.GetAccount(ctx, companyID, accountID)
}

func (s *service) List(ctx context.Context, companyID uuid.UUID) ([]ledger.Account, error) {
	if companyID == uuid.Nil {
		return nil, errs.ErrValidation
	}
	return s.repo.ListAccounts(ctx, companyID)
}

// Update applies changes to an account. Classification, subtype and the
// reconcilable flag are immutable once posted lines reference the account;
// system accounts cannot be retyped at all.
func (s *service) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.CompanyID == uuid.Nil || a.ID == uuid.Nil {
		return ledger.Account{}, errs.ErrValidation
	}
	current, err := s.repo.GetAccount(ctx, a.CompanyID, a.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := s.validate(&a); err != nil {
		return ledger.Account{}, err
	}
	retyped := current.Classification != a.Classification ||
		current.Subtype != a.Subtype ||
		current.Reconcilable != a.Reconcilable
	if retyped {
		if current.System {
			return ledger.Account{}, fmt.Errorf("system account cannot be retyped: %w", errs.ErrSystemAccount)
		}
		posted, err := s.repo.HasPostedLines(ctx, a.ID)
		if err != nil {
			return ledger.Account{}, err
		}
		if posted {
			return ledger.Account{}, fmt.Errorf("account has posted activity: %w", errs.ErrImmutable)
		}
	}
	if a.System != current.System {
		return ledger.Account{}, fmt.Errorf("system flag: %w", errs.ErrImmutable)
	}
	if a.Code != current.Code {
		existing, err := s.repo.ListAccounts(ctx, a.CompanyID)
		if err != nil {
			return ledger.Account{}, err
		}
		for _, other := range existing {
			if other.ID != a.ID && other.Status != ledger.AccountStatusArchived && other.Code == a.Code {
				return ledger.Account{}, fmt.Errorf("account code %s already in use: %w", a.Code, errs.ErrBusinessRule)
			}
		}
	}
	if err := s.checkParent(ctx, current, a); err != nil {
		return ledger.Account{}, err
	}
	a.CreatedAt = current.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	return s.writer.UpdateAccount(ctx, a)
}

// checkParent validates a parent reassignment: same classification, and the
// proposed parent must not be a descendant of the node being moved.
func (s *service) checkParent(ctx context.Context, current, next ledger.Account) error {
	if next.ParentID == nil {
		return nil
	}
	if current.ParentID != nil && *current.ParentID == *next.ParentID {
		return nil
	}
	if *next.ParentID == next.ID {
		return fmt.Errorf("account cannot parent itself: %w", errs.ErrBusinessRule)
	}
	parent, err := s.repo.GetAccount(ctx, next.CompanyID, *next.ParentID)
	if err != nil {
		return fmt.Errorf("parent account: %w", err)
	}
	if parent.Classification != next.Classification {
		return fmt.Errorf("parent and child must share classification: %w", errs.ErrBusinessRule)
	}
	// Walk ancestor links from the proposed parent; hitting the moved node
	// means the assignment would close a cycle.
	accounts, err := s.repo.ListAccounts(ctx, next.CompanyID)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]ledger.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	for cursor, hops := parent, 0; ; hops++ {
		if hops > len(accounts) {
			return fmt.Errorf("account hierarchy contains a cycle: %w", errs.ErrBusinessRule)
		}
		if cursor.ID == next.ID {
			return fmt.Errorf("proposed parent is a descendant: %w", errs.ErrBusinessRule)
		}
		if cursor.ParentID == nil {
			return nil
		}
		up, ok := byID[*cursor.ParentID]
		if !ok {
			return nil
		}
		cursor = up
	}
}

// Delete soft-deletes an account, gated on it being unreferenced.
func (s *service) Delete(ctx context.Context, companyID, accountID uuid.UUID) error {
	if companyID == uuid.Nil || accountID == uuid.Nil {
		return errs.ErrValidation
	}
	acc, err := s.repo.GetAccount(ctx, companyID, accountID)
	if err != nil {
		return err
	}
	if acc.System {
		return fmt.Errorf("system account cannot be deleted: %w", errs.ErrSystemAccount)
	}
	accounts, err := s.repo.ListAccounts(ctx, companyID)
	if err != nil {
		return err
	}
	for _, other := range accounts {
		if other.ParentID != nil && *other.ParentID == accountID && other.Status == ledger.AccountStatusActive {
			return fmt.Errorf("account has active children: %w", errs.ErrBusinessRule)
		}
	}
	posted, err := s.repo.HasPostedLines(ctx, accountID)
	if err != nil {
		return err
	}
	if posted {
		return fmt.Errorf("account has posted journal lines: %w", errs.ErrBusinessRule)
	}
	acc.Status = ledger.AccountStatusArchived
	acc.UpdatedAt = time.Now().UTC()
	_, err = s.writer.UpdateAccount(ctx, acc)
	return err
}

// Tree returns the chart of accounts as a forest ordered by code.
func (s *service) Tree(ctx context.Context, companyID uuid.UUID) ([]*ledger.AccountNode, error) {
	accounts, err := s.List(ctx, companyID)
	if err != nil {
		return nil, err
	}
	nodes := make(map[uuid.UUID]*ledger.AccountNode, len(accounts))
	for _, a := range accounts {
		nodes[a.ID] = &ledger.AccountNode{Account: a}
	}
	var roots []*ledger.AccountNode
	for _, a := range accounts {
		n := nodes[a.ID]
		if a.ParentID != nil {
			if parent, ok := nodes[*a.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(ns []*ledger.AccountNode) {
	for i := 1; i < len(ns); i++ {
		for j := i; j > 0 && ns[j].Account.Code < ns[j-1].Account.Code; j-- {
			ns[j], ns[j-1] = ns[j-1], ns[j]
		}
	}
	for _, n := range ns {
		sortNodes(n.Children)
	}
}

// Balance sums posted lines through asOf, signed by the account's normal
// side, optionally rolling up descendants under the same sign convention.
func (s *service) Balance(ctx context.Context, companyID, accountID uuid.UUID, asOf *time.Time, includeChildren bool) (BalanceReport, error) {
	acc, err := s.Get(ctx, companyID, accountID)
	if err != nil {
		return BalanceReport{}, err
	}
	totals, err := s.repo.PostedTotalsThrough(ctx, companyID, asOf)
	if err != nil {
		return BalanceReport{}, err
	}
	ids := []uuid.UUID{accountID}
	if includeChildren {
		accounts, err := s.repo.ListAccounts(ctx, companyID)
		if err != nil {
			return BalanceReport{}, err
		}
		ids = append(ids, descendants(accounts, accountID)...)
	}
	sum := ledger.DebitCredit{Debit: decimal.Zero, Credit: decimal.Zero}
	for _, id := range ids {
		if dc, ok := totals[id]; ok {
			sum = sum.Add(dc)
		}
	}
	return BalanceReport{
		AccountID:       acc.ID,
		Code:            acc.Code,
		Name:            acc.Name,
		NormalSide:      acc.NormalSide(),
		AsOf:            asOf,
		IncludeChildren: includeChildren,
		Debit:           sum.Debit,
		Credit:          sum.Credit,
		Balance:         acc.SignedNet(sum.Debit, sum.Credit),
	}, nil
}

// descendants returns every account below root in the hierarchy.
func descendants(accounts []ledger.Account, root uuid.UUID) []uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID)
	for _, a := range accounts {
		if a.ParentID != nil {
			children[*a.ParentID] = append(children[*a.ParentID], a.ID)
		}
	}
	var out []uuid.UUID
	queue := append([]uuid.UUID(nil), children[root]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		queue = append(queue, children[id]...)
	}
	return out
}
