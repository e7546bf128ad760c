// Package allocation implements allocation rules: deterministic splits of an
// input amount across destination accounts.
package allocation

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
	ListRules(ctx context.Context, companyID uuid.UUID) ([]ledger.AllocationRule, error)
	GetRule(ctx context.Context, companyID, ruleID uuid.UUID) (ledger.AllocationRule, error)
	AccountsByIDs(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
}

// Writer defines write operations needed by the service.
type Writer interface {
	CreateRule(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error)
	UpdateRule(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error)
}

// Service exposes allocation rule CRUD and application.
type Service interface {
	Create(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error)
	Update(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error)
	Get(ctx context.Context, companyID, ruleID uuid.UUID) (ledger.AllocationRule, error)
	List(ctx context.Context, companyID uuid.UUID) ([]ledger.AllocationRule, error)
	// Apply splits amount across the rule's active destinations. The
	// returned amounts always sum to the input exactly.
	Apply(ctx context.Context, companyID, ruleID uuid.UUID, amount decimal.Decimal) ([]ledger.AccountAmount, error)
}

type service struct {
	repo   Repo
	writer Writer
	cfg    config.Config
}

// New constructs the allocation service.
func New(repo Repo, writer Writer, cfg config.Config) Service {
	return &service{repo: repo, writer: writer, cfg: cfg}
}

// percentEpsilon tolerates 0.01 percentage points when checking a rule sums
// to 100%.
var percentEpsilon = decimal.New(1, -2)

func (s *service) validate(ctx context.Context, r *ledger.AllocationRule) error {
	if r.CompanyID == uuid.Nil {
		return fmt.Errorf("company_id is required: %w", errs.ErrValidation)
	}
	if r.Name == "" {
		return fmt.Errorf("name is required: %w", errs.ErrValidation)
	}
	if r.Method != ledger.AllocationPercentage && r.Method != ledger.AllocationFixed {
		return fmt.Errorf("invalid method %q: %w", r.Method, errs.ErrValidation)
	}
	active := r.ActiveDestinations()
	if len(active) == 0 {
		return fmt.Errorf("rule needs at least one active destination: %w", errs.ErrValidation)
	}
	ids := make([]uuid.UUID, 0, len(active))
	for _, d := range active {
		if d.AccountID == uuid.Nil {
			return fmt.Errorf("destination account_id is required: %w", errs.ErrValidation)
		}
		ids = append(ids, d.AccountID)
	}
	accounts, err := s.repo.AccountsByIDs(ctx, r.CompanyID, ids)
	if err != nil {
		return err
	}
	for _, d := range active {
		acc, ok := accounts[d.AccountID]
		if !ok {
			return fmt.Errorf("destination account %s: %w", d.AccountID, errs.ErrNotFound)
		}
		if !acc.IsActive() {
			return fmt.Errorf("destination account %s is %s: %w", acc.Code, acc.Status, errs.ErrAccountInactive)
		}
	}
	switch r.Method {
	case ledger.AllocationPercentage:
		for _, d := range active {
			if !d.Percent.IsPositive() {
				return fmt.Errorf("destination percentages must be positive: %w", errs.ErrValidation)
			}
		}
		total := r.PercentTotal()
		if !money.WithinEpsilon(total, decimal.New(100, 0), percentEpsilon) {
			return fmt.Errorf("active percentages sum to %s, want 100: %w", total.String(), errs.ErrValidation)
		}
	case ledger.AllocationFixed:
		if !r.FixedTotal().IsPositive() {
			return fmt.Errorf("fixed amounts must sum above zero: %w", errs.ErrValidation)
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	if err := s.validate(ctx, &r); err != nil {
		return ledger.AllocationRule{}, err
	}
	existing, err := s.repo.ListRules(ctx, r.CompanyID)
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	for _, other := range existing {
		if other.Name == r.Name {
			return ledger.AllocationRule{}, fmt.Errorf("rule %q already exists: %w", r.Name, errs.ErrBusinessRule)
		}
	}
	now := time.Now().UTC()
	r.ID = uuid.New()
	r.Active = true
	r.CreatedAt = now
	r.UpdatedAt = now
	return s.writer.CreateRule(ctx, r)
}

func (s *service) Update(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	current, err := s.Get(ctx, r.CompanyID, r.ID)
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := s.validate(ctx, &r); err != nil {
		return ledger.AllocationRule{}, err
	}
	if r.Name != current.Name {
		existing, err := s.repo.ListRules(ctx, r.CompanyID)
		if err != nil {
			return ledger.AllocationRule{}, err
		}
		for _, other := range existing {
			if other.ID != r.ID && other.Name == r.Name {
				return ledger.AllocationRule{}, fmt.Errorf("rule %q already exists: %w", r.Name, errs.ErrBusinessRule)
			}
		}
	}
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	return s.writer.UpdateRule(ctx, r)
}

func (s *service) Get(ctx context.Context, companyID, ruleID uuid.UUID) (ledger.AllocationRule, error) {
	if companyID == uuid.Nil || ruleID == uuid.Nil {
		return ledger.AllocationRule{}, errs.ErrValidation
	}
	return s.repo.GetRule(ctx, companyID, ruleID)
}

func (s *service) List(ctx context.Context, companyID uuid.UUID) ([]ledger.AllocationRule, error) {
	if companyID == uuid.Nil {
		return nil, errs.ErrValidation
	}
	return s.repo.ListRules(ctx, companyID)
}

// Apply splits amount per the rule. Percentage destinations are rounded to
// two places under the configured mode, with the last active destination
// absorbing the residual so the split conserves the input to the cent and
// below. Fixed destinations must sum to the input exactly.
func (s *service) Apply(ctx context.Context, companyID, ruleID uuid.UUID, amount decimal.Decimal) ([]ledger.AccountAmount, error) {
	r, err := s.Get(ctx, companyID, ruleID)
	if err != nil {
		return nil, err
	}
	active := r.ActiveDestinations()
	if len(active) == 0 {
		return nil, fmt.Errorf("rule %q has no active destinations: %w", r.Name, errs.ErrValidation)
	}
	switch r.Method {
	case ledger.AllocationFixed:
		if !r.FixedTotal().Equal(amount) {
			return nil, fmt.Errorf("fixed destinations sum to %s, input is %s: %w",
				r.FixedTotal().String(), amount.String(), errs.ErrAllocationMismatch)
		}
		out := make([]ledger.AccountAmount, 0, len(active))
		for _, d := range active {
			out = append(out, ledger.AccountAmount{AccountID: d.AccountID, Amount: d.FixedAmount})
		}
		return out, nil
	case ledger.AllocationPercentage:
		out := make([]ledger.AccountAmount, 0, len(active))
		hundred := decimal.New(100, 0)
		allocated := decimal.Zero
		for i, d := range active {
			var share decimal.Decimal
			if i == len(active)-1 {
				// Last destination absorbs rounding residual.
				share = amount.Sub(allocated)
			} else {
				share = money.Round(amount.Mul(d.Percent).Div(hundred), 2, s.cfg.RoundingMode)
				allocated = allocated.Add(share)
			}
			out = append(out, ledger.AccountAmount{AccountID: d.AccountID, Amount: share})
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid method %q: %w", r.Method, errs.ErrValidation)
}
