package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
)

func (s *Store) loadDestinations(ctx context.Context, ruleIDs []uuid.UUID) (map[uuid.UUID][]ledger.AllocationDestination, error) {
	if len(ruleIDs) == 0 {
		return map[uuid.UUID][]ledger.AllocationDestination{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select rule_id, account_id, percent::text, fixed_amount::text, sequence, active
		from allocation_destinations
		where rule_id = any($1)
		order by rule_id, sequence
	`, ruleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.AllocationDestination)
	for rows.Next() {
		var id uuid.UUID
		var d ledger.AllocationDestination
		var percent, fixed string
		if err := rows.Scan(&id, &d.AccountID, &percent, &fixed, &d.Sequence, &d.Active); err != nil {
			return nil, err
		}
		d.Percent = parseDec(percent)
		d.FixedAmount = parseDec(fixed)
		out[id] = append(out[id], d)
	}
	return out, rows.Err()
}

// --- allocation.Repo ---

func (s *Store) ListRules(ctx context.Context, companyID uuid.UUID) ([]ledger.AllocationRule, error) {
	rows, err := s.pool.Query(ctx, `
		select id, company_id, name, method, active, created_at, updated_at
		from allocation_rules
		where company_id = $1
		order by name
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.AllocationRule, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var r ledger.AllocationRule
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Method, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
		ids = append(ids, r.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dests, err := s.loadDestinations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Destinations = dests[out[i].ID]
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, companyID, ruleID uuid.UUID) (ledger.AllocationRule, error) {
	var r ledger.AllocationRule
	err := s.pool.QueryRow(ctx, `
		select id, company_id, name, method, active, created_at, updated_at
		from allocation_rules
		where id = $1 and company_id = $2
	`, ruleID, companyID).Scan(&r.ID, &r.CompanyID, &r.Name, &r.Method, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AllocationRule{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	dests, err := s.loadDestinations(ctx, []uuid.UUID{r.ID})
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	r.Destinations = dests[r.ID]
	return r, nil
}

// --- allocation.Writer ---

func (s *Store) CreateRule(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
		insert into allocation_rules (id, company_id, name, method, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, r.ID, r.CompanyID, r.Name, r.Method, r.Active, r.CreatedAt, r.UpdatedAt); err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := insertDestinations(ctx, tx, r); err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.AllocationRule{}, err
	}
	return r, nil
}

func insertDestinations(ctx context.Context, q execer, r ledger.AllocationRule) error {
	for _, d := range r.Destinations {
		if _, err := q.Exec(ctx, `
			insert into allocation_destinations (rule_id, account_id, percent, fixed_amount, sequence, active)
			values ($1,$2,$3,$4,$5,$6)
		`, r.ID, d.AccountID, d.Percent.String(), d.FixedAmount.String(), d.Sequence, d.Active); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	tag, err := tx.Exec(ctx, `
		update allocation_rules
		set name = $3, method = $4, active = $5, updated_at = $6
		where id = $1 and company_id = $2
	`, r.ID, r.CompanyID, r.Name, r.Method, r.Active, r.UpdatedAt)
	if err != nil {
		return ledger.AllocationRule{}, err
	}
	if tag.RowsAffected() == 0 {
		return ledger.AllocationRule{}, errs.ErrNotFound
	}
	if _, err := tx.Exec(ctx, `delete from allocation_destinations where rule_id = $1`, r.ID); err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := insertDestinations(ctx, tx, r); err != nil {
		return ledger.AllocationRule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.AllocationRule{}, err
	}
	return r, nil
}
