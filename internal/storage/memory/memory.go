// Package memory provides an in-memory implementation of every repository and
// writer the services consume. It backs development and tests; the postgres
// package is the production store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/errs"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/posting"
)

// balanceKey identifies a ledger-balance row.
type balanceKey struct {
	AccountID uuid.UUID
	PeriodID  uuid.UUID
}

// seqKey identifies an entry-number sequence bucket.
type seqKey struct {
	CompanyID uuid.UUID
	YearMonth string
}

// runKey identifies one recurring run, the duplicate guard for the scheduler.
type runKey struct {
	TemplateID uuid.UUID
	Date       string
}

// Store is an in-memory store guarded by an RWMutex. Posting transactions
// take the write lock for their whole duration, so posts serialize; that is
// acceptable for a dev/test double.
type Store struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]ledger.Account
	periods   map[uuid.UUID]ledger.AccountingPeriod
	entries   map[uuid.UUID]ledger.JournalEntry
	balances  map[balanceKey]ledger.LedgerBalance
	sequences map[seqKey]int
	templates map[uuid.UUID]ledger.RecurringTemplate
	runs      map[runKey]uuid.UUID
	rules     map[uuid.UUID]ledger.AllocationRule
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]ledger.Account),
		periods:   make(map[uuid.UUID]ledger.AccountingPeriod),
		entries:   make(map[uuid.UUID]ledger.JournalEntry),
		balances:  make(map[balanceKey]ledger.LedgerBalance),
		sequences: make(map[seqKey]int),
		templates: make(map[uuid.UUID]ledger.RecurringTemplate),
		runs:      make(map[runKey]uuid.UUID),
		rules:     make(map[uuid.UUID]ledger.AllocationRule),
	}
}

// Seed helpers for local dev/tests.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.accounts[a.ID] = a; s.mu.Unlock() }
func (s *Store) SeedPeriod(p ledger.AccountingPeriod) {
	s.mu.Lock()
	s.periods[p.ID] = p
	s.mu.Unlock()
}
func (s *Store) SeedEntry(e ledger.JournalEntry) {
	s.mu.Lock()
	s.entries[e.ID] = cloneEntry(e)
	s.mu.Unlock()
}
func (s *Store) SeedTemplate(t ledger.RecurringTemplate) {
	s.mu.Lock()
	s.templates[t.ID] = t
	s.mu.Unlock()
}

// postedLocked reports whether an entry's lines are in the ledger: it reached
// Posted at some point, even if a reversal has since voided it.
func postedLocked(e ledger.JournalEntry) bool {
	return e.PostedAt != nil && !e.Deleted
}

func cloneEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = append([]ledger.JournalEntryLine(nil), e.Lines...)
	return e
}

// --- account.Repo / account.Writer ---

func (s *Store) ListAccounts(_ context.Context, companyID uuid.UUID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0)
	for _, a := range s.accounts {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, companyID, accountID uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok || a.CompanyID != companyID {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) HasPostedLines(_ context.Context, accountID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if !postedLocked(e) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) PostedTotalsThrough(_ context.Context, companyID uuid.UUID, asOf *time.Time) (map[uuid.UUID]ledger.DebitCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.DebitCredit)
	for _, e := range s.entries {
		if e.CompanyID != companyID || !postedLocked(e) {
			continue
		}
		if asOf != nil && ledger.DateOnly(e.Date).After(ledger.DateOnly(*asOf)) {
			continue
		}
		for _, l := range e.Lines {
			out[l.AccountID] = out[l.AccountID].Add(ledger.DebitCredit{Debit: l.BaseDebit(), Credit: l.BaseCredit()})
		}
	}
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	s.accounts[a.ID] = a
	return a, nil
}

// --- period.Repo / period.Writer ---

func (s *Store) ListPeriods(_ context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodsByCompanyLocked(companyID), nil
}

func (s *Store) periodsByCompanyLocked(companyID uuid.UUID) []ledger.AccountingPeriod {
	out := make([]ledger.AccountingPeriod, 0)
	for _, p := range s.periods {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (s *Store) GetPeriod(_ context.Context, companyID, periodID uuid.UUID) (ledger.AccountingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.periods[periodID]
	if !ok || p.CompanyID != companyID {
		return ledger.AccountingPeriod{}, errs.ErrNotFound
	}
	return p, nil
}

func (s *Store) CountUnpostedEntries(_ context.Context, companyID uuid.UUID, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.CompanyID != companyID || e.Deleted {
			continue
		}
		if e.Status == ledger.EntryStatusPosted || e.Status == ledger.EntryStatusVoid {
			continue
		}
		d := ledger.DateOnly(e.Date)
		if d.Before(ledger.DateOnly(start)) || d.After(ledger.DateOnly(end)) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *Store) CreatePeriod(_ context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePeriod(_ context.Context, p ledger.AccountingPeriod) (ledger.AccountingPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[p.ID]; !ok {
		return ledger.AccountingPeriod{}, errs.ErrNotFound
	}
	s.periods[p.ID] = p
	return p, nil
}

// --- journal.Repo / journal.Writer ---

func (s *Store) GetEntry(_ context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntryLocked(companyID, entryID)
}

func (s *Store) getEntryLocked(companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	e, ok := s.entries[entryID]
	if !ok || e.CompanyID != companyID || e.Deleted {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *Store) AccountsByIDs(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok && a.CompanyID == companyID {
			out[id] = a
		}
	}
	return out, nil
}

func (s *Store) SearchEntries(_ context.Context, companyID uuid.UUID, f journal.Filter, limit, offset int) ([]ledger.JournalEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]ledger.JournalEntry, 0)
	for _, e := range s.entries {
		if e.CompanyID != companyID || e.Deleted {
			continue
		}
		if !matchesFilter(e, f) {
			continue
		}
		matched = append(matched, cloneEntry(e))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].EntryNumber < matched[j].EntryNumber
	})
	total := len(matched)
	if offset >= total {
		return []ledger.JournalEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func matchesFilter(e ledger.JournalEntry, f journal.Filter) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.DateFrom != nil && ledger.DateOnly(e.Date).Before(ledger.DateOnly(*f.DateFrom)) {
		return false
	}
	if f.DateTo != nil && ledger.DateOnly(e.Date).After(ledger.DateOnly(*f.DateTo)) {
		return false
	}
	if f.Reference != "" && !strings.Contains(strings.ToLower(e.Reference), strings.ToLower(f.Reference)) {
		return false
	}
	if f.Memo != "" && !strings.Contains(strings.ToLower(e.Memo), strings.ToLower(f.Memo)) {
		return false
	}
	if f.CreatedBy != uuid.Nil && e.CreatedBy != f.CreatedBy {
		return false
	}
	if f.ApprovedBy != uuid.Nil && (e.ApprovedBy == nil || *e.ApprovedBy != f.ApprovedBy) {
		return false
	}
	if f.AccountID != uuid.Nil {
		found := false
		for _, l := range e.Lines {
			if l.AccountID == f.AccountID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *Store) CreateEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createEntryLocked(e); err != nil {
		return ledger.JournalEntry{}, err
	}
	return e, nil
}

func (s *Store) createEntryLocked(e ledger.JournalEntry) error {
	for _, other := range s.entries {
		if other.CompanyID == e.CompanyID && other.EntryNumber == e.EntryNumber && !other.Deleted {
			return fmt.Errorf("entry number %s: %w", e.EntryNumber, errs.ErrDuplicateEntryNumber)
		}
	}
	s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	s.entries[e.ID] = cloneEntry(e)
	return e, nil
}

func (s *Store) NextEntryNumber(_ context.Context, companyID uuid.UUID, yearMonth string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextEntryNumberLocked(companyID, yearMonth), nil
}

func (s *Store) nextEntryNumberLocked(companyID uuid.UUID, yearMonth string) int {
	k := seqKey{CompanyID: companyID, YearMonth: yearMonth}
	s.sequences[k]++
	return s.sequences[k]
}

// --- balance.Store / balance.RebuildStore ---

func (s *Store) PeriodsByCompany(_ context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodsByCompanyLocked(companyID), nil
}

func (s *Store) GetBalance(_ context.Context, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[balanceKey{AccountID: accountID, PeriodID: periodID}]
	return b, ok, nil
}

func (s *Store) UpsertBalance(_ context.Context, b ledger.LedgerBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{AccountID: b.AccountID, PeriodID: b.PeriodID}] = b
	return nil
}

func (s *Store) PostedTotalsByPeriod(_ context.Context, companyID, accountID uuid.UUID) (map[uuid.UUID]ledger.DebitCredit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postedTotalsByPeriodLocked(companyID, accountID), nil
}

func (s *Store) postedTotalsByPeriodLocked(companyID, accountID uuid.UUID) map[uuid.UUID]ledger.DebitCredit {
	out := make(map[uuid.UUID]ledger.DebitCredit)
	for _, e := range s.entries {
		if e.CompanyID != companyID || !postedLocked(e) || e.PeriodID == nil {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			out[*e.PeriodID] = out[*e.PeriodID].Add(ledger.DebitCredit{Debit: l.BaseDebit(), Credit: l.BaseCredit()})
		}
	}
	return out
}

// --- report.Repo ---

func (s *Store) PostedLinesInRange(_ context.Context, companyID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.PostedLine, 0)
	for _, e := range s.entries {
		if e.CompanyID != companyID || !postedLocked(e) || e.PeriodID == nil {
			continue
		}
		d := ledger.DateOnly(e.Date)
		if from != nil && d.Before(ledger.DateOnly(*from)) {
			continue
		}
		if to != nil && d.After(ledger.DateOnly(*to)) {
			continue
		}
		for _, l := range e.Lines {
			out = append(out, ledger.PostedLine{
				EntryID:     e.ID,
				EntryNumber: e.EntryNumber,
				Date:        d,
				PeriodID:    *e.PeriodID,
				AccountID:   l.AccountID,
				LineNumber:  l.LineNumber,
				Debit:       l.BaseDebit(),
				Credit:      l.BaseCredit(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryNumber != out[j].EntryNumber {
			return out[i].EntryNumber < out[j].EntryNumber
		}
		return out[i].LineNumber < out[j].LineNumber
	})
	return out, nil
}

// --- recurring.Repo / recurring.Writer ---

func (s *Store) ListTemplates(_ context.Context, companyID uuid.UUID) ([]ledger.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.RecurringTemplate, 0)
	for _, t := range s.templates {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetTemplate(_ context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok || t.CompanyID != companyID {
		return ledger.RecurringTemplate{}, errs.ErrNotFound
	}
	return t, nil
}

func (s *Store) DueTemplates(_ context.Context, asOf time.Time) ([]ledger.RecurringTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.RecurringTemplate, 0)
	for _, t := range s.templates {
		if t.Status == ledger.TemplateStatusActive && !ledger.DateOnly(t.NextRunDate).After(ledger.DateOnly(asOf)) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) RunExists(_ context.Context, templateID uuid.UUID, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.runs[runKey{TemplateID: templateID, Date: ledger.DateOnly(date).Format("2006-01-02")}]
	return ok, nil
}

func (s *Store) CreateTemplate(_ context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTemplate(_ context.Context, t ledger.RecurringTemplate) (ledger.RecurringTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return ledger.RecurringTemplate{}, errs.ErrNotFound
	}
	s.templates[t.ID] = t
	return t, nil
}

func (s *Store) RecordRun(_ context.Context, templateID, entryID uuid.UUID, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := runKey{TemplateID: templateID, Date: ledger.DateOnly(date).Format("2006-01-02")}
	if _, ok := s.runs[k]; ok {
		return fmt.Errorf("run for %s on %s: %w", templateID, k.Date, errs.ErrDuplicateEntryNumber)
	}
	s.runs[k] = entryID
	return nil
}

// --- allocation.Repo / allocation.Writer ---

func (s *Store) ListRules(_ context.Context, companyID uuid.UUID) ([]ledger.AllocationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.AllocationRule, 0)
	for _, r := range s.rules {
		if r.CompanyID == companyID {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetRule(_ context.Context, companyID, ruleID uuid.UUID) (ledger.AllocationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok || r.CompanyID != companyID {
		return ledger.AllocationRule{}, errs.ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *Store) CreateRule(_ context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = cloneRule(r)
	return r, nil
}

func (s *Store) UpdateRule(_ context.Context, r ledger.AllocationRule) (ledger.AllocationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; !ok {
		return ledger.AllocationRule{}, errs.ErrNotFound
	}
	s.rules[r.ID] = cloneRule(r)
	return r, nil
}

func cloneRule(r ledger.AllocationRule) ledger.AllocationRule {
	r.Destinations = append([]ledger.AllocationDestination(nil), r.Destinations...)
	return r
}

// --- posting.Store ---

// Begin takes the store's write lock for the duration of the transaction and
// snapshots the mutable maps so Rollback can restore them.
func (s *Store) Begin(_ context.Context) (posting.Tx, error) {
	s.mu.Lock()
	tx := &memTx{store: s}
	tx.snapEntries = make(map[uuid.UUID]ledger.JournalEntry, len(s.entries))
	for id, e := range s.entries {
		tx.snapEntries[id] = cloneEntry(e)
	}
	tx.snapBalances = make(map[balanceKey]ledger.LedgerBalance, len(s.balances))
	for k, b := range s.balances {
		tx.snapBalances[k] = b
	}
	tx.snapSequences = make(map[seqKey]int, len(s.sequences))
	for k, v := range s.sequences {
		tx.snapSequences[k] = v
	}
	return tx, nil
}

// memTx operates on the live maps while holding the store's write lock.
type memTx struct {
	store         *Store
	done          bool
	snapEntries   map[uuid.UUID]ledger.JournalEntry
	snapBalances  map[balanceKey]ledger.LedgerBalance
	snapSequences map[seqKey]int
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return fmt.Errorf("transaction already finished: %w", errs.ErrInvalidState)
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.entries = tx.snapEntries
	tx.store.balances = tx.snapBalances
	tx.store.sequences = tx.snapSequences
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) GetEntryForUpdate(_ context.Context, companyID, entryID uuid.UUID) (ledger.JournalEntry, error) {
	return tx.store.getEntryLocked(companyID, entryID)
}

func (tx *memTx) AccountsForUpdate(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := tx.store.accounts[id]; ok && a.CompanyID == companyID {
			out[id] = a
		}
	}
	return out, nil
}

func (tx *memTx) UpdateEntry(_ context.Context, e ledger.JournalEntry) error {
	if _, ok := tx.store.entries[e.ID]; !ok {
		return errs.ErrNotFound
	}
	tx.store.entries[e.ID] = cloneEntry(e)
	return nil
}

func (tx *memTx) CreateEntry(_ context.Context, e ledger.JournalEntry) error {
	return tx.store.createEntryLocked(e)
}

func (tx *memTx) NextEntryNumber(_ context.Context, companyID uuid.UUID, yearMonth string) (int, error) {
	return tx.store.nextEntryNumberLocked(companyID, yearMonth), nil
}

func (tx *memTx) PeriodsByCompany(_ context.Context, companyID uuid.UUID) ([]ledger.AccountingPeriod, error) {
	return tx.store.periodsByCompanyLocked(companyID), nil
}

func (tx *memTx) GetBalance(_ context.Context, accountID, periodID uuid.UUID) (ledger.LedgerBalance, bool, error) {
	b, ok := tx.store.balances[balanceKey{AccountID: accountID, PeriodID: periodID}]
	return b, ok, nil
}

func (tx *memTx) UpsertBalance(_ context.Context, b ledger.LedgerBalance) error {
	tx.store.balances[balanceKey{AccountID: b.AccountID, PeriodID: b.PeriodID}] = b
	return nil
}
