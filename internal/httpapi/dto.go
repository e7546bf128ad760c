package httpapi

import (
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/ledger"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func urlID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func companyIDQuery(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("company_id")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("company_id is required")
	}
	return uuid.Parse(raw)
}

// --- accounts ---

type accountRequest struct {
	CompanyID          uuid.UUID       `json:"company_id"`
	Code               string          `json:"code"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	Classification     string          `json:"classification"`
	Subtype            string          `json:"subtype"`
	ParentID           *uuid.UUID      `json:"parent_id"`
	TaxRelated         bool            `json:"tax_related"`
	Reconcilable       bool            `json:"reconcilable"`
	CurrencyCode       string          `json:"currency_code"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	OpeningBalanceDate string          `json:"opening_balance_date"`
}

func (req accountRequest) toDomain() (ledger.Account, error) {
	a := ledger.Account{
		CompanyID:      req.CompanyID,
		Code:           req.Code,
		Name:           req.Name,
		Description:    req.Description,
		Classification: ledger.Classification(req.Classification),
		Subtype:        ledger.Subtype(req.Subtype),
		ParentID:       req.ParentID,
		TaxRelated:     req.TaxRelated,
		Reconcilable:   req.Reconcilable,
		CurrencyCode:   req.CurrencyCode,
		OpeningBalance: req.OpeningBalance,
	}
	if req.OpeningBalanceDate != "" {
		d, err := parseDate(req.OpeningBalanceDate)
		if err != nil {
			return ledger.Account{}, err
		}
		a.OpeningBalanceDate = &d
	}
	return a, nil
}

type accountResponse struct {
	ID                 uuid.UUID             `json:"id"`
	CompanyID          uuid.UUID             `json:"company_id"`
	Code               string                `json:"code"`
	Name               string                `json:"name"`
	Description        string                `json:"description,omitempty"`
	Classification     ledger.Classification `json:"classification"`
	Subtype            ledger.Subtype        `json:"subtype,omitempty"`
	NormalSide         ledger.Side           `json:"normal_side"`
	ParentID           *uuid.UUID            `json:"parent_id,omitempty"`
	Status             ledger.AccountStatus  `json:"status"`
	System             bool                  `json:"system"`
	TaxRelated         bool                  `json:"tax_related"`
	Reconcilable       bool                  `json:"reconcilable"`
	CurrencyCode       string                `json:"currency_code"`
	OpeningBalance     decimal.Decimal       `json:"opening_balance"`
	OpeningBalanceDate *string               `json:"opening_balance_date,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	resp := accountResponse{
		ID:             a.ID,
		CompanyID:      a.CompanyID,
		Code:           a.Code,
		Name:           a.Name,
		Description:    a.Description,
		Classification: a.Classification,
		Subtype:        a.Subtype,
		NormalSide:     a.NormalSide(),
		ParentID:       a.ParentID,
		Status:         a.Status,
		System:         a.System,
		TaxRelated:     a.TaxRelated,
		Reconcilable:   a.Reconcilable,
		CurrencyCode:   a.CurrencyCode,
		OpeningBalance: a.OpeningBalance,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	if a.OpeningBalanceDate != nil {
		d := a.OpeningBalanceDate.Format(dateLayout)
		resp.OpeningBalanceDate = &d
	}
	return resp
}

type treeNodeResponse struct {
	accountResponse
	Children []treeNodeResponse `json:"children,omitempty"`
}

func toTreeResponse(nodes []*ledger.AccountNode) []treeNodeResponse {
	out := make([]treeNodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treeNodeResponse{
			accountResponse: toAccountResponse(n.Account),
			Children:        toTreeResponse(n.Children),
		})
	}
	return out
}

// --- periods ---

type openPeriodRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
}

type closePeriodRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	ClosedBy  uuid.UUID `json:"closed_by"`
}

type periodResponse struct {
	ID        uuid.UUID  `json:"id"`
	CompanyID uuid.UUID  `json:"company_id"`
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Closed    bool       `json:"closed"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  *uuid.UUID `json:"closed_by,omitempty"`
}

func toPeriodResponse(p ledger.AccountingPeriod) periodResponse {
	return periodResponse{
		ID:        p.ID,
		CompanyID: p.CompanyID,
		Name:      p.Name,
		StartDate: p.StartDate.Format(dateLayout),
		EndDate:   p.EndDate.Format(dateLayout),
		Closed:    p.Closed,
		ClosedAt:  p.ClosedAt,
		ClosedBy:  p.ClosedBy,
	}
}

// --- journal entries ---

type entryLineRequest struct {
	LineNumber   int             `json:"line_number"`
	AccountID    uuid.UUID       `json:"account_id"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyCode string          `json:"currency_code"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

type entryRequest struct {
	CompanyID    uuid.UUID          `json:"company_id"`
	Date         string             `json:"date"`
	Reference    string             `json:"reference"`
	Memo         string             `json:"memo"`
	CurrencyCode string             `json:"currency_code"`
	ExchangeRate decimal.Decimal    `json:"exchange_rate"`
	Adjusting    bool               `json:"adjusting"`
	CreatedBy    uuid.UUID          `json:"created_by"`
	Lines        []entryLineRequest `json:"lines"`
}

func (req entryRequest) toDomain() (ledger.JournalEntry, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e := ledger.JournalEntry{
		CompanyID:    req.CompanyID,
		Date:         date,
		Reference:    req.Reference,
		Memo:         req.Memo,
		CurrencyCode: req.CurrencyCode,
		ExchangeRate: req.ExchangeRate,
		Adjusting:    req.Adjusting,
		CreatedBy:    req.CreatedBy,
	}
	for _, l := range req.Lines {
		e.Lines = append(e.Lines, ledger.JournalEntryLine{
			LineNumber:   l.LineNumber,
			AccountID:    l.AccountID,
			Description:  l.Description,
			Reference:    l.Reference,
			Debit:        l.Debit,
			Credit:       l.Credit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
		})
	}
	return e, nil
}

type entryLineResponse struct {
	ID           uuid.UUID       `json:"id"`
	LineNumber   int             `json:"line_number"`
	AccountID    uuid.UUID       `json:"account_id"`
	Description  string          `json:"description,omitempty"`
	Reference    string          `json:"reference,omitempty"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	CurrencyCode string          `json:"currency_code"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

type entryResponse struct {
	ID              uuid.UUID           `json:"id"`
	CompanyID       uuid.UUID           `json:"company_id"`
	EntryNumber     string              `json:"entry_number"`
	Date            string              `json:"date"`
	Reference       string              `json:"reference,omitempty"`
	Memo            string              `json:"memo,omitempty"`
	CurrencyCode    string              `json:"currency_code"`
	ExchangeRate    decimal.Decimal     `json:"exchange_rate"`
	Status          ledger.EntryStatus  `json:"status"`
	Adjusting       bool                `json:"adjusting"`
	Reversing       bool                `json:"reversing"`
	ReversedEntryID *uuid.UUID          `json:"reversed_entry_id,omitempty"`
	PeriodID        *uuid.UUID          `json:"period_id,omitempty"`
	TotalDebit      decimal.Decimal     `json:"total_debit"`
	TotalCredit     decimal.Decimal     `json:"total_credit"`
	CreatedBy       uuid.UUID           `json:"created_by"`
	ApprovedBy      *uuid.UUID          `json:"approved_by,omitempty"`
	RejectReason    string              `json:"reject_reason,omitempty"`
	PostedAt        *time.Time          `json:"posted_at,omitempty"`
	PostedBy        *uuid.UUID          `json:"posted_by,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Lines           []entryLineResponse `json:"lines"`
}

func toEntryResponse(e ledger.JournalEntry) entryResponse {
	resp := entryResponse{
		ID:              e.ID,
		CompanyID:       e.CompanyID,
		EntryNumber:     e.EntryNumber,
		Date:            e.Date.Format(dateLayout),
		Reference:       e.Reference,
		Memo:            e.Memo,
		CurrencyCode:    e.CurrencyCode,
		ExchangeRate:    e.ExchangeRate,
		Status:          e.Status,
		Adjusting:       e.Adjusting,
		Reversing:       e.Reversing,
		ReversedEntryID: e.ReversedEntryID,
		PeriodID:        e.PeriodID,
		TotalDebit:      e.TotalDebit,
		TotalCredit:     e.TotalCredit,
		CreatedBy:       e.CreatedBy,
		ApprovedBy:      e.ApprovedBy,
		RejectReason:    e.RejectReason,
		PostedAt:        e.PostedAt,
		PostedBy:        e.PostedBy,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
		Lines:           make([]entryLineResponse, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, entryLineResponse{
			ID:           l.ID,
			LineNumber:   l.LineNumber,
			AccountID:    l.AccountID,
			Description:  l.Description,
			Reference:    l.Reference,
			Debit:        l.Debit,
			Credit:       l.Credit,
			CurrencyCode: l.CurrencyCode,
			ExchangeRate: l.ExchangeRate,
		})
	}
	return resp
}

type entryPageResponse struct {
	Entries []entryResponse `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// --- recurring templates ---

type templateLineRequest struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type templateRequest struct {
	CompanyID    uuid.UUID             `json:"company_id"`
	Name         string                `json:"name"`
	Memo         string                `json:"memo"`
	CurrencyCode string                `json:"currency_code"`
	Frequency    string                `json:"frequency"`
	Interval     int                   `json:"interval"`
	StartDate    string                `json:"start_date"`
	EndRule      string                `json:"end_rule"`
	EndAfter     int                   `json:"end_after"`
	EndDate      string                `json:"end_date"`
	Lines        []templateLineRequest `json:"lines"`
}

func (req templateRequest) toDomain() (ledger.RecurringTemplate, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return ledger.RecurringTemplate{}, err
	}
	t := ledger.RecurringTemplate{
		CompanyID:    req.CompanyID,
		Name:         req.Name,
		Memo:         req.Memo,
		CurrencyCode: req.CurrencyCode,
		Frequency:    ledger.Frequency(req.Frequency),
		Interval:     req.Interval,
		StartDate:    start,
		EndRule:      ledger.EndRule(req.EndRule),
		EndAfter:     req.EndAfter,
	}
	if req.EndDate != "" {
		d, err := parseDate(req.EndDate)
		if err != nil {
			return ledger.RecurringTemplate{}, err
		}
		t.EndDate = &d
	}
	for _, l := range req.Lines {
		t.Lines = append(t.Lines, ledger.TemplateLine{
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	return t, nil
}

type templateLineResponse struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type templateResponse struct {
	ID              uuid.UUID              `json:"id"`
	CompanyID       uuid.UUID              `json:"company_id"`
	Name            string                 `json:"name"`
	Memo            string                 `json:"memo,omitempty"`
	CurrencyCode    string                 `json:"currency_code"`
	Frequency       ledger.Frequency       `json:"frequency"`
	Interval        int                    `json:"interval"`
	StartDate       string                 `json:"start_date"`
	EndRule         ledger.EndRule         `json:"end_rule"`
	EndAfter        int                    `json:"end_after,omitempty"`
	EndDate         *string                `json:"end_date,omitempty"`
	Status          ledger.TemplateStatus  `json:"status"`
	NextRunDate     string                 `json:"next_run_date"`
	LastRunDate     *string                `json:"last_run_date,omitempty"`
	OccurrenceCount int                    `json:"occurrence_count"`
	Lines           []templateLineResponse `json:"lines"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func toTemplateResponse(t ledger.RecurringTemplate) templateResponse {
	resp := templateResponse{
		ID:              t.ID,
		CompanyID:       t.CompanyID,
		Name:            t.Name,
		Memo:            t.Memo,
		CurrencyCode:    t.CurrencyCode,
		Frequency:       t.Frequency,
		Interval:        t.Interval,
		StartDate:       t.StartDate.Format(dateLayout),
		EndRule:         t.EndRule,
		EndAfter:        t.EndAfter,
		Status:          t.Status,
		NextRunDate:     t.NextRunDate.Format(dateLayout),
		OccurrenceCount: t.OccurrenceCount,
		Lines:           make([]templateLineResponse, 0, len(t.Lines)),
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.EndDate != nil {
		d := t.EndDate.Format(dateLayout)
		resp.EndDate = &d
	}
	if t.LastRunDate != nil {
		d := t.LastRunDate.Format(dateLayout)
		resp.LastRunDate = &d
	}
	for _, l := range t.Lines {
		resp.Lines = append(resp.Lines, templateLineResponse{
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	return resp
}

// --- allocation rules ---

type destinationRequest struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Percent     decimal.Decimal `json:"percent"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	Sequence    int             `json:"sequence"`
	Active      *bool           `json:"active"`
}

type ruleRequest struct {
	CompanyID    uuid.UUID            `json:"company_id"`
	Name         string               `json:"name"`
	Method       string               `json:"method"`
	Destinations []destinationRequest `json:"destinations"`
}

func (req ruleRequest) toDomain() ledger.AllocationRule {
	r := ledger.AllocationRule{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Method:    ledger.AllocationMethod(req.Method),
	}
	for _, d := range req.Destinations {
		active := true
		if d.Active != nil {
			active = *d.Active
		}
		r.Destinations = append(r.Destinations, ledger.AllocationDestination{
			AccountID:   d.AccountID,
			Percent:     d.Percent,
			FixedAmount: d.FixedAmount,
			Sequence:    d.Sequence,
			Active:      active,
		})
	}
	return r
}

type ruleResponse struct {
	ID           uuid.UUID               `json:"id"`
	CompanyID    uuid.UUID               `json:"company_id"`
	Name         string                  `json:"name"`
	Method       ledger.AllocationMethod `json:"method"`
	Active       bool                    `json:"active"`
	Destinations []destinationResponse   `json:"destinations"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

type destinationResponse struct {
	AccountID   uuid.UUID       `json:"account_id"`
	Percent     decimal.Decimal `json:"percent"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	Sequence    int             `json:"sequence"`
	Active      bool            `json:"active"`
}

func toRuleResponse(r ledger.AllocationRule) ruleResponse {
	resp := ruleResponse{
		ID:           r.ID,
		CompanyID:    r.CompanyID,
		Name:         r.Name,
		Method:       r.Method,
		Active:       r.Active,
		Destinations: make([]destinationResponse, 0, len(r.Destinations)),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	for _, d := range r.Destinations {
		resp.Destinations = append(resp.Destinations, destinationResponse{
			AccountID:   d.AccountID,
			Percent:     d.Percent,
			FixedAmount: d.FixedAmount,
			Sequence:    d.Sequence,
			Active:      d.Active,
		})
	}
	return resp
}

type allocationResponse struct {
	RuleID      uuid.UUID         `json:"rule_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Allocations []allocationSplit `json:"allocations"`
}

type allocationSplit struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}
