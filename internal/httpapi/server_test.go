package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corefin/ledger/internal/config"
	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/account"
	"github.com/corefin/ledger/internal/service/allocation"
	"github.com/corefin/ledger/internal/service/journal"
	"github.com/corefin/ledger/internal/service/period"
	"github.com/corefin/ledger/internal/service/posting"
	"github.com/corefin/ledger/internal/service/recurring"
	"github.com/corefin/ledger/internal/service/report"
	"github.com/corefin/ledger/internal/storage/memory"
)

type testServer struct {
	handler   http.Handler
	store     *memory.Store
	companyID uuid.UUID
	userID    uuid.UUID
	cash      ledger.Account
	revenue   ledger.Account
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := memory.New()
	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	companyID := uuid.New()

	mk := func(code string, c ledger.Classification) ledger.Account {
		a := ledger.Account{
			ID:             uuid.New(),
			CompanyID:      companyID,
			Code:           code,
			Name:           "Account " + code,
			Classification: c,
			Status:         ledger.AccountStatusActive,
			CurrencyCode:   "USD",
		}
		store.SeedAccount(a)
		return a
	}
	cash := mk("1000", ledger.ClassificationAsset)
	revenue := mk("4000", ledger.ClassificationRevenue)

	periods := period.New(store, store)
	entries := journal.New(store, store, periods, cfg)
	poster := posting.New(store, cfg)
	srv := New(Deps{
		Accounts:     account.New(store, store, cfg),
		Periods:      periods,
		Entries:      entries,
		Posting:      poster,
		Reports:      report.New(store, cfg),
		Recurring:    recurring.New(store, store, entries, poster, cfg, logger),
		Allocations:  allocation.New(store, store, cfg),
		RebuildStore: store,
	}, cfg, logger)
	return testServer{
		handler:   srv.Handler(),
		store:     store,
		companyID: companyID,
		userID:    uuid.New(),
		cash:      cash,
		revenue:   revenue,
	}
}

func (ts testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (ts testServer) openPeriod(t *testing.T, name, start, end string) periodResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/periods", openPeriodRequest{
		CompanyID: ts.companyID,
		Name:      name,
		StartDate: start,
		EndDate:   end,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open period: %d %s", rec.Code, rec.Body.String())
	}
	var p periodResponse
	decodeInto(t, rec, &p)
	return p
}

func (ts testServer) entryBody(amount string) entryRequest {
	return entryRequest{
		CompanyID: ts.companyID,
		Date:      "2025-01-15",
		Memo:      "January sale",
		CreatedBy: ts.userID,
		Lines: []entryLineRequest{
			{AccountID: ts.cash.ID, Debit: decimal.RequireFromString(amount)},
			{AccountID: ts.revenue.ID, Credit: decimal.RequireFromString(amount)},
		},
	}
}

func TestResolvePeriodEndpoint(t *testing.T) {
	ts := newTestServer(t)
	opened := ts.openPeriod(t, "January 2025", "2025-01-01", "2025-01-31")

	rec := ts.do(t, http.MethodGet,
		"/v1/periods/resolve?company_id="+ts.companyID.String()+"&date=2025-01-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", rec.Code, rec.Body.String())
	}
	var p periodResponse
	decodeInto(t, rec, &p)
	if p.ID != opened.ID || p.Name != "January 2025" {
		t.Fatalf("resolved %+v", p)
	}

	rec = ts.do(t, http.MethodGet,
		"/v1/periods/resolve?company_id="+ts.companyID.String()+"&date=2025-06-15", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("uncovered date: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAccountEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/accounts", accountRequest{
		CompanyID:      ts.companyID,
		Code:           "5100 ",
		Name:           "Rent Expense",
		Classification: "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rec.Code, rec.Body.String())
	}
	var created accountResponse
	decodeInto(t, rec, &created)
	if created.Code != "5100" || created.NormalSide != ledger.SideDebit {
		t.Fatalf("account response %+v", created)
	}

	// Duplicate code within the company conflicts.
	rec = ts.do(t, http.MethodPost, "/v1/accounts", accountRequest{
		CompanyID:      ts.companyID,
		Code:           "5100",
		Name:           "Rent Again",
		Classification: "expense",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate code: %d %s", rec.Code, rec.Body.String())
	}
	var er errorResponse
	decodeInto(t, rec, &er)
	if er.Code != "BUSINESS_RULE" {
		t.Fatalf("error code %q", er.Code)
	}

	// Malformed JSON is a 400 before the service sees it.
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	ts.handler.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("bad body: %d", raw.Code)
	}
}

func TestEntryLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("150.00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry: %d %s", rec.Code, rec.Body.String())
	}
	var created entryResponse
	decodeInto(t, rec, &created)
	if created.EntryNumber != "JE-202501-0001" || created.Status != ledger.EntryStatusDraft {
		t.Fatalf("entry response %+v", created)
	}

	rec = ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/post", lifecycleRequest{
		CompanyID: ts.companyID,
		UserID:    ts.userID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("post entry: %d %s", rec.Code, rec.Body.String())
	}
	var posted entryResponse
	decodeInto(t, rec, &posted)
	if posted.Status != ledger.EntryStatusPosted || posted.PostedAt == nil {
		t.Fatalf("posted response %+v", posted)
	}

	rec = ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/reverse", reverseRequest{
		CompanyID: ts.companyID,
		UserID:    ts.userID,
		Date:      "2025-01-20",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reverse entry: %d %s", rec.Code, rec.Body.String())
	}
	var reversal entryResponse
	decodeInto(t, rec, &reversal)
	if !reversal.Reversing || reversal.ReversedEntryID == nil || *reversal.ReversedEntryID != created.ID {
		t.Fatalf("reversal response %+v", reversal)
	}
}

// metricValue scrapes /metrics and returns the current value of a single
// counter, or zero when the series has not been exposed yet.
func (ts testServer) metricValue(t *testing.T, name string) float64 {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, name+" ") {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, name+" "), 64)
			if err != nil {
				t.Fatalf("parse metric line %q: %v", line, err)
			}
			return v
		}
	}
	return 0
}

func TestRejectEntryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("75.00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry: %d %s", rec.Code, rec.Body.String())
	}
	var created entryResponse
	decodeInto(t, rec, &created)

	if rec := ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/submit", lifecycleRequest{
		CompanyID: ts.companyID, UserID: ts.userID,
	}); rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}

	before := ts.metricValue(t, "ledger_entries_rejected_total")
	rec = ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/reject", lifecycleRequest{
		CompanyID: ts.companyID, UserID: ts.userID, Reason: "missing receipt",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", rec.Code, rec.Body.String())
	}
	var rejected entryResponse
	decodeInto(t, rec, &rejected)
	if rejected.Status != ledger.EntryStatusDraft || rejected.RejectReason != "missing receipt" {
		t.Fatalf("rejected response %+v", rejected)
	}
	if after := ts.metricValue(t, "ledger_entries_rejected_total"); after != before+1 {
		t.Fatalf("rejected counter went %v to %v", before, after)
	}
}

func TestCreateEntryRejectsUnbalanced(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	body := ts.entryBody("150.00")
	body.Lines[1].Credit = decimal.RequireFromString("140.00")
	rec := ts.do(t, http.MethodPost, "/v1/entries", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unbalanced entry: %d %s", rec.Code, rec.Body.String())
	}
	var er errorResponse
	decodeInto(t, rec, &er)
	if er.Code != "UNBALANCED_ENTRY" {
		t.Fatalf("error code %q", er.Code)
	}
}

func TestSearchEntriesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	if rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("10.00")); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("20.00")); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/v1/entries?company_id="+ts.companyID.String()+"&limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d %s", rec.Code, rec.Body.String())
	}
	var page entryPageResponse
	decodeInto(t, rec, &page)
	if page.Total != 2 || len(page.Entries) != 1 || page.Limit != 1 {
		t.Fatalf("page %+v", page)
	}

	// company_id is mandatory on list endpoints.
	if rec := ts.do(t, http.MethodGet, "/v1/entries", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing company_id: %d", rec.Code)
	}
}

func TestTrialBalanceEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("250.00"))
	var created entryResponse
	decodeInto(t, rec, &created)
	if rec := ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/post", lifecycleRequest{
		CompanyID: ts.companyID, UserID: ts.userID,
	}); rec.Code != http.StatusOK {
		t.Fatalf("post: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet,
		"/v1/reports/trial-balance?company_id="+ts.companyID.String()+"&as_of=2025-01-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trial balance: %d %s", rec.Code, rec.Body.String())
	}
	var tb report.TrialBalance
	decodeInto(t, rec, &tb)
	if !tb.Balanced || len(tb.Rows) != 2 {
		t.Fatalf("trial balance %+v", tb)
	}
	if !tb.TotalDebit.Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("total debit %s", tb.TotalDebit)
	}
}

func TestAllocationEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/allocations", ruleRequest{
		CompanyID: ts.companyID,
		Name:      "Overhead",
		Method:    "percentage",
		Destinations: []destinationRequest{
			{AccountID: ts.cash.ID, Percent: decimal.RequireFromString("60"), Sequence: 1},
			{AccountID: ts.revenue.ID, Percent: decimal.RequireFromString("40"), Sequence: 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rec.Code, rec.Body.String())
	}
	var rule ruleResponse
	decodeInto(t, rec, &rule)

	rec = ts.do(t, http.MethodPost,
		"/v1/allocations/"+rule.ID.String()+"/apply?company_id="+ts.companyID.String(),
		map[string]string{"amount": "1000.00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("apply rule: %d %s", rec.Code, rec.Body.String())
	}
	var out allocationResponse
	decodeInto(t, rec, &out)
	if len(out.Allocations) != 2 {
		t.Fatalf("allocation response %+v", out)
	}
	if !out.Allocations[0].Amount.Equal(decimal.RequireFromString("600.00")) ||
		!out.Allocations[1].Amount.Equal(decimal.RequireFromString("400.00")) {
		t.Fatalf("splits %s / %s", out.Allocations[0].Amount, out.Allocations[1].Amount)
	}
}

func TestRecurringEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/v1/recurring", templateRequest{
		CompanyID: ts.companyID,
		Name:      "Monthly close",
		Frequency: "monthly",
		StartDate: "2025-01-01",
		Lines: []templateLineRequest{
			{AccountID: ts.cash.ID, Debit: decimal.RequireFromString("100.00")},
			{AccountID: ts.revenue.ID, Credit: decimal.RequireFromString("100.00")},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template: %d %s", rec.Code, rec.Body.String())
	}
	var tmpl templateResponse
	decodeInto(t, rec, &tmpl)
	if tmpl.Status != ledger.TemplateStatusActive || tmpl.NextRunDate != "2025-01-01" {
		t.Fatalf("template response %+v", tmpl)
	}

	rec = ts.do(t, http.MethodPost,
		"/v1/recurring/"+tmpl.ID.String()+"/pause?company_id="+ts.companyID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause: %d %s", rec.Code, rec.Body.String())
	}
	var paused templateResponse
	decodeInto(t, rec, &paused)
	if paused.Status != ledger.TemplateStatusPaused {
		t.Fatalf("status %s", paused.Status)
	}
}

func TestRebuildBalancesEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.openPeriod(t, "", "2025-01-01", "2025-01-31")

	rec := ts.do(t, http.MethodPost, "/v1/entries", ts.entryBody("50.00"))
	var created entryResponse
	decodeInto(t, rec, &created)
	if rec := ts.do(t, http.MethodPost, "/v1/entries/"+created.ID.String()+"/post", lifecycleRequest{
		CompanyID: ts.companyID, UserID: ts.userID,
	}); rec.Code != http.StatusOK {
		t.Fatalf("post: %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/admin/rebuild-balances", rebuildRequest{CompanyID: ts.companyID})
	if rec.Code != http.StatusOK {
		t.Fatalf("rebuild: %d %s", rec.Code, rec.Body.String())
	}
	var out map[string]int
	decodeInto(t, rec, &out)
	if out["accounts_rebuilt"] != 2 {
		t.Fatalf("rebuilt %d accounts", out["accounts_rebuilt"])
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	// No Readier wired means the service is always ready.
	rec = ts.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
