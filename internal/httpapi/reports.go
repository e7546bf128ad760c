package httpapi

import (
	"net/http"
	"time"
)

// reportRange parses start/end query params, both required.
func reportRange(r *http.Request) (time.Time, time.Time, error) {
	start, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(r.URL.Query().Get("end"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// asOfOrToday parses the optional as_of query param, defaulting to today.
func asOfOrToday(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return parseDate(raw)
}

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	asOf, err := asOfOrToday(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	includeZero := r.URL.Query().Get("include_zero") == "true"
	tb, err := s.deps.Reports.TrialBalance(r.Context(), companyID, asOf, includeZero)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, tb)
}

func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	asOf, err := asOfOrToday(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	bs, err := s.deps.Reports.BalanceSheet(r.Context(), companyID, asOf)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, bs)
}

func (s *Server) incomeStatement(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	start, end, err := reportRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	is, err := s.deps.Reports.IncomeStatement(r.Context(), companyID, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, is)
}

func (s *Server) cashFlow(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	start, end, err := reportRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	cf, err := s.deps.Reports.CashFlow(r.Context(), companyID, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, cf)
}
