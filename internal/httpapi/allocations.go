package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"
)

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	created, err := s.deps.Allocations.Create(r.Context(), req.toDomain())
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	rules, err := s.deps.Allocations.List(r.Context(), companyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid rule id")
		return
	}
	rule, err := s.deps.Allocations.Get(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid rule id")
		return
	}
	var req ruleRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rule := req.toDomain()
	rule.ID = id
	updated, err := s.deps.Allocations.Update(r.Context(), rule)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toRuleResponse(updated))
}

func (s *Server) applyRule(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid rule id")
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	splits, err := s.deps.Allocations.Apply(r.Context(), companyID, id, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := allocationResponse{RuleID: id, Amount: req.Amount}
	for _, sp := range splits {
		resp.Allocations = append(resp.Allocations, allocationSplit{AccountID: sp.AccountID, Amount: sp.Amount})
	}
	toJSON(w, http.StatusOK, resp)
}
