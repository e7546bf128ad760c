package httpapi

import (
	"net/http"

	"github.com/google/uuid"
)

type rebuildRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	// AccountID limits the rebuild to one account when set.
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	// ThroughPeriodID stops the recomputation at that period instead of
	// walking the whole chain.
	ThroughPeriodID *uuid.UUID `json:"through_period_id,omitempty"`
}

// rebuildBalances recomputes balance chains from posted lines. It is the
// recovery path when balance rows are suspected to have drifted.
func (s *Server) rebuildBalances(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.CompanyID == uuid.Nil {
		badRequest(w, "company_id is required")
		return
	}
	ctx := r.Context()

	accounts, err := s.deps.Accounts.List(ctx, req.CompanyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	rebuilt := 0
	for _, acc := range accounts {
		if req.AccountID != nil && acc.ID != *req.AccountID {
			continue
		}
		if err := s.projector.Rebuild(ctx, s.deps.RebuildStore, acc, req.ThroughPeriodID); err != nil {
			writeErr(w, err)
			return
		}
		rebuilt++
	}
	toJSON(w, http.StatusOK, map[string]int{"accounts_rebuilt": rebuilt})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readier != nil {
		if err := s.deps.Readier.Ready(r.Context()); err != nil {
			s.log.Error("readiness check failed", "error", err)
			toJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
