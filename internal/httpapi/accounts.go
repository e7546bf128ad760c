package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/corefin/ledger/internal/ledger"
)

type ctxKey string

const (
	ctxKeyAccount ctxKey = "validatedAccount"
	ctxKeyEntry   ctxKey = "validatedEntry"
)

// validateCreateAccount parses the POST /v1/accounts body and stores the
// domain account in the request context.
func (s *Server) validateCreateAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req accountRequest
			if err := decode(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			a, err := req.toDomain()
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyAccount, a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	a := accountFromCtx(r)
	created, err := s.deps.Accounts.Create(r.Context(), a)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(created))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	accounts, err := s.deps.Accounts.List(r.Context(), companyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) accountTree(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	roots, err := s.deps.Accounts.Tree(r.Context(), companyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTreeResponse(roots))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	a, err := s.deps.Accounts.Get(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	var req accountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	a, err := req.toDomain()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	a.ID = id
	// Fields the update endpoint never changes travel from the stored row.
	current, err := s.deps.Accounts.Get(r.Context(), a.CompanyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	a.Status = current.Status
	a.System = current.System
	updated, err := s.deps.Accounts.Update(r.Context(), a)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(updated))
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	if err := s.deps.Accounts.Delete(r.Context(), companyID, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) accountBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		asOf = &d
	}
	includeChildren := r.URL.Query().Get("include_children") == "true"
	rep, err := s.deps.Accounts.Balance(r.Context(), companyID, id, asOf, includeChildren)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, rep)
}

func accountFromCtx(r *http.Request) ledger.Account {
	a, _ := r.Context().Value(ctxKeyAccount).(ledger.Account)
	return a
}
