package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/ledger"
	"github.com/corefin/ledger/internal/service/journal"
)

// validateCreateEntry parses the POST /v1/entries body, runs the full entry
// validation through the journal service, and stores the validated domain
// entry in the request context.
func (s *Server) validateCreateEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req entryRequest
			if err := decode(r, &req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			e, err := req.toDomain()
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			if err := s.deps.Entries.Validate(r.Context(), &e); err != nil {
				writeErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyEntry, e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	e, _ := r.Context().Value(ctxKeyEntry).(ledger.JournalEntry)
	created, err := s.deps.Entries.Create(r.Context(), e)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(created))
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	e, err := s.deps.Entries.Get(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	var req entryRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	e, err := req.toDomain()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	e.ID = id
	updated, err := s.deps.Entries.Update(r.Context(), e)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(updated))
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	if err := s.deps.Entries.Delete(r.Context(), companyID, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchEntries translates query parameters into a journal filter.
func (s *Server) searchEntries(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	f := journal.Filter{
		Status:    ledger.EntryStatus(q.Get("status")),
		Reference: q.Get("reference"),
		Memo:      q.Get("memo"),
	}
	if raw := q.Get("date_from"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.DateFrom = &d
	}
	if raw := q.Get("date_to"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.DateTo = &d
	}
	for param, dst := range map[string]*uuid.UUID{
		"account_id":  &f.AccountID,
		"created_by":  &f.CreatedBy,
		"approved_by": &f.ApprovedBy,
	} {
		if raw := q.Get(param); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				badRequest(w, "invalid "+param)
				return
			}
			*dst = id
		}
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	entries, total, err := s.deps.Entries.Search(r.Context(), companyID, f, limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	page := entryPageResponse{
		Entries: make([]entryResponse, 0, len(entries)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, page)
}

type lifecycleRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	UserID    uuid.UUID `json:"user_id"`
	Reason    string    `json:"reason"`
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, companyID, entryID uuid.UUID, req lifecycleRequest) (ledger.JournalEntry, error)) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	var req lifecycleRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	e, err := apply(r.Context(), req.CompanyID, id, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) submitEntry(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(ctx context.Context, companyID, entryID uuid.UUID, req lifecycleRequest) (ledger.JournalEntry, error) {
		return s.deps.Posting.SubmitForApproval(ctx, companyID, entryID, req.UserID)
	})
}

func (s *Server) approveEntry(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(ctx context.Context, companyID, entryID uuid.UUID, req lifecycleRequest) (ledger.JournalEntry, error) {
		return s.deps.Posting.Approve(ctx, companyID, entryID, req.UserID)
	})
}

func (s *Server) rejectEntry(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(ctx context.Context, companyID, entryID uuid.UUID, req lifecycleRequest) (ledger.JournalEntry, error) {
		return s.deps.Posting.Reject(ctx, companyID, entryID, req.UserID, req.Reason)
	})
}

func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(ctx context.Context, companyID, entryID uuid.UUID, req lifecycleRequest) (ledger.JournalEntry, error) {
		return s.deps.Posting.Post(ctx, companyID, entryID, req.UserID)
	})
}

type reverseRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	UserID    uuid.UUID `json:"user_id"`
	Date      string    `json:"date"`
	Reference string    `json:"reference"`
}

func (s *Server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	var req reverseRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		date = d
	}
	e, err := s.deps.Posting.Reverse(r.Context(), req.CompanyID, id, date, req.Reference, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponse(e))
}
