package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/corefin/ledger/internal/ledger"
)

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	t, err := req.toDomain()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.deps.Recurring.Create(r.Context(), t)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toTemplateResponse(created))
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	templates, err := s.deps.Recurring.List(r.Context(), companyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, toTemplateResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid template id")
		return
	}
	t, err := s.deps.Recurring.Get(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid template id")
		return
	}
	var req templateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	t, err := req.toDomain()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	t.ID = id
	updated, err := s.deps.Recurring.Update(r.Context(), t)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTemplateResponse(updated))
}

func (s *Server) templateTransition(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, companyID, templateID uuid.UUID) (ledger.RecurringTemplate, error)) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid template id")
		return
	}
	t, err := apply(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toTemplateResponse(t))
}

func (s *Server) pauseTemplate(w http.ResponseWriter, r *http.Request) {
	s.templateTransition(w, r, s.deps.Recurring.Pause)
}

func (s *Server) resumeTemplate(w http.ResponseWriter, r *http.Request) {
	s.templateTransition(w, r, s.deps.Recurring.Resume)
}

func (s *Server) cancelTemplate(w http.ResponseWriter, r *http.Request) {
	s.templateTransition(w, r, s.deps.Recurring.Cancel)
}

func (s *Server) dueTemplates(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		asOf = d
	}
	due, err := s.deps.Recurring.ListDue(r.Context(), asOf)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]templateResponse, 0, len(due))
	for _, t := range due {
		out = append(out, toTemplateResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

// runRecurring triggers one scheduler pass on demand.
func (s *Server) runRecurring(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Recurring.RunOnce(r.Context(), time.Now().UTC())
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, map[string]int{"entries_posted": n})
}
