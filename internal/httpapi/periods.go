package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) openPeriod(w http.ResponseWriter, r *http.Request) {
	var req openPeriodRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	p, err := s.deps.Periods.Open(r.Context(), req.CompanyID, start, end, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPeriodResponse(p))
}

func (s *Server) listPeriods(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	periods, err := s.deps.Periods.List(r.Context(), companyID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	toJSON(w, http.StatusOK, out)
}

// resolvePeriod answers which period, if any, covers a date.
func (s *Server) resolvePeriod(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	p, ok, err := s.deps.Periods.Resolve(r.Context(), companyID, date)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		toJSON(w, http.StatusNotFound, errorResponse{
			Error: "no period covers " + date.Format(dateLayout),
			Code:  "NOT_FOUND",
		})
		return
	}
	toJSON(w, http.StatusOK, toPeriodResponse(p))
}

func (s *Server) closePeriod(w http.ResponseWriter, r *http.Request) {
	var req closePeriodRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Month < 1 || req.Month > 12 {
		badRequest(w, "month must be 1..12")
		return
	}
	p, err := s.deps.Periods.Close(r.Context(), req.CompanyID, req.Year, time.Month(req.Month), req.ClosedBy)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPeriodResponse(p))
}

func (s *Server) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	id, err := urlID(r)
	if err != nil {
		badRequest(w, "invalid period id")
		return
	}
	p, err := s.deps.Periods.Reopen(r.Context(), companyID, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPeriodResponse(p))
}
