package httpapi

import (
	"net/http"

	"github.com/corefin/ledger/internal/errs"
)

// errorResponse is the uniform error body: a human message plus the
// machine-readable code.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeErr maps a service error to its HTTP status by sentinel code.
func writeErr(w http.ResponseWriter, err error) {
	code := errs.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "VALIDATION", "UNBALANCED_ENTRY", "ALLOCATION_MISMATCH":
		status = http.StatusUnprocessableEntity
	case "BUSINESS_RULE", "PERIOD_CLOSED", "ACCOUNT_INACTIVE",
		"DUPLICATE_ENTRY_NUMBER", "INVALID_STATE", "CONCURRENT_MODIFICATION":
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) {
	toJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "VALIDATION"})
}
