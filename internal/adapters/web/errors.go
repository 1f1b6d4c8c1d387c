package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"boxcard-ledger/internal/app"
	"boxcard-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorBody(w, status, errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	})
}

func writeErrorBody(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps ledger error kinds onto HTTP statuses. Anything without a
// kind is an infrastructure failure and its message is not echoed to the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), RequestID: requestIDFromContext(r.Context())}
	var status int

	var ce *core.Error
	switch {
	case errors.As(err, &ce):
		resp.Remaining = ce.Remaining
		switch ce.Kind {
		case core.KindValidation:
			status, resp.Code = http.StatusBadRequest, "VALIDATION_ERROR"
		case core.KindConflict:
			status, resp.Code = http.StatusConflict, "CONFLICT"
		case core.KindNotFound:
			status, resp.Code = http.StatusNotFound, "NOT_FOUND"
		case core.KindInvariant:
			status, resp.Code = http.StatusUnprocessableEntity, "INVARIANT_VIOLATION"
		default:
			status, resp.Code = http.StatusInternalServerError, "INTERNAL_ERROR"
		}
	case errors.Is(err, app.ErrInvalidCredentials):
		status, resp.Code = http.StatusUnauthorized, "UNAUTHORIZED"
	default:
		h.log.Error("Request failed", "path", r.URL.Path, "request_id", resp.RequestID, "error", err)
		status, resp.Code, resp.Error = http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
	writeErrorBody(w, status, resp)
}
