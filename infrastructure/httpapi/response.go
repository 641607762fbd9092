package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ahrav/go-soilcast/internal/domain"
)

// Error codes returned in ErrorDetail.Code.
const (
	codeInvalidJSON      = "invalid_json"
	codeBodyTooLarge     = "body_too_large"
	codeInvalidInput     = "invalid_input"
	codeSimulationFailed = "simulation_failed"
	codeInternal         = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request or a failed batch item.
type ErrorDetail struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorDetail{
			Code:      codeInternal,
			Message:   "failed to marshal response",
			RequestID: chimw.GetReqID(r.Context()),
		}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError sends detail as the error body, stamped with the request ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, detail ErrorDetail) {
	detail.RequestID = chimw.GetReqID(r.Context())
	writeJSON(w, r, status, ErrorResponse{Error: detail})
}

// classify maps an error to an HTTP status and a client-safe detail. Input
// and simulation errors are the caller's fault; anything unrecognized is
// internal and its message is not exposed.
func classify(err error) (int, ErrorDetail) {
	var (
		verr     *domain.InputValidationError
		simErr   *domain.SimulationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, ErrorDetail{
			Code:    codeInvalidInput,
			Message: "invalid " + verr.Entity,
			Details: verr.Errors,
		}
	case errors.As(err, &simErr):
		return http.StatusUnprocessableEntity, ErrorDetail{Code: codeSimulationFailed, Message: simErr.Error()}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, ErrorDetail{Code: codeBodyTooLarge, Message: "request body too large"}
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest, ErrorDetail{Code: codeInvalidJSON, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Code: codeInternal, Message: "an unexpected error occurred"}
	}
}
