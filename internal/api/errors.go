package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/metrofleet/induction/internal/apperr"
)

// errorResponse is the wire shape for every non-2xx response, mirroring
// §7's InternalError "diagnostic code and correlation id" shape.
type errorResponse struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeAppError maps an apperr.Kind to its HTTP status (§7) and writes
// the structured error body.
func writeAppError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(err, apperr.KindInternal, "unexpected error")
	}
	writeJSON(w, ae.StatusCode(), errorResponse{
		Code:          string(ae.Kind),
		Message:       ae.Message,
		CorrelationID: ae.CorrelationID,
	})
}
