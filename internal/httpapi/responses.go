package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/miche1696/kefi-notetaker/internal/kfid"
	"github.com/rs/zerolog/log"
)

// errorResponse is the standardized error body, carrying the kind so a
// client can switch on it without string-matching the message.
type errorResponse struct {
	Error         string `json:"error"`
	Kind          string `json:"kind,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode json response")
	}
}

// statusFor maps a kfid.Error Kind to its HTTP surface code (spec.md §7).
func statusFor(kind kfid.Kind) int {
	switch kind {
	case kfid.KindNotFound:
		return http.StatusNotFound
	case kfid.KindRevisionConflict:
		return http.StatusConflict
	case kfid.KindQueueFull:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders err as the appropriate HTTP status, unwrapping a
// *kfid.Error for its kind and any revision-conflict payload.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var kerr *kfid.Error
	code := http.StatusInternalServerError
	kind := ""
	if errors.As(err, &kerr) {
		code = statusFor(kerr.Kind)
		kind = string(kerr.Kind)
	}
	writeJSON(w, code, errorResponse{
		Error:         err.Error(),
		Kind:          kind,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}
