package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/weblinq/gateway/internal/gatewayerr"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode gateway response")
	}
}

// validationError writes the HTTP 422 structured error spec.md §4.8 names
// for request schema mismatches.
func validationError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": message})
}

// gatewayError maps a *gatewayerr.Error raised outside an operation
// envelope (auth, credit, sessions-exhausted) to its HTTP status, per
// spec.md §7.
func gatewayError(w http.ResponseWriter, err error) {
	ge, ok := gatewayerr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ge.Kind == gatewayerr.KindSessionsExhausted && ge.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(ge.RetryAfter.Seconds())))
	}
	writeJSON(w, ge.HTTPStatus(), map[string]string{"error": ge.Message})
}
