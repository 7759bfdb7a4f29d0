package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/worklinehq/workline/pkg/schema"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders any error as the structured error envelope. Errors
// without a code become opaque 500s so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	var werr *schema.WorklineError
	if !errors.As(err, &werr) {
		werr = schema.NewError(schema.ErrCodeStore, "internal error")
	}
	writeJSON(w, statusFor(werr.Code), map[string]any{"error": werr})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeUnknownFunction:
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeClaimConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid id %q", raw)
	}
	return id, nil
}
