// Package httputil holds the JSON response helpers shared by the HTTP
// handlers.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/banshee-data/crosswalk/internal/monitoring"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("httputil: encode response: %v", err)
	}
}

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// RequireMethod answers 405 and returns false unless r uses one of methods.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// QueryInt parses an optional integer query parameter. Missing values yield
// def; malformed or out-of-range values answer 400 and return false.
func QueryInt(w http.ResponseWriter, r *http.Request, key string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		WriteJSONError(w, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}
