package web

// Shared request parsing used across handlers.

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/danchege/Alchemist/internal/common"
	"github.com/go-chi/chi/v5"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

// sessionID returns the {sessionID} route parameter.
func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return common.InvalidOperation("invalid request body: %v", err)
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
// Values that do not parse fall back to the default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// parseBoolParam reports whether a query parameter is set to a true value.
func parseBoolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
