// Package httpapi provides JSON request/response helpers shared by the
// HTTP handlers. Error bodies are flat: {"error": code, ...fields}.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes used across the API surface.
const (
	ErrInvalidRequest = "invalid_request"
	ErrMissingColumns = "missing_columns"
	ErrParse          = "parse_error"
	ErrNotFound       = "not_found"
	ErrUnknownTask    = "unknown_task"
	ErrInternal       = "internal_error"
)

// WriteJSON writes v as a JSON response with proper headers.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a flat error body carrying the code plus any extra fields.
func WriteError(w http.ResponseWriter, status int, code string, fields map[string]any) {
	body := map[string]any{"error": code}
	for k, v := range fields {
		body[k] = v
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
