package testserver

import (
	"encoding/json"
	"net/http"
)

// Handlers provides reusable responses in the card service envelope.
type Handlers struct{}

// Envelope returns a handler that responds with a successful envelope around data.
func (Handlers) Envelope(code int, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, code, true, "ok", data)
	}
}

// Failure returns a handler that responds with an unsuccessful envelope.
func (Handlers) Failure(code int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, code, false, message, nil)
	}
}

// Unauthorized returns a handler that rejects the session.
func (Handlers) Unauthorized(detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": detail})
	}
}

func writeEnvelope(w http.ResponseWriter, code int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    data,
	})
}
