// Package httputil writes the uniform API envelope {success, message, data}.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "refroute/pkg/domain-errors"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteJSON writes a successful envelope.
func WriteJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: true, Message: message, Data: data})
}

// WriteError translates a domain error into an envelope and status code.
// Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.HTTPStatus(code)

	message := "internal error"
	if de, ok := dErrors.As(err); ok && status != http.StatusInternalServerError {
		message = de.Message
		if message == "" {
			message = de.Error()
		}
	}
	if dErrors.Retryable(code) && status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Success: false, Message: message, Error: string(code)})
}
