package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hongminglow/userhub/internal/storage"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

// StoreError maps an access-layer failure to its status. Validation messages
// are echoed; everything else gets a fixed message so causes do not leak.
func StoreError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch storage.KindOf(err) {
	case storage.KindValidation:
		var e *storage.Error
		if errors.As(err, &e) && e.Err != nil {
			Error(w, status, e.Err.Error())
			return
		}
		Error(w, status, "invalid input")
	case storage.KindConflict:
		Error(w, status, "user already exists")
	case storage.KindNotFound:
		Error(w, status, "user not found")
	case storage.KindResourceExhausted:
		Error(w, status, "service temporarily unavailable")
	default:
		Error(w, status, "internal error")
	}
}

// StatusFor returns the HTTP status for err's kind.
func StatusFor(err error) int {
	switch storage.KindOf(err) {
	case storage.KindValidation:
		return http.StatusBadRequest
	case storage.KindConflict:
		return http.StatusConflict
	case storage.KindNotFound:
		return http.StatusNotFound
	case storage.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(payload)
}
