package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kitchenops/sessionbridge/internal/autherr"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// AuthError maps the auth-core error taxonomy onto HTTP responses. Messages
// stay generic; the detailed cause is for logs, not clients.
func AuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, autherr.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
	case errors.Is(err, autherr.ErrSignedOut):
		Error(w, r, http.StatusUnauthorized, "NOT_AUTHENTICATED", "not signed in", nil)
	case autherr.IsKind(err, autherr.KindStorage), autherr.IsKind(err, autherr.KindToken):
		Error(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "session storage is unavailable", nil)
	case autherr.IsKind(err, autherr.KindSession):
		Error(w, r, http.StatusUnauthorized, "SESSION_INVALID", "session is no longer valid", nil)
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
