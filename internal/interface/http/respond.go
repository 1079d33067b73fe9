package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codearena/arena-server/internal/domain/shared"
	"github.com/codearena/arena-server/internal/interface/auth"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the uniform response envelope.
type JSONResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries the machine-readable error code and the human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{Success: true, Data: data})
}

// writeJSONError writes an error envelope with an explicit status and code.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

// writeError maps a domain error onto the HTTP status table.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)

	message := err.Error()
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		message = derr.Message
	}
	if status == http.StatusInternalServerError {
		// Internals stay in the logs, not on the wire.
		message = "An unexpected error occurred"
	}
	writeJSONError(w, status, code, message)
}

// statusFor translates error kinds to status codes and wire error codes.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsConflict(err):
		return http.StatusConflict, "conflict"
	case shared.IsPrecondition(err):
		return http.StatusPreconditionFailed, "precondition_failed"
	case errors.Is(err, shared.ErrStateTransition), errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrAlreadyProcessed), errors.Is(err, shared.ErrExpired):
		return http.StatusConflict, "invalid_state"
	case shared.IsTimeout(err):
		return http.StatusGatewayTimeout, "upstream_timeout"
	case shared.IsDependency(err):
		return http.StatusBadGateway, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "invalid request body", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyIdentity  contextKey = "identity"
)

func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// identityFrom returns the verified caller; the auth middleware guarantees it
// on authed routes.
func identityFrom(ctx context.Context) *auth.Identity {
	if id, ok := ctx.Value(contextKeyIdentity).(*auth.Identity); ok {
		return id
	}
	return &auth.Identity{}
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// generateRequestID generates a unique request ID.
func generateRequestID() string {
	return uuid.NewString()
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getQueryParam extracts a query parameter with a default value.
func getQueryParam(r *http.Request, key, defaultValue string) string {
	if value := r.URL.Query().Get(key); value != "" {
		return value
	}
	return defaultValue
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// uptimeSeconds formats a duration for the health payload.
func uptimeSeconds(d time.Duration) int64 {
	return int64(d.Seconds())
}
