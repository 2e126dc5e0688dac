// Package logging provides the process logger and request-scoped logging context.
package logging

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey contextKey = "requestId"
	loggerKey    contextKey = "logger"

	// RequestIDHeader is read from inbound requests and echoed on responses.
	RequestIDHeader = "X-Request-ID"
)

// GenerateRequestID creates an 8-character hex request ID.
func GenerateRequestID() string {
	id := uuid.New()
	return id.String()[:8]
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Middleware tags every request with a request ID and a scoped logger.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithRequestID(r.Context(), requestID)
		ctx = ToContext(ctx, L().With(zap.String("request_id", requestID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
