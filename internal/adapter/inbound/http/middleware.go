package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/snipvault/snipvault/internal/ctxkey"
	"github.com/snipvault/snipvault/internal/domain/admission"
	"github.com/snipvault/snipvault/internal/domain/auth"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses shared key type from ctxkey package to allow cross-package access without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// CallerKey is the context key for the resolved caller identity.
var CallerKey = ctxkey.CallerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enrichedLogger := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enrichedLogger)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// CallerMiddleware resolves the caller identity for every request: the client
// IP from proxy headers, and the authenticated user from a bearer token when
// one resolves to a live session. An invalid or expired token degrades the
// caller to guest rather than rejecting the request; per-route handlers decide
// whether authentication is required.
func CallerMiddleware(sessions auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := admission.Caller{IP: extractRealIP(r)}

			if token := bearerToken(r); token != "" && sessions != nil {
				if sess, err := sessions.Get(r.Context(), token); err == nil {
					caller.UserID = sess.UserID
					caller.Email = sess.Email
				}
			}

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext retrieves the resolved caller from context.
// Returns a caller with the unknown IP if none was stored.
func CallerFromContext(ctx context.Context) admission.Caller {
	if caller, ok := ctx.Value(CallerKey).(admission.Caller); ok {
		return caller
	}
	return admission.Caller{IP: admission.UnknownIP}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// extractRealIP extracts the client's real IP address from the request.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy support),
// falling back to r.RemoteAddr. Only the first IP in X-Forwarded-For is
// trusted to avoid spoofing. Returns admission.UnknownIP when no source
// yields an address, so such requests share one conservative quota bucket.
func extractRealIP(r *http.Request) string {
	// X-Forwarded-For: client, proxy1, proxy2 — trust only the first entry.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	// X-Real-IP (nginx-style header)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is in "host:port" format, extract host
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			return addr
		}
		return admission.UnknownIP
	}
	if host == "" {
		return admission.UnknownIP
	}
	return host
}
