// Package server implements the HTTP API for the comparison-and-rating
// subsystem: pair batches, vote submission, and leaderboard reads.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mc-bench/scoring-core/internal/ctxutil"
	"github.com/mc-bench/scoring-core/internal/identity"
	"github.com/mc-bench/scoring-core/internal/model"
	"github.com/mc-bench/scoring-core/internal/ratelimit"
)

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDFromContext extracts the request ID from the context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// requestIDMiddleware assigns a unique request ID to each request.
// Client-supplied IDs are accepted if they are reasonable length (<=128
// chars) and contain only printable ASCII. Otherwise, a fresh UUID is
// generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !isValidRequestID(reqID) {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with structured fields.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if claims := ctxutil.ClaimsFromContext(r.Context()); claims != nil {
			attrs = append(attrs, "user_id", claims.UserID)
		}

		level := slog.LevelInfo
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

// recoveryMiddleware catches panics in downstream handlers, logs the stack
// trace, and returns a 500 instead of crashing the server.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS preflight requests and sets response headers.
func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Session-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds standard security response headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates an optional bearer JWT and populates the context
// with its claims. Unlike the upstream identity provider's own API, every
// route here is reachable without a token (anonymous voting is a first-class
// path, spec §4.3) — a missing or malformed header is not an error, it
// simply leaves the context bare and handlers fall back to session/
// identification-token identity.
func authMiddleware(jwtMgr *identity.JWTManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, credential, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := jwtMgr.ValidateToken(credential)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid or expired token")
			return
		}
		ctx := ctxutil.WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionOrIPKeyFunc rate-limits by session id when the caller supplied
// one (anonymous voters identify themselves this way), falling back to
// ratelimit.IPKeyFunc otherwise.
func sessionOrIPKeyFunc(r *http.Request) string {
	if key := r.Header.Get("X-Session-ID"); key != "" {
		return key
	}
	return ratelimit.IPKeyFunc(r)
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}); err != nil {
		slog.Warn("failed to encode JSON response", "error", err, "request_id", RequestIDFromContext(r.Context()))
	}
}

// writeError writes a JSON error response with the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message},
		Meta: model.ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}); err != nil {
		slog.Warn("failed to encode JSON error response", "error", err, "request_id", RequestIDFromContext(r.Context()))
	}
}

// decodeJSON decodes a JSON request body into the target struct, rejecting
// unknown fields and bodies over maxBytes.
func decodeJSON(r *http.Request, target any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
