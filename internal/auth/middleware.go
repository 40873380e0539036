package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flightqa/flightqa/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// StreamKeyParam carries the API key on GET /v1/stream, where browser
// EventSource clients cannot set request headers.
const StreamKeyParam = "api_key"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the caller from X-API-Key, a bearer token, or the
// api_key query parameter on the stream endpoint.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, source := credential(r)
			if key == "" {
				reject(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing_key", "missing API key")
				return
			}

			identity, ok := validator.Validate(ctx, key)
			if !ok {
				logger.WarnContext(ctx, "api_key_rejected",
					slog.String("trace_id", observability.TraceIDFromContext(ctx)),
					slog.String("path", r.URL.Path),
					slog.String("source", source),
				)
				reject(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid_key", "invalid API key")
				return
			}

			logger.DebugContext(ctx, "api_key_accepted",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("client_id", identity.ClientID),
				slog.String("source", source),
			)
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// credential returns the presented key and where it came from.
func credential(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "header"
	}
	if token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer "); ok {
		if token = strings.TrimSpace(token); token != "" {
			return token, "bearer"
		}
	}
	if r.Method == http.MethodGet && r.URL.Path == "/v1/stream" {
		if key := strings.TrimSpace(r.URL.Query().Get(StreamKeyParam)); key != "" {
			return key, "query"
		}
	}
	return "", ""
}

// RequireRole rejects authenticated callers lacking role. Requests without
// an identity pass, since auth may be disabled.
func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok && !identity.HasRole(role) {
			reject(w, r, http.StatusForbidden, "FORBIDDEN", "missing_role", fmt.Sprintf("missing required role %q", role))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func reject(w http.ResponseWriter, r *http.Request, status int, code, reason, message string) {
	observability.IncrementAuthRejection(reason)
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="flightqa"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
