package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flightqa/flightqa/internal/answer"
	"github.com/flightqa/flightqa/internal/auth"
	"github.com/flightqa/flightqa/internal/config"
	"github.com/flightqa/flightqa/internal/observability"
	"github.com/flightqa/flightqa/internal/policy"
	"github.com/flightqa/flightqa/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// Answerer runs the question pipeline.
type Answerer interface {
	Stream(ctx context.Context, question string, sink answer.Sink) error
	Answer(ctx context.Context, question string) (answer.Reply, error)
}

type AirlineDirectory interface {
	Airlines() []policy.Airline
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Answerer          Answerer
	Airlines          AirlineDirectory
	PolicyStore       storage.ObjectStore
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.Handle("GET /v1/stream", auth.RequireRole(auth.RoleFlightReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleStream(deps, w, r)
	})))
	protected.Handle("POST /v1/query", auth.RequireRole(auth.RoleFlightReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})))
	protected.Handle("GET /v1/airlines", auth.RequireRole(auth.RoleFlightReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListAirlines(deps, w, r)
	})))
	protected.Handle("GET /v1/policies", auth.RequireRole(auth.RolePolicyAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListPolicies(deps, w, r)
	})))
	protected.Handle("PUT /v1/policies/{file}", auth.RequireRole(auth.RolePolicyAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlePutPolicy(deps, w, r)
	})))

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/stream", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/airlines", protectedHandler)
	mux.Handle("GET /v1/policies", protectedHandler)
	mux.Handle("PUT /v1/policies/{file}", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatabase pings the flight database.
func CheckDatabase(ping func(ctx context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ping == nil {
			return errors.New("flight database is not configured")
		}
		return ping(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Policy.Source != config.PolicySourceS3 {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
