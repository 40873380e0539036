package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flightqa/flightqa/internal/answer"
	"github.com/flightqa/flightqa/internal/auth"
	"github.com/flightqa/flightqa/internal/config"
	"github.com/flightqa/flightqa/internal/policy"
)

// fakeAnswerer replays a fixed event script.
type fakeAnswerer struct {
	events    []answer.Event
	err       error
	questions []string
}

func (f *fakeAnswerer) Stream(_ context.Context, question string, sink answer.Sink) error {
	f.questions = append(f.questions, question)
	for _, event := range f.events {
		if err := sink(event); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string) (answer.Reply, error) {
	var reply answer.Reply
	err := f.Stream(ctx, question, func(event answer.Event) error {
		switch event.Type {
		case answer.EventSQL:
			reply.SQL += event.Content
		case answer.EventAnswer:
			reply.FinalResponse += event.Content
		}
		return nil
	})
	return reply, err
}

func TestHealthEndpoint(t *testing.T) {
	cfg, err := config.Load("flightqa-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace id header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg, err := config.Load("flightqa-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		Readiness: func(rctx context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg, err := config.Load("flightqa-api", mapLookup(map[string]string{
		"FLIGHTQA_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	validator, err := auth.NewStaticAPIKeyValidator("k1:web:flight_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}

	h := NewHandler(cfg, Dependencies{
		AuthMiddleware: auth.Middleware(nil, validator),
		Airlines:       policy.DefaultCatalog(),
	})

	unauthResp := httptest.NewRecorder()
	h.ServeHTTP(unauthResp, httptest.NewRequest(http.MethodGet, "/v1/airlines", nil))
	if unauthResp.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauthResp.Code)
	}

	authReq := httptest.NewRequest(http.MethodGet, "/v1/airlines", nil)
	authReq.Header.Set("X-API-Key", "k1")
	authResp := httptest.NewRecorder()
	h.ServeHTTP(authResp, authReq)
	if authResp.Code != http.StatusOK {
		t.Fatalf("auth status = %d", authResp.Code)
	}

	var body struct {
		Airlines []struct {
			Name      string `json:"name"`
			HasPolicy bool   `json:"has_policy"`
		} `json:"airlines"`
	}
	if err := json.Unmarshal(authResp.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Airlines) != 5 || body.Airlines[0].Name != "IndiGo" || !body.Airlines[0].HasPolicy {
		t.Fatalf("airlines = %+v", body.Airlines)
	}

	forbidden := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	forbidden.Header.Set("X-API-Key", "k1")
	forbiddenResp := httptest.NewRecorder()
	h.ServeHTTP(forbiddenResp, forbidden)
	if forbiddenResp.Code != http.StatusForbidden {
		t.Fatalf("policy admin route status = %d", forbiddenResp.Code)
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	cfg, err := config.Load("flightqa-api", mapLookup(map[string]string{
		"FLIGHTQA_AUTH_REQUIRED": "true",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Answerer: &fakeAnswerer{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stream?question=flights+to+Hanoi", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestReadinessChecks(t *testing.T) {
	if err := CheckDatabase(nil)(context.Background()); err == nil {
		t.Fatal("expected unconfigured database error")
	}
	if err := CheckDatabase(func(context.Context) error { return nil })(context.Background()); err != nil {
		t.Fatalf("CheckDatabase() error = %v", err)
	}

	cfg, err := config.Load("flightqa-api", mapLookup(map[string]string{
		"FLIGHTQA_POLICY_SOURCE":      "s3",
		"FLIGHTQA_OBJECTSTORE_BUCKET": "",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	cfg.Policy.Source = config.PolicySourceLocal
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("local source should not need object store: %v", err)
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
