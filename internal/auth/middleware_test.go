package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:policy_admin|flight_reader, k2:mcp:flight_reader")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.ClientID != "web" {
		t.Fatalf("ClientID = %q", identity.ClientID)
	}
	if !identity.HasRole(RoleFlightReader) || !identity.HasRole(RolePolicyAdmin) {
		t.Fatalf("Roles = %v", identity.Roles)
	}
	if identity.Roles[0] != RoleFlightReader {
		t.Fatalf("roles are not sorted: %v", identity.Roles)
	}
	if _, ok := validator.Validate(context.Background(), "k3"); ok {
		t.Fatal("unknown key accepted")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"invalid", "k1::flight_reader", "k1:web:", "k1:a:flight_reader,k1:b:flight_reader"} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("expected parse error for %q", spec)
		}
	}
	validator, err := NewStaticAPIKeyValidator("  ")
	if err != nil {
		t.Fatalf("empty spec error = %v", err)
	}
	if _, ok := validator.Validate(context.Background(), ""); ok {
		t.Fatal("empty validator accepted a key")
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:flight_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for name, header := range map[string]string{"missing": "", "invalid": "Bearer nope"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want %d", name, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:flight_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(nil, validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.ClientID != "web" {
			t.Fatalf("ClientID = %q", identity.ClientID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-API-Key", "k1") },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer k1") },
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/stream", nil)
		set(req)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rr.Code)
		}
	}
}

func TestMiddlewareStreamQueryKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:browser:flight_reader")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}
	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		method string
		target string
		want   int
	}{
		{method: http.MethodGet, target: "/v1/stream?question=x&api_key=k1", want: http.StatusNoContent},
		{method: http.MethodGet, target: "/v1/stream?question=x&api_key=nope", want: http.StatusUnauthorized},
		{method: http.MethodGet, target: "/v1/airlines?api_key=k1", want: http.StatusUnauthorized},
		{method: http.MethodPost, target: "/v1/query?api_key=k1", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.target, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s %s: status = %d, want %d", tc.method, tc.target, rr.Code, tc.want)
		}
		if tc.want == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%s %s: missing WWW-Authenticate header", tc.method, tc.target)
		}
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RolePolicyAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name     string
		identity *Identity
		want     int
	}{
		{name: "auth disabled", want: http.StatusNoContent},
		{name: "has role", identity: &Identity{ClientID: "ops", Roles: []string{RolePolicyAdmin}}, want: http.StatusNoContent},
		{name: "missing role", identity: &Identity{ClientID: "web", Roles: []string{RoleFlightReader}}, want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/policies/indigo_policy.txt", nil)
			if tc.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tc.identity))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
