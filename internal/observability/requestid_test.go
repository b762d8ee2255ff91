package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	if a == "" || b == "" {
		t.Fatal("empty request id")
	}
	if a == b {
		t.Error("request ids should be unique")
	}
	if len(a) != 32 {
		t.Errorf("len = %d, want 32 hex chars", len(a))
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
}

func TestRequestIDMiddlewareAssigns(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Error("middleware did not assign a request id")
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Error("response header does not match context value")
	}
}

func TestRequestIDMiddlewarePropagates(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-supplied.id-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "client-supplied.id-1" {
		t.Errorf("seen = %q, want client value", seen)
	}
}

func TestRequestIDMiddlewareRejectsInvalid(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "" || seen == "bad id with spaces\n" {
		t.Errorf("invalid header should be replaced, got %q", seen)
	}
}

func TestGetOrCreateRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "existing")
	_, id := GetOrCreateRequestID(ctx)
	if id != "existing" {
		t.Errorf("id = %q, want existing", id)
	}

	ctx2, id2 := GetOrCreateRequestID(context.Background())
	if id2 == "" {
		t.Error("expected generated id")
	}
	if RequestIDFromContext(ctx2) != id2 {
		t.Error("generated id not stored in context")
	}
}
