package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

func TestNew(t *testing.T) {
	p, err := New(provider.Config{Model: "gpt-4o-mini", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if p.Name() != ProviderName {
		t.Errorf("Name = %q, want %q", p.Name(), ProviderName)
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New(provider.Config{APIKey: "test-key"}); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestNewTrimsBaseURL(t *testing.T) {
	p, err := NewWithInfo(provider.Config{Model: "m", BaseURL: "http://example.com/v1/"}, Info{Name: "x"})
	if err != nil {
		t.Fatalf("NewWithInfo returned error: %v", err)
	}
	if p.baseURL != "http://example.com/v1" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", p.baseURL)
	}
}

func TestComplete(t *testing.T) {
	var gotReq chatRequest
	var gotAuth, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"FINAL ANSWER: 42"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	p, err := New(provider.Config{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxTokens:  256,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	text, err := p.Complete(context.Background(), "What is 6*7?")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if text != "FINAL ANSWER: 42" {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 256 {
		t.Errorf("max_tokens = %d", gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" || gotReq.Messages[0].Content != "What is 6*7?" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
}

func TestCompleteNoAuthHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	p, err := NewWithInfo(
		provider.Config{Model: "m", APIKey: "ignored", BaseURL: server.URL, HTTPClient: server.Client()},
		Info{Name: "local"},
	)
	if err != nil {
		t.Fatalf("NewWithInfo returned error: %v", err)
	}
	if _, err := p.Complete(context.Background(), "hi"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if sawAuth {
		t.Error("auth header sent despite empty AuthHeader in Info")
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	p, _ := New(provider.Config{Model: "m", BaseURL: server.URL, HTTPClient: server.Client()})
	if _, err := p.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty choices")
	} else if !strings.Contains(err.Error(), "no choices") {
		t.Errorf("error = %v", err)
	}
}

func TestCompleteErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  string
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, svcerrors.TypeAuthentication, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, svcerrors.TypeRateLimit, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, svcerrors.TypeInvalidRequest, false},
		{"not found", http.StatusNotFound, `{"error":{"message":"no such model"}}`, svcerrors.TypeInvalidRequest, false},
		{"gateway timeout", http.StatusGatewayTimeout, `{"error":{"message":"late"}}`, svcerrors.TypeTimeout, true},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, svcerrors.TypeServiceUnavailable, true},
		{"unparseable body", http.StatusBadGateway, `not json`, svcerrors.TypeServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p, _ := New(provider.Config{Model: "m", BaseURL: server.URL, HTTPClient: server.Client()})
			_, err := p.Complete(context.Background(), "hi")
			if err == nil {
				t.Fatal("expected error")
			}
			if !svcerrors.IsType(err, tt.wantType) {
				t.Errorf("error type: got %v, want %s", err, tt.wantType)
			}
			if svcerrors.IsRetryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", svcerrors.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestCompleteConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	p, _ := New(provider.Config{Model: "m", BaseURL: server.URL})
	_, err := p.Complete(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if !svcerrors.IsType(err, svcerrors.TypeServiceUnavailable) {
		t.Errorf("error type: got %v, want service unavailable", err)
	}
	if !svcerrors.IsRetryable(err) {
		t.Error("connection failure should be retryable")
	}
}

func TestEmbed(t *testing.T) {
	var gotReq embeddingRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer server.Close()

	p, _ := New(provider.Config{
		Model:          "m",
		EmbeddingModel: "text-embedding-3-small",
		BaseURL:        server.URL,
		HTTPClient:     server.Client(),
	})
	emb, ok := p.(provider.Embedder)
	if !ok {
		t.Fatal("openai provider should implement Embedder")
	}

	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d", len(vec))
	}
	if gotReq.Model != "text-embedding-3-small" {
		t.Errorf("embedding model = %q", gotReq.Model)
	}
	if len(gotReq.Input) != 1 || gotReq.Input[0] != "hello" {
		t.Errorf("input = %v", gotReq.Input)
	}
}

func TestEmbedRequiresEmbeddingModel(t *testing.T) {
	p, _ := New(provider.Config{Model: "m"})
	if _, err := p.(provider.Embedder).Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing embedding model")
	}
}
