// Package openai implements the OpenAI provider adapter. It doubles as the
// shared implementation for OpenAI-compatible endpoints; other adapters
// delegate here with their own Info.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "openai"

	// DefaultBaseURL is the default OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Info parameterizes the adapter for OpenAI-compatible vendors.
type Info struct {
	Name           string
	DefaultBaseURL string
	// AuthHeader is the header carrying the API key. Empty disables auth.
	AuthHeader string
	// AuthScheme prefixes the key, e.g. "Bearer".
	AuthScheme string
}

// Provider implements the OpenAI chat-completions adapter.
type Provider struct {
	info           Info
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	maxTokens      int
	temperature    *float64
	client         *http.Client
}

// New creates a new OpenAI provider instance.
func New(cfg provider.Config) (provider.Provider, error) {
	return NewWithInfo(cfg, Info{
		Name:           ProviderName,
		DefaultBaseURL: DefaultBaseURL,
		AuthHeader:     "Authorization",
		AuthScheme:     "Bearer",
	})
}

// NewWithInfo creates an adapter for any OpenAI-compatible endpoint.
func NewWithInfo(cfg provider.Config, info Info) (*Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", info.Name)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = info.DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Provider{
		info:           info,
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		client:         client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.info.Name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends the prompt as a single user message and returns the text
// of the first choice.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setAuth(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", p.mapTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", p.mapError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s: response carried no choices", p.info.Name)
	}
	return chatResp.Choices[0].Message.Content, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the text. Requires an embedding
// model in the config.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embeddingModel == "" {
		return nil, fmt.Errorf("%s: embedding model not configured", p.info.Name)
	}

	body, err := json.Marshal(embeddingRequest{Model: p.embeddingModel, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setAuth(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.mapTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, p.mapError(resp.StatusCode, respBody)
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("%s: response carried no embeddings", p.info.Name)
	}
	return embResp.Data[0].Embedding, nil
}

func (p *Provider) setAuth(req *http.Request) {
	if p.info.AuthHeader == "" || p.apiKey == "" {
		return
	}
	value := p.apiKey
	if p.info.AuthScheme != "" {
		value = p.info.AuthScheme + " " + value
	}
	req.Header.Set(p.info.AuthHeader, value)
}

// mapTransportError classifies connection-level failures. Deadline and
// cancellation map to timeouts; everything else is treated as the endpoint
// being unreachable, which is retryable.
func (p *Provider) mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return svcerrors.NewTimeoutError(p.info.Name, err.Error())
	}
	return svcerrors.NewServiceUnavailableError(p.info.Name, err.Error())
}

// mapError converts an OpenAI error response to a standardized error.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return svcerrors.NewAuthenticationError(p.info.Name, message)
	case http.StatusTooManyRequests:
		return svcerrors.NewRateLimitError(p.info.Name, message)
	case http.StatusBadRequest, http.StatusNotFound:
		return svcerrors.NewInvalidRequestError(p.info.Name, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return svcerrors.NewTimeoutError(p.info.Name, message)
	default:
		if statusCode >= 500 {
			return svcerrors.NewServiceUnavailableError(p.info.Name, message)
		}
		return svcerrors.NewInvalidRequestError(p.info.Name, message)
	}
}
