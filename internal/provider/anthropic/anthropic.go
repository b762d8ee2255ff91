// Package anthropic implements the Anthropic provider adapter.
package anthropic

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
	ProviderName = "anthropic"

	// DefaultBaseURL is the default Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// APIVersion is the Anthropic API version header value.
	APIVersion = "2023-06-01"

	// DefaultMaxTokens is used when the config does not set one; the
	// messages API requires the field.
	DefaultMaxTokens = 4096
)

// Provider implements the Anthropic messages adapter.
type Provider struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature *float64
	client      *http.Client
}

// New creates a new Anthropic provider instance.
func New(cfg provider.Config) (provider.Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model is required", ProviderName)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	return &Provider{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		client:      client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return ProviderName
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Complete sends the prompt as a single user message and returns the
// concatenated text blocks of the response.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", svcerrors.NewTimeoutError(ProviderName, err.Error())
		}
		return "", svcerrors.NewServiceUnavailableError(ProviderName, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", p.mapError(resp.StatusCode, respBody)
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%s: response carried no text content", ProviderName)
	}
	return sb.String(), nil
}

// mapError converts an Anthropic error response to a standardized error.
func (p *Provider) mapError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return svcerrors.NewAuthenticationError(ProviderName, message)
	case http.StatusTooManyRequests:
		return svcerrors.NewRateLimitError(ProviderName, message)
	case http.StatusBadRequest, http.StatusNotFound:
		return svcerrors.NewInvalidRequestError(ProviderName, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return svcerrors.NewTimeoutError(ProviderName, message)
	default:
		if statusCode >= 500 {
			return svcerrors.NewServiceUnavailableError(ProviderName, message)
		}
		return svcerrors.NewInvalidRequestError(ProviderName, message)
	}
}
