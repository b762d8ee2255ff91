// Package scripted provides a deterministic in-process provider used by
// tests and keyless local runs. Responses come from a queue or a script
// function instead of a network call, and every prompt is recorded.
package scripted

import (
	"context"
	"fmt"
	"sync"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
)

// ProviderName is the identifier for this provider.
const ProviderName = "scripted"

// Provider replays queued responses in order. When the queue runs out the
// last response repeats, so steady-state loops do not need exact counts.
type Provider struct {
	mu        sync.Mutex
	name      string
	responses []string
	index     int
	failures  int
	failErr   error
	script    func(prompt string) (string, error)
	prompts   []string
}

// New creates a scripted provider that replays the given responses.
func New(responses ...string) *Provider {
	return &Provider{
		name:      ProviderName,
		responses: responses,
	}
}

// NewFromConfig adapts New to the registry factory signature. The model
// field is ignored.
func NewFromConfig(_ provider.Config) (provider.Provider, error) {
	return New(), nil
}

// WithName overrides the reported provider name.
func (p *Provider) WithName(name string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	return p
}

// WithScript installs a function that computes the response from the
// prompt. A script takes precedence over the queue.
func (p *Provider) WithScript(fn func(prompt string) (string, error)) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = fn
	return p
}

// FailNext makes the next n Complete calls return err before any queued
// response is consumed.
func (p *Provider) FailNext(n int, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
	p.failErr = err
	return p
}

// Enqueue appends responses to the replay queue.
func (p *Provider) Enqueue(responses ...string) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// Complete records the prompt and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, prompt)

	if p.failures > 0 {
		p.failures--
		return "", p.failErr
	}
	if p.script != nil {
		return p.script(prompt)
	}
	if len(p.responses) == 0 {
		return "", fmt.Errorf("%s: no responses queued", p.name)
	}
	resp := p.responses[p.index]
	if p.index < len(p.responses)-1 {
		p.index++
	}
	return resp, nil
}

// Prompts returns a copy of every prompt seen so far, in call order.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// LastPrompt returns the most recent prompt, or "" before the first call.
func (p *Provider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return ""
	}
	return p.prompts[len(p.prompts)-1]
}

// CallCount returns how many Complete calls have been made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}
