// Package invoker wraps a provider with the call policy every model
// invocation shares: per-attempt timeout, exponential backoff on transient
// failures, metrics, and a trace span per attempt.
package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/metrics"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/observability"
	"github.com/OneChainTech/dynamic-cheatsheet/internal/provider"
	svcerrors "github.com/OneChainTech/dynamic-cheatsheet/pkg/errors"
)

// Purpose labels for metrics and spans.
const (
	PurposeGenerate   = "generate"
	PurposeSynthesize = "synthesize"
	PurposeCurate     = "curate"
)

// Config controls the retry policy.
type Config struct {
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration `yaml:"timeout"`

	// RetryCount is the number of retries after the first attempt.
	RetryCount int `yaml:"retry_count"`

	// RetryBackoff is the wait before the first retry; it doubles each
	// subsequent retry.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		Timeout:      120 * time.Second,
		RetryCount:   2,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Invoker executes model calls against a single provider.
type Invoker struct {
	provider provider.Provider
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an invoker for the provider. Defaults are applied at config
// load; New only guards values that would misbehave. A nil logger falls
// back to slog.Default.
func New(p provider.Provider, cfg Config, logger *slog.Logger) *Invoker {
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		provider: p,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer(observability.TracerName),
	}
}

// Provider returns the wrapped provider.
func (i *Invoker) Provider() provider.Provider {
	return i.provider
}

// Invoke runs one logical model call, retrying transient failures with
// exponential backoff. The purpose labels metrics and spans. A terminal
// failure is reported as an invocation error carrying the last provider
// error as its cause.
func (i *Invoker) Invoke(ctx context.Context, purpose, prompt string) (string, error) {
	name := i.provider.Name()
	var lastErr error

	for attempt := 0; attempt <= i.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := i.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			metrics.InvocationRetries.WithLabelValues(name, purpose).Inc()
			i.logger.Warn("retrying model invocation",
				"provider", name,
				"purpose", purpose,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
		}

		text, err := i.invokeOnce(ctx, purpose, prompt, attempt)
		if err == nil {
			metrics.InvocationsTotal.WithLabelValues(name, purpose, "success").Inc()
			return text, nil
		}
		lastErr = err

		if !svcerrors.IsRetryable(err) {
			break
		}
	}

	metrics.InvocationsTotal.WithLabelValues(name, purpose, "error").Inc()
	return "", svcerrors.NewInvocationError(name,
		fmt.Sprintf("%s call failed after %d attempt(s)", purpose, i.cfg.RetryCount+1),
		lastErr)
}

func (i *Invoker) invokeOnce(ctx context.Context, purpose, prompt string, attempt int) (string, error) {
	ctx, span := i.tracer.Start(ctx, "invoke."+purpose,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.system", i.provider.Name()),
			attribute.String("invocation.purpose", purpose),
			attribute.Int("invocation.attempt", attempt),
		),
	)
	defer span.End()

	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := i.provider.Complete(ctx, prompt)
	metrics.InvocationLatency.WithLabelValues(i.provider.Name(), purpose).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("invocation.output_chars", len(text)))
	return text, nil
}
