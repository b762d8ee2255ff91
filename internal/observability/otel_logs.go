// OpenTelemetry Logs integration. Emits one structured record per session
// operation with trace correlation, for deployments that collect OTLP logs.
package observability

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelLogsConfig contains configuration for OpenTelemetry Logs.
type OTelLogsConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Endpoint     string            `yaml:"endpoint"`
	ExporterType ExporterType      `yaml:"exporter_type"`
	ServiceName  string            `yaml:"service_name"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
}

// DefaultOTelLogsConfig returns sensible defaults.
func DefaultOTelLogsConfig() OTelLogsConfig {
	return OTelLogsConfig{
		Enabled:      envBool("CHEATSHEET_OTEL_LOGS_ENABLED", false),
		Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"),
		ExporterType: ExporterGRPC,
		ServiceName:  ServiceName,
		Insecure:     true,
		Headers:      make(map[string]string),
	}
}

// OTelLogsProvider wraps the OpenTelemetry logger provider.
type OTelLogsProvider struct {
	provider *sdklog.LoggerProvider
	logger   log.Logger
}

// OperationEvent describes one completed session operation for the OTLP
// log stream.
type OperationEvent struct {
	Operation string
	SessionID string
	RequestID string
	Mode      string
	Provider  string
	Duration  time.Duration
	Entries   int
	Err       error
}

// InitOTelLogs initializes OpenTelemetry Logs. Returns nil when disabled;
// the provider's methods tolerate a nil receiver.
func InitOTelLogs(ctx context.Context, cfg OTelLogsConfig) (*OTelLogsProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdklog.Exporter
	var err error

	switch cfg.ExporterType {
	case ExporterHTTP:
		exporter, err = createHTTPLogExporter(ctx, cfg)
	default:
		exporter, err = createGRPCLogExporter(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("service.component", "session-memory"),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	global.SetLoggerProvider(provider)

	return &OTelLogsProvider{
		provider: provider,
		logger:   provider.Logger(TracerName),
	}, nil
}

// Logger returns the logger instance.
func (o *OTelLogsProvider) Logger() log.Logger {
	return o.logger
}

// EmitOperation emits one record for a completed session operation.
func (o *OTelLogsProvider) EmitOperation(ctx context.Context, event OperationEvent) {
	if o == nil {
		return
	}

	severity := log.SeverityInfo
	body := "session.operation.success"
	if event.Err != nil {
		severity = log.SeverityError
		body = "session.operation.failure"
	}

	record := log.Record{}
	record.SetTimestamp(time.Now())
	record.SetSeverity(severity)
	record.SetBody(log.StringValue(body))

	record.AddAttributes(
		log.String("cheatsheet.operation", event.Operation),
		log.String("session.id", event.SessionID),
		log.Int64("cheatsheet.duration_ms", event.Duration.Milliseconds()),
		log.Int("cheatsheet.memory.entries", event.Entries),
	)
	if event.RequestID != "" {
		record.AddAttributes(log.String("request_id", event.RequestID))
	}
	if event.Mode != "" {
		record.AddAttributes(log.String("cheatsheet.mode", event.Mode))
	}
	if event.Provider != "" {
		record.AddAttributes(log.String("gen_ai.system", event.Provider))
	}
	if event.Err != nil {
		record.AddAttributes(log.String("error.message", event.Err.Error()))
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		record.AddAttributes(
			log.String("trace_id", span.SpanContext().TraceID().String()),
			log.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	o.logger.Emit(ctx, record)
}

// Shutdown gracefully shuts down the logger provider.
func (o *OTelLogsProvider) Shutdown(ctx context.Context) error {
	if o == nil || o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}

func createGRPCLogExporter(ctx context.Context, cfg OTelLogsConfig) (sdklog.Exporter, error) {
	opts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(cfg.Headers))
	}
	return otlploggrpc.New(ctx, opts...)
}

func createHTTPLogExporter(ctx context.Context, cfg OTelLogsConfig) (sdklog.Exporter, error) {
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	return otlploghttp.New(ctx, opts...)
}
