// OpenTelemetry Metrics integration. Mirrors the Prometheus collectors for
// deployments that ship OTLP instead of scraping /metrics.
package observability

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// OTelMetricsConfig contains configuration for OpenTelemetry Metrics.
type OTelMetricsConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ExporterType   ExporterType      `yaml:"exporter_type"`
	ServiceName    string            `yaml:"service_name"`
	Insecure       bool              `yaml:"insecure"`
	Headers        map[string]string `yaml:"headers"`
	ExportInterval time.Duration     `yaml:"export_interval"`
}

// DefaultOTelMetricsConfig returns sensible defaults. Env vars follow the
// OTel SDK conventions so collector-side setup stays standard.
func DefaultOTelMetricsConfig() OTelMetricsConfig {
	return OTelMetricsConfig{
		Enabled:        envBool("CHEATSHEET_OTEL_METRICS_ENABLED", false),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		ExporterType:   ExporterGRPC,
		ServiceName:    ServiceName,
		Insecure:       true,
		Headers:        make(map[string]string),
		ExportInterval: 60 * time.Second,
	}
}

// OTelMetricsProvider wraps the OpenTelemetry meter provider and the
// service instruments.
type OTelMetricsProvider struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	operationDuration metric.Float64Histogram
	operationErrors   metric.Int64Counter
	curationEntries   metric.Int64Counter
	memoryEntries     metric.Int64Histogram
}

// OperationMetrics carries the per-operation measurements recorded after
// each session operation completes.
type OperationMetrics struct {
	Operation string
	Mode      string
	Provider  string
	Duration  time.Duration
	// Entries is the session's entry count after the operation.
	Entries   int
	ErrorType string
}

// InitOTelMetrics initializes OpenTelemetry Metrics. Returns nil when
// disabled; all provider methods tolerate a nil receiver.
func InitOTelMetrics(ctx context.Context, cfg OTelMetricsConfig) (*OTelMetricsProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var exporter sdkmetric.Exporter
	var err error

	switch cfg.ExporterType {
	case ExporterHTTP:
		exporter, err = createHTTPMetricExporter(ctx, cfg)
	default:
		exporter, err = createGRPCMetricExporter(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.ExportInterval)),
		),
	)

	otel.SetMeterProvider(provider)
	meter := provider.Meter(TracerName)

	omp := &OTelMetricsProvider{
		provider: provider,
		meter:    meter,
	}
	if err := omp.initInstruments(); err != nil {
		return nil, err
	}
	return omp, nil
}

func (o *OTelMetricsProvider) initInstruments() error {
	var err error

	o.operationDuration, err = o.meter.Float64Histogram(
		"cheatsheet.operation.duration",
		metric.WithDescription("Duration of session operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.operationErrors, err = o.meter.Int64Counter(
		"cheatsheet.operation.errors",
		metric.WithDescription("Session operation failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	o.curationEntries, err = o.meter.Int64Counter(
		"cheatsheet.curation.entries",
		metric.WithDescription("Entry-level merge decisions"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	o.memoryEntries, err = o.meter.Int64Histogram(
		"cheatsheet.memory.entries",
		metric.WithDescription("Session entry count observed after an operation"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordOperation records metrics for a completed session operation.
func (o *OTelMetricsProvider) RecordOperation(ctx context.Context, m OperationMetrics) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("cheatsheet.operation", m.Operation),
	}
	if m.Mode != "" {
		attrs = append(attrs, attribute.String("cheatsheet.mode", m.Mode))
	}
	if m.Provider != "" {
		attrs = append(attrs, attribute.String("gen_ai.system", m.Provider))
	}

	o.operationDuration.Record(ctx, m.Duration.Seconds(), metric.WithAttributes(attrs...))
	o.memoryEntries.Record(ctx, int64(m.Entries), metric.WithAttributes(attrs...))

	if m.ErrorType != "" {
		errAttrs := append(attrs, attribute.String("error.type", m.ErrorType))
		o.operationErrors.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
}

// RecordCuration records entry-level merge decisions for one curation round.
func (o *OTelMetricsProvider) RecordCuration(ctx context.Context, added, kept, superseded int) {
	if o == nil {
		return
	}
	record := func(action string, n int) {
		if n > 0 {
			o.curationEntries.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("cheatsheet.action", action),
			))
		}
	}
	record("added", added)
	record("kept", kept)
	record("superseded", superseded)
}

// Shutdown gracefully shuts down the metrics provider.
func (o *OTelMetricsProvider) Shutdown(ctx context.Context) error {
	if o == nil || o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}

func createGRPCMetricExporter(ctx context.Context, cfg OTelMetricsConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func createHTTPMetricExporter(ctx context.Context, cfg OTelMetricsConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	return otlpmetrichttp.New(ctx, opts...)
}
