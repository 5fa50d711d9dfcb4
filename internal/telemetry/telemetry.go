package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer and meter name used by the core
const InstrumentationName = "github.com/jordanhubbard/inanna"

// Instruments bundles the custom OpenTelemetry metrics
type Instruments struct {
	MessagesProcessed metric.Int64Counter
	PipelineLatency   metric.Float64Histogram
	JobsExecuted      metric.Int64Counter
}

// Tracer returns the tracer for the core. Before InitTelemetry this is the
// global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// NewInstruments creates the custom metrics on the global meter provider.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(InstrumentationName)

	processed, err := meter.Int64Counter(
		"inanna.messages.processed",
		metric.WithDescription("Number of envelopes processed by the core"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram(
		"inanna.pipeline.latency",
		metric.WithDescription("Text pipeline latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	jobs, err := meter.Int64Counter(
		"inanna.scheduler.jobs",
		metric.WithDescription("Number of scheduled job executions"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		MessagesProcessed: processed,
		PipelineLatency:   latency,
		JobsExecuted:      jobs,
	}, nil
}

// RecordMessage records one processed envelope on the OTel instruments.
func (i *Instruments) RecordMessage(ctx context.Context, msgType, tag string, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("type", msgType),
		attribute.String("tag", tag),
	)
	i.MessagesProcessed.Add(ctx, 1, attrs)
	i.PipelineLatency.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
}

// InitTelemetry initializes OpenTelemetry tracing with the OTLP gRPC exporter.
// The returned function flushes and shuts the provider down.
func InitTelemetry(ctx context.Context, serviceName, otelEndpoint, version string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Printf("[Telemetry] Initialized with endpoint %s", otelEndpoint)

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(shutdownCtx)
	}, nil
}
