// Package observability provides OpenTelemetry tracing and metrics for
// smshub. When disabled, all instruments are no-ops, so callers never have to
// nil-check the provider.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures telemetry export.
type Config struct {
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	Environment    string            `json:"environment" yaml:"environment"`
	OTLPEndpoint   string            `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPHeaders    map[string]string `json:"otlp_headers,omitempty" yaml:"otlp_headers,omitempty"`
	SampleRate     float64           `json:"sample_rate" yaml:"sample_rate"`
}

// Telemetry provides tracing and metric instruments for the dispatch and
// reconciliation paths.
type Telemetry struct {
	config        *Config
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	messagesSent   metric.Int64Counter
	messagesFailed metric.Int64Counter
	reportsUpdated metric.Int64Counter
	reportsDropped metric.Int64Counter
	sendDuration   metric.Float64Histogram
	queueDepth     metric.Int64UpDownCounter
}

// New creates a telemetry provider. With cfg nil or disabled the returned
// provider uses the global no-op tracer and meter.
func New(cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = &Config{
			ServiceName:    "smshub",
			ServiceVersion: "1.0.0",
			Environment:    "development",
			SampleRate:     1.0,
		}
	}

	t := &Telemetry{config: cfg}

	if cfg.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	t.tracer = otel.Tracer("smshub")
	t.meter = otel.Meter("smshub")

	if err := t.initInstruments(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return t, nil
}

func (t *Telemetry) initTracing() error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(t.config.ServiceName),
			semconv.ServiceVersion(t.config.ServiceVersion),
			semconv.DeploymentEnvironment(t.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptrace.New(context.Background(),
		otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(t.config.OTLPEndpoint),
			otlptracehttp.WithHeaders(t.config.OTLPHeaders),
		),
	)
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}

	t.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(t.config.SampleRate)),
	)

	otel.SetTracerProvider(t.traceProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return nil
}

func (t *Telemetry) initInstruments() error {
	var err error

	if t.messagesSent, err = t.meter.Int64Counter("smshub.messages.sent",
		metric.WithDescription("Messages dispatched to a gateway")); err != nil {
		return err
	}
	if t.messagesFailed, err = t.meter.Int64Counter("smshub.messages.failed",
		metric.WithDescription("Messages that failed gateway dispatch")); err != nil {
		return err
	}
	if t.reportsUpdated, err = t.meter.Int64Counter("smshub.reports.updated",
		metric.WithDescription("Delivery reports reconciled against stored records")); err != nil {
		return err
	}
	if t.reportsDropped, err = t.meter.Int64Counter("smshub.reports.dropped",
		metric.WithDescription("Delivery reports dropped as unreconcilable")); err != nil {
		return err
	}
	if t.sendDuration, err = t.meter.Float64Histogram("smshub.send.duration",
		metric.WithDescription("Gateway send duration in seconds")); err != nil {
		return err
	}
	if t.queueDepth, err = t.meter.Int64UpDownCounter("smshub.queue.depth",
		metric.WithDescription("Queued messages awaiting dispatch")); err != nil {
		return err
	}
	return nil
}

// StartSend opens a span for one gateway send.
func (t *Telemetry) StartSend(ctx context.Context, gatewayID string, recipients int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "smshub.send",
		trace.WithAttributes(
			attribute.String("gateway.id", gatewayID),
			attribute.Int("message.recipients", recipients),
		))
}

// RecordSend records the outcome of one gateway send.
func (t *Telemetry) RecordSend(ctx context.Context, span trace.Span, gatewayID string, started time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("gateway.id", gatewayID))
	t.sendDuration.Record(ctx, time.Since(started).Seconds(), attrs)

	if err != nil {
		t.messagesFailed.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		t.messagesSent.Add(ctx, 1, attrs)
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordReconciliation records the outcome of one reconciliation batch.
func (t *Telemetry) RecordReconciliation(ctx context.Context, updated, dropped int) {
	t.reportsUpdated.Add(ctx, int64(updated))
	t.reportsDropped.Add(ctx, int64(dropped))
}

// RecordEnqueued adjusts the queue depth gauge.
func (t *Telemetry) RecordEnqueued(ctx context.Context, delta int64) {
	t.queueDepth.Add(ctx, delta)
}

// Shutdown flushes and stops trace export.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.traceProvider == nil {
		return nil
	}
	return t.traceProvider.Shutdown(ctx)
}
