// Package metrics implements manager.Metrics with an OpenTelemetry
// exporter: instruments are created lazily and cached, and recording
// degrades gracefully (never panics, never blocks a therapy operation) if
// the exporter could not be reached.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/strandhealth/podctl/internal/config"
)

const (
	metricExchangeCount    = "podctl.exchange.count"
	metricExchangeDuration = "podctl.exchange.duration"
	metricNonceResyncCount = "podctl.nonce_resync.count"
	metricBolusCancelCount = "podctl.bolus_cancellation.count"
	metricPollWaitDuration = "podctl.poll_wait.duration"
)

// Recorder implements manager.Metrics over an OTel meter provider.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	counters   sync.Map // map[string]metric.Int64Counter
	histograms sync.Map // map[string]metric.Float64Histogram
}

// NewRecorder builds a Recorder from cfg. If cfg.Enabled is false it
// returns a Recorder backed by a no-op meter provider, so callers never
// need to branch on whether metrics are configured.
func NewRecorder(ctx context.Context, cfg config.MetricsConfig) (*Recorder, error) {
	if !cfg.Enabled {
		provider := sdkmetric.NewMeterProvider()
		return &Recorder{provider: provider, meter: provider.Meter(cfg.ServiceName)}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(cfg.ExportInterval),
		)),
		sdkmetric.WithResource(res),
	)

	meterName := cfg.ServiceName
	if cfg.ServiceVersion != "" {
		meterName = cfg.ServiceName + "@" + cfg.ServiceVersion
	}

	return &Recorder{provider: provider, meter: provider.Meter(meterName)}, nil
}

// Shutdown flushes pending metrics and releases the exporter connection.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// RecordExchange records one perform_exchange completion: count by
// opcode/outcome, plus its wall-clock duration.
func (r *Recorder) RecordExchange(ctx context.Context, opcode string, outcome string, durationMS float64) {
	attrs := []attribute.KeyValue{
		attribute.String("opcode", opcode),
		attribute.String("outcome", outcome),
	}
	r.addCounter(ctx, metricExchangeCount, 1, "{exchange}", "count of perform_exchange completions", attrs)
	r.recordHistogram(ctx, metricExchangeDuration, durationMS, "ms", "perform_exchange wall-clock duration", attrs)
}

// RecordNonceResync records one pod-initiated nonce resync handshake.
func (r *Recorder) RecordNonceResync(ctx context.Context) {
	r.addCounter(ctx, metricNonceResyncCount, 1, "{resync}", "count of nonce resync handshakes", nil)
}

// RecordBolusCancellation records the outcome of a cancel_bolus attempt
// raised when the conversation is canceled during Bolus's wait-for-finish
// loop.
func (r *Recorder) RecordBolusCancellation(ctx context.Context, succeeded bool) {
	attrs := []attribute.KeyValue{attribute.Bool("succeeded", succeeded)}
	r.addCounter(ctx, metricBolusCancelCount, 1, "{cancellation}", "count of bolus cancellation attempts", attrs)
}

// RecordPollWait records the actual wait duration of one poll-loop tick
// (purge/prime or bolus wait), tagged by the calling operation.
func (r *Recorder) RecordPollWait(ctx context.Context, operation string, waitMS float64) {
	attrs := []attribute.KeyValue{attribute.String("operation", operation)}
	r.recordHistogram(ctx, metricPollWaitDuration, waitMS, "ms", "poll loop wait duration", attrs)
}

func (r *Recorder) addCounter(ctx context.Context, name string, value int64, unit, description string, attrs []attribute.KeyValue) {
	counter, err := r.getOrCreateCounter(name, unit, description)
	if err != nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (r *Recorder) recordHistogram(ctx context.Context, name string, value float64, unit, description string, attrs []attribute.KeyValue) {
	histogram, err := r.getOrCreateHistogram(name, unit, description)
	if err != nil {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

func (r *Recorder) getOrCreateCounter(name, unit, description string) (metric.Int64Counter, error) {
	if cached, ok := r.counters.Load(name); ok {
		return cached.(metric.Int64Counter), nil
	}
	counter, err := r.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	actual, _ := r.counters.LoadOrStore(name, counter)
	return actual.(metric.Int64Counter), nil
}

func (r *Recorder) getOrCreateHistogram(name, unit, description string) (metric.Float64Histogram, error) {
	if cached, ok := r.histograms.Load(name); ok {
		return cached.(metric.Float64Histogram), nil
	}
	histogram, err := r.meter.Float64Histogram(name, metric.WithUnit(unit), metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	actual, _ := r.histograms.LoadOrStore(name, histogram)
	return actual.(metric.Float64Histogram), nil
}
