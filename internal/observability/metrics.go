// Package observability exposes worker metrics through an OpenTelemetry meter
// backed by a Prometheus exporter.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics covers the render pipeline, the trigger queue and the HTTP surface.
type Metrics struct {
	meter metric.Meter

	JobDuration metric.Float64Histogram
	JobsTotal   metric.Int64Counter
	JobsActive  metric.Int64UpDownCounter

	RequestsTotal  metric.Int64Counter
	RequestsQueued metric.Int64UpDownCounter
	RequestsDenied metric.Int64Counter

	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics registers all instruments and returns the /metrics handler.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter("simple-renderer"))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}
	var err error

	m.JobDuration, err = meter.Float64Histogram(
		"render_job_duration_seconds",
		metric.WithDescription("Render job duration in seconds, from lock to terminal write"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"render_jobs_total",
		metric.WithDescription("Render jobs processed, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"render_jobs_active",
		metric.WithDescription("Render jobs currently running"),
	)
	if err != nil {
		return nil, err
	}

	m.RequestsTotal, err = meter.Int64Counter(
		"render_requests_total",
		metric.WithDescription("Render requests received, by trigger"),
	)
	if err != nil {
		return nil, err
	}

	m.RequestsQueued, err = meter.Int64UpDownCounter(
		"render_requests_queued",
		metric.WithDescription("Render requests waiting for a worker"),
	)
	if err != nil {
		return nil, err
	}

	m.RequestsDenied, err = meter.Int64Counter(
		"render_requests_denied_total",
		metric.WithDescription("Render requests rejected because the queue was full"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) JobStarted(ctx context.Context) {
	m.JobsActive.Add(ctx, 1)
}

func (m *Metrics) JobFinished(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.JobsActive.Add(ctx, -1)
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
}

// RequestQueued records a request offered to the worker queue.
func (m *Metrics) RequestQueued(ctx context.Context, trigger string) {
	m.RequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
	m.RequestsQueued.Add(ctx, 1)
}

// RequestDequeued records a worker picking a request up.
func (m *Metrics) RequestDequeued(ctx context.Context) {
	m.RequestsQueued.Add(ctx, -1)
}

func (m *Metrics) RequestDenied(ctx context.Context, trigger string) {
	m.RequestsDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
