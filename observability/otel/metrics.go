package otel

import (
	"context"
	"sync"
	"time"

	"github.com/KamdynS/go-structured/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsAdapter records observability.Metrics calls as OpenTelemetry
// instruments.
type MetricsAdapter struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	tokens   metric.Int64Counter
	errors   metric.Int64Counter
	inFlight metric.Int64UpDownCounter

	mu   sync.Mutex
	last int
}

// NewMetricsAdapter creates the instruments on the given provider, or the
// global one when nil.
func NewMetricsAdapter(serviceName string, provider metric.MeterProvider) (*MetricsAdapter, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(serviceName)

	var (
		m   MetricsAdapter
		err error
	)
	if m.requests, err = meter.Int64Counter("structured.requests", metric.WithDescription("Structured output invocations")); err != nil {
		return nil, err
	}
	if m.latency, err = meter.Float64Histogram("structured.latency", metric.WithUnit("s"), metric.WithDescription("Invocation latency")); err != nil {
		return nil, err
	}
	if m.tokens, err = meter.Int64Counter("structured.tokens", metric.WithDescription("Model tokens consumed")); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter("structured.errors", metric.WithDescription("Failed invocations by error type")); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("structured.in_flight", metric.WithDescription("Invocations waiting on a model")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *MetricsAdapter) IncrementRequests(labels map[string]string) {
	m.requests.Add(context.Background(), 1, metric.WithAttributes(attrs(labels)...))
}

func (m *MetricsAdapter) RecordLatency(duration time.Duration, labels map[string]string) {
	m.latency.Record(context.Background(), duration.Seconds(), metric.WithAttributes(attrs(labels)...))
}

func (m *MetricsAdapter) IncrementTokensUsed(tokens int, labels map[string]string) {
	m.tokens.Add(context.Background(), int64(tokens), metric.WithAttributes(attrs(labels)...))
}

func (m *MetricsAdapter) RecordError(errorType string, labels map[string]string) {
	kvs := append(attrs(labels), attribute.String("error_type", errorType))
	m.errors.Add(context.Background(), 1, metric.WithAttributes(kvs...))
}

// SetInFlight converts the absolute gauge value into an up/down delta.
func (m *MetricsAdapter) SetInFlight(count int) {
	m.mu.Lock()
	delta := count - m.last
	m.last = count
	m.mu.Unlock()
	if delta != 0 {
		m.inFlight.Add(context.Background(), int64(delta))
	}
}

func attrs(labels map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(labels)+1)
	for k, v := range labels {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}

var _ observability.Metrics = (*MetricsAdapter)(nil)
