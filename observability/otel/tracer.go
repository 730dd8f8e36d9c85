// Package otel adapts the observability interfaces to OpenTelemetry.
package otel

import (
	"context"
	"fmt"

	"github.com/KamdynS/go-structured/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer implements observability.Tracer using OpenTelemetry.
type Tracer struct{ tracer trace.Tracer }

// NewTracer returns a tracer named after the instrumented service. A nil
// provider means the global one.
func NewTracer(serviceName string, provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(serviceName)}
}

func (t *Tracer) StartSpan(ctx context.Context, name string) (observability.Span, context.Context) {
	ctx, span := t.tracer.Start(ctx, name)
	return &spanWrapper{span: span, ctx: ctx}, ctx
}

// SpanFromContext returns the active span without starting a new one.
func (t *Tracer) SpanFromContext(ctx context.Context) observability.Span {
	return &spanWrapper{span: trace.SpanFromContext(ctx), ctx: ctx}
}

type spanWrapper struct {
	span trace.Span
	ctx  context.Context
}

func (s *spanWrapper) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *spanWrapper) SetStatus(code observability.StatusCode, message string) {
	switch code {
	case observability.StatusCodeOk:
		s.span.SetStatus(codes.Ok, message)
	case observability.StatusCodeError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

func (s *spanWrapper) AddEvent(name string, attrs map[string]interface{}) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, toAttribute(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

func (s *spanWrapper) End()                     { s.span.End() }
func (s *spanWrapper) Context() context.Context { return s.ctx }

func toAttribute(key string, v interface{}) attribute.KeyValue {
	switch x := v.(type) {
	case string:
		return attribute.String(key, x)
	case bool:
		return attribute.Bool(key, x)
	case int:
		return attribute.Int(key, x)
	case int64:
		return attribute.Int64(key, x)
	case float64:
		return attribute.Float64(key, x)
	case []string:
		return attribute.StringSlice(key, x)
	case fmt.Stringer:
		return attribute.String(key, x.String())
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// Ensure interface compliance
var _ observability.Tracer = (*Tracer)(nil)
var _ observability.Span = (*spanWrapper)(nil)
