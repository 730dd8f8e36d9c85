package otel

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SlogExporter writes finished spans to a structured logger. It lets the CLI
// turn tracing on without a collector.
type SlogExporter struct {
	logger *slog.Logger
}

// NewSlogExporter returns an exporter writing at debug level to logger.
func NewSlogExporter(logger *slog.Logger) *SlogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogExporter{logger: logger}
}

func (e *SlogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		args := []any{
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"duration", span.EndTime().Sub(span.StartTime()),
			"status", span.Status().Code.String(),
		}
		for _, kv := range span.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.logger.DebugContext(ctx, "span "+span.Name(), args...)
	}
	return nil
}

func (e *SlogExporter) Shutdown(context.Context) error { return nil }

// NewTracerProvider builds an SDK provider that batches spans into the slog
// exporter.
func NewTracerProvider(logger *slog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(NewSlogExporter(logger)))
}

var _ sdktrace.SpanExporter = (*SlogExporter)(nil)
