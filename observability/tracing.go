package observability

import "context"

// Tracer defines the interface for distributed tracing
type Tracer interface {
	// StartSpan creates a new span with the given name
	StartSpan(ctx context.Context, name string) (Span, context.Context)

	// SpanFromContext extracts the span from context
	SpanFromContext(ctx context.Context) Span
}

// Span represents a tracing span
type Span interface {
	// SetAttribute sets an attribute on the span
	SetAttribute(key string, value interface{})

	// SetStatus sets the span status
	SetStatus(code StatusCode, message string)

	// AddEvent adds an event to the span
	AddEvent(name string, attributes map[string]interface{})

	// End finishes the span
	End()

	// Context returns the span context
	Context() context.Context
}

// StatusCode represents span status codes
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

// Common attribute keys (align loosely with OTel HTTP and GenAI conventions)
const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPRoute        = "http.route"
	AttrHTTPStatus       = "http.status_code"
	AttrRequestID        = "request.id"
	AttrProvider         = "genai.provider"
	AttrModel            = "genai.model"
	AttrFinishReason     = "genai.finish_reason"
	AttrToolName         = "genai.tool.name"
	AttrTokensInput      = "genai.tokens.input"
	AttrTokensOutput     = "genai.tokens.output"
	AttrStructuredName   = "structured.name"
	AttrStructuredMethod = "structured.method"
	AttrSchemaKind       = "structured.schema_kind"
	AttrIncludeRaw       = "structured.include_raw"
	AttrExtractionReason = "structured.extraction.reason"
)

// Global, swappable implementations (no-ops by default)
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

// SetTracer swaps the global tracer implementation
func SetTracer(t Tracer) { TracerImpl = t }

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) { MetricsImpl = m }

// NoOpTracer is a no-operation implementation of Tracer
type NoOpTracer struct{}

// StartSpan implements Tracer interface
func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return &NoOpSpan{}, ctx
}

// SpanFromContext implements Tracer interface
func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span {
	return &NoOpSpan{}
}

// NoOpSpan is a no-operation implementation of Span
type NoOpSpan struct{}

// SetAttribute implements Span interface
func (s *NoOpSpan) SetAttribute(key string, value interface{}) {}

// SetStatus implements Span interface
func (s *NoOpSpan) SetStatus(code StatusCode, message string) {}

// AddEvent implements Span interface
func (s *NoOpSpan) AddEvent(name string, attributes map[string]interface{}) {}

// End implements Span interface
func (s *NoOpSpan) End() {}

// Context implements Span interface
func (s *NoOpSpan) Context() context.Context {
	return context.Background()
}

// Ensure implementations satisfy interfaces
var _ Tracer = (*NoOpTracer)(nil)
var _ Span = (*NoOpSpan)(nil)
