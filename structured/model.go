package structured

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/observability"
	"github.com/KamdynS/go-structured/schema"
	"github.com/KamdynS/go-structured/transcript"
)

const defaultToolDescription = "A function available to call."

// ErrNoMessages is returned by Invoke for an empty conversation.
var ErrNoMessages = errors.New("structured: no messages to send")

// Options configures a structured model.
type Options struct {
	// Name identifies the output. It becomes the tool name under function
	// calling and must be non-empty.
	Name string
	// Method selects function calling (default) or JSON mode.
	Method Method
	// IncludeRaw makes Invoke return the unaltered response with the parsed
	// object.
	IncludeRaw bool
	// Description is the tool description under function calling. When
	// empty, the schema's own description is used.
	Description string
	// Repair runs JSON-mode text through jsonrepair before giving up on it.
	Repair bool
	// Recorder, when set, receives a transcript of every Invoke.
	Recorder transcript.Store
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Model wraps a chat client so each call returns an object conforming to a
// schema. It is immutable after Configure and safe for concurrent use.
type Model struct {
	client llm.Client
	schema *schema.Normalized
	opts   Options
	tool   llm.Tool
	logger *slog.Logger
}

var inFlight atomic.Int64

// Configure binds a client to a schema and options. Schema problems are
// reported here as *SchemaError, never at Invoke time.
func Configure(client llm.Client, s schema.Schema, opts Options) (*Model, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if opts.Name == "" {
		return nil, ErrMissingName
	}
	if !opts.Method.valid() {
		return nil, ErrUnknownMethod
	}

	normalized, err := schema.Normalize(s)
	if err != nil {
		return nil, &SchemaError{Err: err}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Model{
		client: client,
		schema: normalized,
		opts:   opts,
		logger: logger.With("structured", opts.Name),
	}

	description := opts.Description
	if description == "" {
		if d, ok := normalized.Document()["description"].(string); ok && d != "" {
			description = d
		} else {
			description = defaultToolDescription
		}
	}
	m.tool = llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        opts.Name,
			Description: description,
			Parameters:  normalized.Document(),
		},
	}
	return m, nil
}

// Name returns the configured output name.
func (m *Model) Name() string { return m.opts.Name }

// Method returns the configured extraction method.
func (m *Model) Method() Method { return m.opts.Method }

// IncludeRaw reports whether results carry the raw response.
func (m *Model) IncludeRaw() bool { return m.opts.IncludeRaw }

// Schema returns the normalized schema.
func (m *Model) Schema() *schema.Normalized { return m.schema }

// Request builds the chat request Invoke sends for msgs.
func (m *Model) Request(msgs []llm.Message) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Messages: append([]llm.Message(nil), msgs...),
	}
	switch m.opts.Method {
	case MethodJSONMode:
		req.ResponseFormat = &llm.ResponseFormat{Type: llm.ResponseFormatJSONObject}
	default:
		tool := m.tool
		tool.Function.Parameters = m.schema.Document()
		req.Tools = []llm.Tool{tool}
		req.ToolChoice = &llm.ToolChoice{Name: m.opts.Name}
	}
	return req
}

// Invoke sends msgs to the model once and extracts the structured object.
// Transport errors are returned exactly as the client produced them;
// responses that do not yield a conforming object give *ExtractionError.
func (m *Model) Invoke(ctx context.Context, msgs []llm.Message) (Result, error) {
	if len(msgs) == 0 {
		return Result{}, ErrNoMessages
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	span, ctx := observability.TracerImpl.StartSpan(ctx, "structured.invoke")
	defer span.End()
	span.SetAttribute(observability.AttrStructuredName, m.opts.Name)
	span.SetAttribute(observability.AttrStructuredMethod, m.opts.Method.String())
	span.SetAttribute(observability.AttrSchemaKind, m.schema.Kind().String())
	span.SetAttribute(observability.AttrIncludeRaw, m.opts.IncludeRaw)
	span.SetAttribute(observability.AttrProvider, string(m.client.Provider()))
	span.SetAttribute(observability.AttrModel, m.client.Model())

	labels := m.labels()
	metrics := observability.MetricsImpl
	metrics.IncrementRequests(labels)
	metrics.SetInFlight(int(inFlight.Add(1)))

	req := m.Request(msgs)
	m.logger.DebugContext(ctx, "structured request",
		"method", m.opts.Method.String(),
		"messages", len(msgs),
		"tools", len(req.Tools),
	)

	resp, err := m.client.Chat(ctx, req)
	metrics.SetInFlight(int(inFlight.Add(-1)))
	metrics.RecordLatency(time.Since(start), labels)

	if err != nil {
		metrics.RecordError("transport", labels)
		span.SetStatus(observability.StatusCodeError, err.Error())
		m.logger.DebugContext(ctx, "structured transport error", "error", err)
		m.record(ctx, start, msgs, nil, nil, err)
		return Result{}, err
	}

	if resp.Usage != nil {
		metrics.IncrementTokensUsed(resp.Usage.InputTokens, map[string]string{observability.LabelDirection: "input", observability.LabelModel: resp.Model})
		metrics.IncrementTokensUsed(resp.Usage.OutputTokens, map[string]string{observability.LabelDirection: "output", observability.LabelModel: resp.Model})
		span.SetAttribute(observability.AttrTokensInput, resp.Usage.InputTokens)
		span.SetAttribute(observability.AttrTokensOutput, resp.Usage.OutputTokens)
	}
	if resp.FinishReason != "" {
		span.SetAttribute(observability.AttrFinishReason, resp.FinishReason)
	}

	parsed, xerr := m.extract(resp)
	if xerr != nil {
		metrics.RecordError("extraction", labels)
		span.SetAttribute(observability.AttrExtractionReason, string(xerr.Reason))
		span.SetStatus(observability.StatusCodeError, xerr.Error())
		m.logger.DebugContext(ctx, "structured extraction failed",
			"reason", string(xerr.Reason),
			"error", xerr,
		)
		m.record(ctx, start, msgs, resp, nil, xerr)
		return Result{}, xerr
	}

	span.SetStatus(observability.StatusCodeOk, "")
	m.logger.DebugContext(ctx, "structured response parsed", "fields", len(parsed))
	m.record(ctx, start, msgs, resp, parsed, nil)

	if m.opts.IncludeRaw {
		return Result{kind: ResultWithRaw, parsed: parsed, raw: resp}, nil
	}
	return Result{kind: ResultPlain, parsed: parsed}, nil
}

func (m *Model) labels() map[string]string {
	return map[string]string{
		observability.LabelName:     m.opts.Name,
		observability.LabelMethod:   m.opts.Method.String(),
		observability.LabelProvider: string(m.client.Provider()),
		observability.LabelModel:    m.client.Model(),
	}
}

// record saves a transcript when a recorder is configured. Failures are
// logged and never change the Invoke outcome.
func (m *Model) record(ctx context.Context, start time.Time, msgs []llm.Message, resp *llm.Response, parsed map[string]any, invokeErr error) {
	if m.opts.Recorder == nil {
		return
	}

	r := transcript.Record{
		ID:         transcript.NewID(),
		Name:       m.opts.Name,
		Method:     m.opts.Method.String(),
		SchemaKind: m.schema.Kind().String(),
		Provider:   string(m.client.Provider()),
		Model:      m.client.Model(),
		Messages:   append([]llm.Message(nil), msgs...),
		Response:   resp,
		Parsed:     parsed,
		StartedAt:  start,
		Duration:   time.Since(start),
	}
	if invokeErr != nil {
		r.Error = invokeErr.Error()
	}

	if err := m.opts.Recorder.Save(context.WithoutCancel(ctx), r); err != nil {
		m.logger.WarnContext(ctx, "structured transcript not saved", "id", r.ID, "error", err)
	}
}
