package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/KamdynS/go-structured/llm"
	"github.com/KamdynS/go-structured/observability"
	"github.com/KamdynS/go-structured/observability/prom"
	"github.com/KamdynS/go-structured/schema"
	"github.com/KamdynS/go-structured/structured"
	"github.com/KamdynS/go-structured/transcript"
)

const maxBodyBytes = 1 << 20

// Server exposes structured output negotiation over HTTP
type Server struct {
	client llm.Client
	config Config
	logger *slog.Logger
	server *http.Server
}

// Config holds HTTP server configuration
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EnableCORS   bool

	// Schemas are named schemas a request may reference by name instead of
	// sending a document inline.
	Schemas map[string]schema.Schema
	// Recorder is passed to every configured model. When set, the
	// transcript endpoints are mounted.
	Recorder transcript.Store
	// Metrics, when set, is served at /metrics.
	Metrics *prom.Exporter
	Logger  *slog.Logger
}

// NewServer creates a new HTTP server around a chat client
func NewServer(client llm.Client, config Config) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 90 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		client: client,
		config: config,
		logger: logger,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	var h http.Handler = mux
	if s.config.EnableCORS {
		h = s.corsMiddleware(h)
	}
	return s.requestIDMiddleware(h)
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /v1/structured", s.structuredHandler)
	if s.config.Recorder != nil {
		mux.HandleFunc("GET /v1/transcripts", s.listTranscriptsHandler)
		mux.HandleFunc("GET /v1/transcripts/{id}", s.getTranscriptHandler)
	}
	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", prom.Handler(s.config.Metrics))
	}
}

// Message is one conversation turn on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StructuredRequest is the body of POST /v1/structured. Schema is either a
// JSON Schema document or the name of a configured schema.
type StructuredRequest struct {
	Schema     json.RawMessage `json:"schema"`
	Name       string          `json:"name"`
	Method     string          `json:"method,omitempty"`
	IncludeRaw bool            `json:"include_raw,omitempty"`
	Repair     bool            `json:"repair,omitempty"`
	Messages   []Message       `json:"messages"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"provider": string(s.client.Provider()),
		"model":    s.client.Model(),
	})
}

func (s *Server) structuredHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req StructuredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeInvalidRequest), Message: "invalid JSON body"})
		return
	}

	sch, err := s.resolveSchema(req.Schema)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeValidationError), Message: err.Error()})
		return
	}
	method, err := structured.ParseMethod(req.Method)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeInvalidRequest), Message: err.Error()})
		return
	}

	model, err := structured.Configure(s.client, sch, structured.Options{
		Name:       req.Name,
		Method:     method,
		IncludeRaw: req.IncludeRaw,
		Repair:     req.Repair,
		Recorder:   s.config.Recorder,
		Logger:     s.logger,
	})
	if err != nil {
		s.writeInvokeError(w, r, err)
		return
	}

	msgs := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	result, err := model.Invoke(r.Context(), msgs)
	if err != nil {
		s.writeInvokeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) resolveSchema(raw json.RawMessage) (schema.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return schema.Schema{}, errors.New("schema is required")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		sch, ok := s.config.Schemas[name]
		if !ok {
			return schema.Schema{}, fmt.Errorf("unknown schema %q", name)
		}
		return sch, nil
	}
	return schema.JSONBytes(raw), nil
}

// writeInvokeError maps negotiation failures to status codes: caller
// mistakes are 400, unusable model output is 422, provider failures are 502.
func (s *Server) writeInvokeError(w http.ResponseWriter, r *http.Request, err error) {
	var xerr *structured.ExtractionError
	var lerr *llm.LLMError

	switch {
	case errors.Is(err, structured.ErrSchema):
		s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeValidationError), Message: err.Error()})
	case errors.Is(err, structured.ErrMissingName),
		errors.Is(err, structured.ErrUnknownMethod),
		errors.Is(err, structured.ErrNoMessages):
		s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeInvalidRequest), Message: err.Error()})
	case errors.As(err, &xerr):
		s.writeError(w, r, http.StatusUnprocessableEntity, ErrorBody{
			Type:    string(llm.ErrorTypeJSONParsingError),
			Message: err.Error(),
			Reason:  string(xerr.Reason),
		})
	case errors.As(err, &lerr):
		s.writeError(w, r, http.StatusBadGateway, ErrorBody{Type: string(lerr.Type), Message: lerr.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusGatewayTimeout, ErrorBody{Type: string(llm.ErrorTypeTimeout), Message: err.Error()})
	default:
		s.logger.ErrorContext(r.Context(), "structured request failed", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorBody{Type: string(llm.ErrorTypeUnknown), Message: "internal server error"})
	}
}

func (s *Server) listTranscriptsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, ErrorBody{Type: string(llm.ErrorTypeInvalidRequest), Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	records, err := s.config.Recorder.List(r.Context(), limit)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list transcripts", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorBody{Type: string(llm.ErrorTypeServerError), Message: "could not list transcripts"})
		return
	}
	if records == nil {
		records = []transcript.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": records})
}

func (s *Server) getTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.config.Recorder.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, ErrorBody{Type: string(llm.ErrorTypeNotFound), Message: err.Error()})
	case err != nil:
		s.logger.ErrorContext(r.Context(), "get transcript", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, ErrorBody{Type: string(llm.ErrorTypeServerError), Message: "could not read transcript"})
	default:
		writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, body ErrorBody) {
	s.logger.DebugContext(r.Context(), "request rejected",
		"path", r.URL.Path,
		"status", code,
		"type", body.Type,
		"message", body.Message,
	)
	writeJSON(w, code, ErrorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// requestIDMiddleware propagates X-Request-ID and records a server span.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := observability.RequestID(r)
		ctx := observability.WithRequestID(r.Context(), id)
		span, ctx := observability.TracerImpl.StartSpan(ctx, "http.request")
		defer span.End()
		span.SetAttribute(observability.AttrHTTPMethod, r.Method)
		span.SetAttribute(observability.AttrHTTPRoute, r.URL.Path)
		span.SetAttribute(observability.AttrRequestID, id)

		w.Header().Set(observability.HeaderRequestID, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttribute(observability.AttrHTTPStatus, rec.status)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(observability.StatusCodeError, http.StatusText(rec.status))
		} else {
			span.SetStatus(observability.StatusCodeOk, "")
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
