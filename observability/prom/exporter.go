package prom

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/KamdynS/go-structured/observability"
)

// Exporter implements observability.Metrics and exposes a Prometheus text endpoint
// without external dependencies. It aggregates counters and simple latency sums.
type Exporter struct {
	mu       sync.Mutex
	requests map[string]float64
	latency  map[string]float64
	count    map[string]float64
	tokens   map[string]float64
	errors   map[string]float64
	inFlight float64
}

// New creates a new in-process exporter.
func New() *Exporter {
	return &Exporter{
		requests: make(map[string]float64),
		latency:  make(map[string]float64),
		count:    make(map[string]float64),
		tokens:   make(map[string]float64),
		errors:   make(map[string]float64),
	}
}

// Handler returns an HTTP handler for a simple /metrics endpoint.
func Handler(e *Exporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(e.render()))
	})
}

func (e *Exporter) render() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	writeFamily(&b, "structured_requests_total", "counter", e.requests)
	writeFamily(&b, "structured_request_latency_seconds_sum", "counter", e.latency)
	writeFamily(&b, "structured_request_latency_seconds_count", "counter", e.count)
	writeFamily(&b, "structured_tokens_total", "counter", e.tokens)
	writeFamily(&b, "structured_errors_total", "counter", e.errors)
	fmt.Fprintf(&b, "# TYPE structured_in_flight gauge\nstructured_in_flight %s\n", formatFloat(e.inFlight))
	return b.String()
}

// writeFamily emits samples in label order so scrapes are stable.
func writeFamily(b *strings.Builder, name, kind string, samples map[string]float64) {
	if len(samples) == 0 {
		return
	}
	keys := make([]string, 0, len(samples))
	for k := range samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	for _, k := range keys {
		fmt.Fprintf(b, "%s%s %s\n", name, k, formatFloat(samples[k]))
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (e *Exporter) IncrementRequests(labels map[string]string) {
	e.mu.Lock()
	e.requests[labelSet(labels)]++
	e.mu.Unlock()
}

func (e *Exporter) RecordLatency(d time.Duration, labels map[string]string) {
	key := labelSet(labels)
	e.mu.Lock()
	e.latency[key] += d.Seconds()
	e.count[key]++
	e.mu.Unlock()
}

func (e *Exporter) IncrementTokensUsed(tokens int, labels map[string]string) {
	e.mu.Lock()
	e.tokens[labelSet(labels)] += float64(tokens)
	e.mu.Unlock()
}

func (e *Exporter) RecordError(errorType string, labels map[string]string) {
	merged := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		merged[k] = v
	}
	merged["error_type"] = errorType

	e.mu.Lock()
	e.errors[labelSet(merged)]++
	e.mu.Unlock()
}

func (e *Exporter) SetInFlight(count int) {
	e.mu.Lock()
	e.inFlight = float64(count)
	e.mu.Unlock()
}

// labelSet renders labels as a sorted Prometheus label block, e.g.
// {method="jsonMode",name="calculator"}.
func labelSet(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.Quote(labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Ensure interface compliance
var _ observability.Metrics = (*Exporter)(nil)
