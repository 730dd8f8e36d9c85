package observability

import "time"

// Metrics defines the interface for collecting negotiation metrics
type Metrics interface {
	// IncrementRequests increments the request counter
	IncrementRequests(labels map[string]string)

	// RecordLatency records request latency
	RecordLatency(duration time.Duration, labels map[string]string)

	// IncrementTokensUsed increments token usage counter
	IncrementTokensUsed(tokens int, labels map[string]string)

	// RecordError increments error counter
	RecordError(errorType string, labels map[string]string)

	// SetInFlight sets the gauge for invocations currently waiting on a model
	SetInFlight(count int)
}

// Label keys shared by the negotiator and the HTTP server.
const (
	LabelName      = "name"
	LabelMethod    = "method"
	LabelProvider  = "provider"
	LabelModel     = "model"
	LabelDirection = "direction"
	LabelRoute     = "route"
	LabelHTTPVerb  = "http_method"
	LabelStatus    = "status_code"
)

// NoOpMetrics is a no-operation implementation of Metrics
type NoOpMetrics struct{}

// IncrementRequests implements Metrics interface
func (n *NoOpMetrics) IncrementRequests(labels map[string]string) {}

// RecordLatency implements Metrics interface
func (n *NoOpMetrics) RecordLatency(duration time.Duration, labels map[string]string) {}

// IncrementTokensUsed implements Metrics interface
func (n *NoOpMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {}

// RecordError implements Metrics interface
func (n *NoOpMetrics) RecordError(errorType string, labels map[string]string) {}

// SetInFlight implements Metrics interface
func (n *NoOpMetrics) SetInFlight(count int) {}

// Multi fans every call out to each of the given sinks in order.
func Multi(sinks ...Metrics) Metrics {
	return multiMetrics(sinks)
}

type multiMetrics []Metrics

func (m multiMetrics) IncrementRequests(labels map[string]string) {
	for _, s := range m {
		s.IncrementRequests(labels)
	}
}

func (m multiMetrics) RecordLatency(duration time.Duration, labels map[string]string) {
	for _, s := range m {
		s.RecordLatency(duration, labels)
	}
}

func (m multiMetrics) IncrementTokensUsed(tokens int, labels map[string]string) {
	for _, s := range m {
		s.IncrementTokensUsed(tokens, labels)
	}
}

func (m multiMetrics) RecordError(errorType string, labels map[string]string) {
	for _, s := range m {
		s.RecordError(errorType, labels)
	}
}

func (m multiMetrics) SetInFlight(count int) {
	for _, s := range m {
		s.SetInFlight(count)
	}
}

var _ Metrics = (*NoOpMetrics)(nil)
var _ Metrics = multiMetrics(nil)
