package observability

import (
	"testing"
	"time"
)

type countingMetrics struct {
	NoOpMetrics
	requests, tokens int
	inFlight         int
}

func (c *countingMetrics) IncrementRequests(map[string]string)           { c.requests++ }
func (c *countingMetrics) IncrementTokensUsed(n int, _ map[string]string) { c.tokens += n }
func (c *countingMetrics) SetInFlight(n int)                              { c.inFlight = n }

func TestNoOpMetrics(t *testing.T) {
	var m Metrics = &NoOpMetrics{}
	m.IncrementRequests(nil)
	m.RecordLatency(time.Millisecond, nil)
	m.IncrementTokensUsed(10, nil)
	m.RecordError("x", nil)
	m.SetInFlight(1)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &countingMetrics{}, &countingMetrics{}
	m := Multi(a, b)
	m.IncrementRequests(map[string]string{LabelName: "calculator"})
	m.IncrementTokensUsed(52, nil)
	m.RecordLatency(time.Millisecond, nil)
	m.RecordError("extraction", nil)
	m.SetInFlight(2)

	for i, c := range []*countingMetrics{a, b} {
		if c.requests != 1 || c.tokens != 52 || c.inFlight != 2 {
			t.Fatalf("sink %d missed calls: %+v", i, c)
		}
	}
}
