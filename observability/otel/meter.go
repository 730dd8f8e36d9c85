package otel

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// SlogMetricExporter writes collected metrics to a structured logger, one
// record per data point.
type SlogMetricExporter struct {
	logger *slog.Logger
}

// NewSlogMetricExporter returns an exporter writing at info level to logger.
func NewSlogMetricExporter(logger *slog.Logger) *SlogMetricExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogMetricExporter{logger: logger}
}

func (e *SlogMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *SlogMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *SlogMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			e.logMetric(ctx, m)
		}
	}
	return nil
}

func (e *SlogMetricExporter) logMetric(ctx context.Context, m metricdata.Metrics) {
	emit := func(set attribute.Set, args ...any) {
		for _, kv := range set.ToSlice() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.logger.InfoContext(ctx, "metric "+m.Name, args...)
	}

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			emit(dp.Attributes, "value", dp.Value)
		}
	case metricdata.Sum[float64]:
		for _, dp := range data.DataPoints {
			emit(dp.Attributes, "value", dp.Value)
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			emit(dp.Attributes, "count", dp.Count, "sum", dp.Sum)
		}
	case metricdata.Histogram[int64]:
		for _, dp := range data.DataPoints {
			emit(dp.Attributes, "count", dp.Count, "sum", dp.Sum)
		}
	}
}

func (e *SlogMetricExporter) ForceFlush(context.Context) error { return nil }
func (e *SlogMetricExporter) Shutdown(context.Context) error   { return nil }

// NewMeterProvider builds an SDK provider that periodically exports to the
// slog exporter. Shutdown performs a final export, so a short-lived command
// still logs its totals.
func NewMeterProvider(logger *slog.Logger, interval time.Duration) *sdkmetric.MeterProvider {
	var opts []sdkmetric.PeriodicReaderOption
	if interval > 0 {
		opts = append(opts, sdkmetric.WithInterval(interval))
	}
	reader := sdkmetric.NewPeriodicReader(NewSlogMetricExporter(logger), opts...)
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

var _ sdkmetric.Exporter = (*SlogMetricExporter)(nil)
