//go:build unit

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type telemetry struct {
	reader   *sdkmetric.ManualReader
	recorder *tracetest.SpanRecorder
	opts     []Option
}

func newTelemetry() *telemetry {
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()

	return &telemetry{
		reader:   reader,
		recorder: recorder,
		opts: []Option{
			WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
			WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))),
		},
	}
}

func (tm *telemetry) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, tm.reader.Collect(context.Background(), &rm))

	return rm
}

// counter sums the data points of an int64 counter whose attributes contain attrs.
func (tm *telemetry) counter(t *testing.T, name string, attrs ...attribute.KeyValue) int64 {
	t.Helper()

	var total int64

	for _, scope := range tm.collect(t).ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)

			for _, dp := range sum.DataPoints {
				if hasAttributes(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}

	return total
}

// histogramCount returns how many values a float64 histogram recorded.
func (tm *telemetry) histogramCount(t *testing.T, name string) uint64 {
	t.Helper()

	var count uint64

	for _, scope := range tm.collect(t).ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}

			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "metric %s is not a float64 histogram", name)

			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
		}
	}

	return count
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		v, ok := set.Value(kv.Key)
		if !ok || v.Emit() != kv.Value.Emit() {
			return false
		}
	}

	return true
}
