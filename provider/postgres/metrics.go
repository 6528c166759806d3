package postgres

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/hsharp/lib-dbprovider/provider/postgres"

const (
	metricAcquireAttempts    = "db.client.connection.acquire.attempts"
	metricAcquireExhausted   = "db.client.connection.acquire.exhausted"
	metricAcquireDuration    = "db.client.connection.acquire.duration"
	metricBackendsTerminated = "db.client.idle_backends.terminated"
	metricCleanupFailures    = "db.client.idle_backends.cleanup_failures"
	metricUnreturnedDetected = "db.client.connection.unreturned"
	attributeOutcome         = "outcome"
	attributeDataSource      = "data_source"
	outcomeSuccess           = "success"
	outcomeFailure           = "failure"
)

type clientMetrics struct {
	attempts        metric.Int64Counter
	exhausted       metric.Int64Counter
	duration        metric.Float64Histogram
	terminated      metric.Int64Counter
	cleanupFailures metric.Int64Counter
	unreturned      metric.Int64Counter
}

// newClientMetrics builds the client instruments. An instrument that cannot be
// created is replaced by a no-op one so recording never fails.
func newClientMetrics(meterProvider metric.MeterProvider) *clientMetrics {
	if meterProvider == nil {
		meterProvider = noop.NewMeterProvider()
	}

	meter := meterProvider.Meter(instrumentationName)
	fallback := noop.Meter{}

	m := &clientMetrics{}

	var err error

	if m.attempts, err = meter.Int64Counter(metricAcquireAttempts,
		metric.WithDescription("Connection lease attempts, by outcome")); err != nil {
		m.attempts, _ = fallback.Int64Counter(metricAcquireAttempts)
	}

	if m.exhausted, err = meter.Int64Counter(metricAcquireExhausted,
		metric.WithDescription("AcquireConnection calls that used every retry")); err != nil {
		m.exhausted, _ = fallback.Int64Counter(metricAcquireExhausted)
	}

	if m.duration, err = meter.Float64Histogram(metricAcquireDuration,
		metric.WithDescription("Time spent in AcquireConnection, retries included"),
		metric.WithUnit("s")); err != nil {
		m.duration, _ = fallback.Float64Histogram(metricAcquireDuration)
	}

	if m.terminated, err = meter.Int64Counter(metricBackendsTerminated,
		metric.WithDescription("Idle backends terminated by cleanup")); err != nil {
		m.terminated, _ = fallback.Int64Counter(metricBackendsTerminated)
	}

	if m.cleanupFailures, err = meter.Int64Counter(metricCleanupFailures,
		metric.WithDescription("Idle backend cleanups that failed")); err != nil {
		m.cleanupFailures, _ = fallback.Int64Counter(metricCleanupFailures)
	}

	if m.unreturned, err = meter.Int64Counter(metricUnreturnedDetected,
		metric.WithDescription("Leases held past the unreturned connection limit")); err != nil {
		m.unreturned, _ = fallback.Int64Counter(metricUnreturnedDetected)
	}

	return m
}

func (m *clientMetrics) recordAttempt(ctx context.Context, dataSource string, ok bool) {
	outcome := outcomeFailure
	if ok {
		outcome = outcomeSuccess
	}

	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attributeDataSource, dataSource),
		attribute.String(attributeOutcome, outcome),
	))
}

func (m *clientMetrics) dataSourceAttr(dataSource string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String(attributeDataSource, dataSource))
}
