package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("kinecalc.engine")
	meter  = otel.Meter("kinecalc.engine")
)

var (
	computeDuration metric.Float64Histogram
	computeErrors   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use. Safe to call multiple
// times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		computeDuration, err = meter.Float64Histogram(
			"kinecalc.compute.duration",
			metric.WithDescription("Duration of a full formula evaluation pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeErrors, err = meter.Int64Counter(
			"kinecalc.compute.errors",
			metric.WithDescription("Compute calls aborted by a cell error"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCompute is a no-op when the instruments could not be created.
func recordCompute(ctx context.Context, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	computeDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		computeErrors.Add(ctx, 1)
	}
}
