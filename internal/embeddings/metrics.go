package embeddings

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/embeddings"

// Metrics holds embedding metrics.
type Metrics struct {
	meter     metric.Meter
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
	retries   metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter provider.
func NewMetrics(logger *logging.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "embedding instrument unavailable", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &Metrics{meter: meter}
	var err error
	m.duration, err = meter.Float64Histogram("ragd.embedding.duration_seconds",
		metric.WithDescription("Embedding call latency by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	warn("duration_seconds", err)

	m.batchSize, err = meter.Int64Histogram("ragd.embedding.batch_size",
		metric.WithDescription("Texts per embedding request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500))
	warn("batch_size", err)

	m.errors, err = meter.Int64Counter("ragd.embedding.errors_total",
		metric.WithDescription("Embedding calls that failed after retries"),
		metric.WithUnit("{error}"))
	warn("errors_total", err)

	m.retries, err = meter.Int64Counter("ragd.embedding.attempts_total",
		metric.WithDescription("Provider calls including retries"),
		metric.WithUnit("{call}"))
	warn("attempts_total", err)
	return m
}

// RecordGeneration records one embedding operation.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, duration time.Duration, batchSize int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if batchSize > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batchSize), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordAttempt counts one provider call.
func (m *Metrics) RecordAttempt(ctx context.Context, model string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}
