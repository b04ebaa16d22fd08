package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/ragd/internal/mcp"

const outcomeOK = "ok"

// toolMetrics counts tool calls by tool name and outcome. The outcome is
// "ok" or the lower-cased error kind, so label cardinality stays bounded by
// the registered tools.
type toolMetrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

func newToolMetrics(logger *logging.Logger) *toolMetrics {
	return newToolMetricsWithMeter(otel.Meter(instrumentationName), logger)
}

func newToolMetricsWithMeter(meter metric.Meter, logger *logging.Logger) *toolMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn(context.Background(), "mcp instrument unavailable", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &toolMetrics{}
	var err error
	m.calls, err = meter.Int64Counter("ragd.mcp.tool_calls_total",
		metric.WithDescription("MCP tool calls by tool and outcome"),
		metric.WithUnit("{call}"))
	warn("tool_calls_total", err)

	m.latency, err = meter.Float64Histogram("ragd.mcp.tool_call_duration_seconds",
		metric.WithDescription("Time spent inside MCP tool handlers"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120))
	warn("tool_call_duration_seconds", err)

	m.inflight, err = meter.Int64UpDownCounter("ragd.mcp.tool_calls_active",
		metric.WithDescription("MCP tool calls currently running"),
		metric.WithUnit("{call}"))
	warn("tool_calls_active", err)
	return m
}

// begin marks a call to tool as running. The returned func records the
// result and must be called exactly once.
func (m *toolMetrics) begin(ctx context.Context, tool string) func(error) {
	start := time.Now()
	toolAttr := metric.WithAttributes(attribute.String("tool", tool))
	if m.inflight != nil {
		m.inflight.Add(ctx, 1, toolAttr)
	}
	return func(err error) {
		if m.inflight != nil {
			m.inflight.Add(ctx, -1, toolAttr)
		}
		attrs := metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("outcome", outcome(err)),
		)
		if m.calls != nil {
			m.calls.Add(ctx, 1, attrs)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return strings.ToLower(string(apperr.KindOf(err)))
	}
}
