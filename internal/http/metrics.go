package http

import (
	"context"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	httpInstrumentationName = "github.com/fyrsmithlabs/ragd/internal/http"

	// errorCodeKey is where errorHandler leaves the response error code for
	// the metrics middleware.
	errorCodeKey = "ragd.error_code"

	unmatchedRoute = "unmatched"
)

// HTTPMetrics records request counts, latency and payload sizes per route.
type HTTPMetrics struct {
	meter    metric.Meter
	logger   *logging.Logger
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	inBytes  metric.Int64Histogram
	outBytes metric.Int64Histogram
	inflight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates instruments on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &HTTPMetrics{meter: meter, logger: logger}
	ctx := context.Background()
	var err error

	m.requests, err = meter.Int64Counter("ragd.http.requests_total",
		metric.WithDescription("Requests by method, route, status and error code"),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}
	m.latency, err = meter.Float64Histogram("ragd.http.request_duration_seconds",
		metric.WithDescription("Request latency. Queries and uploads call model services and run long."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}
	m.inBytes, err = meter.Int64Histogram("ragd.http.request_size_bytes",
		metric.WithDescription("Declared request body size, dominated by document uploads"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1<<10, 16<<10, 128<<10, 1<<20, 4<<20, 10<<20))
	if err != nil {
		logger.Warn(ctx, "failed to create request size histogram", zap.Error(err))
	}
	m.outBytes, err = meter.Int64Histogram("ragd.http.response_size_bytes",
		metric.WithDescription("Response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 1000, 10000, 100000, 1000000))
	if err != nil {
		logger.Warn(ctx, "failed to create response size histogram", zap.Error(err))
	}
	m.inflight, err = meter.Int64UpDownCounter("ragd.http.active_requests",
		metric.WithDescription("Requests in progress"),
		metric.WithUnit("{request}"))
	if err != nil {
		logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
	return m
}

// MetricsMiddleware records one data point per request. It must run outside
// the middleware that turns handler errors into responses, so the final
// status is visible.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.inflight != nil {
				m.inflight.Add(ctx, 1)
				defer m.inflight.Add(ctx, -1)
			}

			err := next(c)

			res := c.Response()
			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("route", routeLabel(c.Path())),
				attribute.String("status", strconv.Itoa(res.Status)),
				attribute.String("error_code", errorCode(c)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.inBytes != nil && req.ContentLength > 0 {
				m.inBytes.Record(ctx, req.ContentLength, attrs)
			}
			if m.outBytes != nil {
				m.outBytes.Record(ctx, res.Size, attrs)
			}
			return err
		}
	}
}

// routeLabel keys metrics by route template so ids never become labels.
func routeLabel(path string) string {
	if path == "" || path == "/*" {
		return unmatchedRoute
	}
	return path
}

func errorCode(c echo.Context) string {
	if code, ok := c.Get(errorCodeKey).(string); ok {
		return code
	}
	return ""
}
