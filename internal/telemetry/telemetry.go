package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Telemetry owns the SDK providers for traces, metrics and logs.
type Telemetry struct {
	cfg    *Config
	logger *logging.Logger

	tracers *sdktrace.TracerProvider
	meters  *sdkmetric.MeterProvider
	logs    *sdklog.LoggerProvider

	// failed lists the signals whose exporter could not be created.
	failed []string
	closed atomic.Bool
}

// New validates cfg and installs the global tracer and meter providers. A
// disabled config returns an instance that does nothing. A signal whose
// exporter cannot be built is left on the no-op provider and reported by
// Degraded.
func New(ctx context.Context, cfg *Config, logger *logging.Logger, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Telemetry{cfg: cfg, logger: logger.Named("telemetry")}
	if !cfg.Enabled {
		return t, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	res := newResource(cfg)

	if exp, ok := resolve(ctx, t, "traces", o.traceExporter, func() (sdktrace.SpanExporter, error) {
		return newTraceExporter(ctx, cfg)
	}); ok {
		t.tracers = newTracerProvider(cfg, res, exp)
		otel.SetTracerProvider(t.tracers)
	}
	if exp, ok := resolve(ctx, t, "metrics", o.metricExporter, func() (sdkmetric.Exporter, error) {
		return newMetricExporter(ctx, cfg)
	}); ok {
		t.meters = newMeterProvider(cfg, res, exp)
		otel.SetMeterProvider(t.meters)
	}
	if exp, ok := resolve(ctx, t, "logs", o.logExporter, func() (sdklog.Exporter, error) {
		return newLogExporter(ctx, cfg)
	}); ok {
		t.logs = newLoggerProvider(res, exp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.logger.Info(ctx, "telemetry initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("protocol", cfg.Protocol),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Strings("degraded", t.failed),
	)
	return t, nil
}

// resolve returns override when set, otherwise builds the OTLP exporter. A
// build failure marks the signal degraded.
func resolve[E any](ctx context.Context, t *Telemetry, signal string, override E, build func() (E, error)) (E, bool) {
	if any(override) != nil {
		return override, true
	}
	exp, err := build()
	if err != nil {
		t.failed = append(t.failed, signal)
		t.logger.Warn(ctx, "telemetry exporter unavailable", zap.String("signal", signal), zap.Error(err))
		var zero E
		return zero, false
	}
	return exp, true
}

// Enabled reports whether telemetry was switched on and has not been shut
// down.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg != nil && t.cfg.Enabled && !t.closed.Load()
}

// Degraded returns the signals that fell back to no-op providers.
func (t *Telemetry) Degraded() []string {
	if t == nil {
		return nil
	}
	return t.failed
}

// LoggerProvider returns the provider for the zap bridge, or nil when log
// export is off.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.logs == nil {
		return nil
	}
	return t.logs
}

type flushShutdowner interface {
	ForceFlush(context.Context) error
	Shutdown(context.Context) error
}

func (t *Telemetry) providers() map[string]flushShutdowner {
	out := map[string]flushShutdowner{}
	if t.tracers != nil {
		out["traces"] = t.tracers
	}
	if t.meters != nil {
		out["metrics"] = t.meters
	}
	if t.logs != nil {
		out["logs"] = t.logs
	}
	return out
}

// ForceFlush exports everything buffered so far.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for signal, p := range t.providers() {
		if err := p.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing %s: %w", signal, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every provider. Without a deadline on ctx it
// is bounded by ShutdownTimeout. Calls after the first are no-ops.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg != nil && t.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}
	var errs []error
	for signal, p := range t.providers() {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down %s: %w", signal, err))
		}
	}
	return errors.Join(errs...)
}
