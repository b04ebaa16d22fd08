package telemetry

import (
	"context"
	"slices"
	"testing"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TestTelemetry keeps spans and metrics in memory for assertions.
type TestTelemetry struct {
	*Telemetry

	Spans   *tracetest.SpanRecorder
	Metrics *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled Telemetry backed by in-memory
// recorders. Nothing is installed globally until Install.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg:     cfg,
			logger:  logging.NewNop(),
			tracers: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			meters:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		Spans:   spans,
		Metrics: reader,
	}
}

// Install makes the recorders the global providers for the rest of the
// test. Meters must be obtained after Install to report here.
func (t *TestTelemetry) Install(tb testing.TB) {
	tb.Helper()
	tracers, meters := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(t.tracers)
	otel.SetMeterProvider(t.meters)
	tb.Cleanup(func() {
		otel.SetTracerProvider(tracers)
		otel.SetMeterProvider(meters)
	})
}

func (t *TestTelemetry) Tracer(name string) oteltrace.Tracer { return t.tracers.Tracer(name) }

func (t *TestTelemetry) Meter(name string) metric.Meter { return t.meters.Meter(name) }

// Span returns the first ended span called name, or nil.
func (t *TestTelemetry) Span(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpan fails unless a span called name ended carrying every attr.
func (t *TestTelemetry) AssertSpan(tb testing.TB, name string, attrs ...attribute.KeyValue) {
	tb.Helper()
	s := t.Span(name)
	if s == nil {
		var names []string
		for _, e := range t.Spans.Ended() {
			names = append(names, e.Name())
		}
		tb.Errorf("no span %q among %v", name, names)
		return
	}
	have := attribute.NewSet(s.Attributes()...)
	for _, want := range attrs {
		if got, ok := have.Value(want.Key); !ok || got != want.Value {
			tb.Errorf("span %q: %s = %v, want %v", name, want.Key, got.Emit(), want.Value.Emit())
		}
	}
}

// CounterValue sums an int64 counter over the points carrying attrs. It
// returns -1 when nothing matched.
func (t *TestTelemetry) CounterValue(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	total, seen := int64(0), false
	t.each(tb, name, func(data metricdata.Aggregation) {
		sum, ok := data.(metricdata.Sum[int64])
		if !ok {
			return
		}
		for _, dp := range sum.DataPoints {
			if matches(dp.Attributes, attrs) {
				total += dp.Value
				seen = true
			}
		}
	})
	if !seen {
		return -1
	}
	return total
}

// HistogramCount counts float64 histogram observations carrying attrs.
func (t *TestTelemetry) HistogramCount(tb testing.TB, name string, attrs ...attribute.KeyValue) uint64 {
	tb.Helper()
	var n uint64
	t.each(tb, name, func(data metricdata.Aggregation) {
		hist, ok := data.(metricdata.Histogram[float64])
		if !ok {
			return
		}
		for _, dp := range hist.DataPoints {
			if matches(dp.Attributes, attrs) {
				n += dp.Count
			}
		}
	})
	return n
}

func (t *TestTelemetry) each(tb testing.TB, name string, fn func(metricdata.Aggregation)) {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.Metrics.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collecting metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		i := slices.IndexFunc(sm.Metrics, func(m metricdata.Metrics) bool { return m.Name == name })
		if i >= 0 {
			fn(sm.Metrics[i].Data)
		}
	}
}

func matches(have attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		if v, ok := have.Value(kv.Key); !ok || v != kv.Value {
			return false
		}
	}
	return true
}
