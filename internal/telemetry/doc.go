// Package telemetry owns the OpenTelemetry SDK providers.
//
// Instrumented packages call otel.Tracer and otel.Meter directly. New
// installs the global tracer and meter providers so those calls export
// over OTLP, and exposes a LoggerProvider that the logging package bridges
// zap into. With telemetry disabled the globals stay no-op.
//
// A signal whose exporter cannot be created stays no-op and is listed by
// Degraded; the service keeps running.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
