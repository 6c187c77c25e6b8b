// Package telemetry wires the relay's metrics and tracing.
//
// [Metrics] owns a private Prometheus registry so several relays (or tests)
// can live in one process. All recording methods are safe to call on a nil
// *Metrics, which turns them into no-ops.
//
// [InitTracing] installs a global OpenTelemetry tracer provider. Components
// obtain tracers through otel.Tracer, so spans are no-ops until it is called.
package telemetry
