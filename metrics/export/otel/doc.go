// Package otel exports Engine metrics through OpenTelemetry.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per latency bucket. One callback reads
// Engine.MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
