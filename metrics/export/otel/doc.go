// Package otel exports the engine counters as OpenTelemetry observable
// instruments. The export is pull-based: counters are read from a
// MetricsSnapshot inside the meter callback, so the engine hot path carries
// no OpenTelemetry dependency.
package otel
