// Package telemetry manages the OpenTelemetry SDK lifecycle: a
// TracerProvider and MeterProvider exporting OTLP over gRPC or
// http/protobuf, parent-based sampling, and graceful shutdown.
// Exporter failures degrade to no-op providers instead of failing the
// process.
package telemetry
