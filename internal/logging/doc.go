// Package logging builds the process-wide zap logger: JSON or console
// encoding with ISO-8601 timestamps, field-and-pattern redaction of
// sensitive values, and optional OpenTelemetry log export through the
// otelzap bridge.
package logging
