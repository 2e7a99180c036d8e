// Package align implements the pre-flight alignment gate: a pure check
// that a change request matches the project's declared goals, scope, and
// constraints before any workflow state is created.
//
// Policy loading (TOML) is deliberately separate from evaluation so the
// gate itself performs no I/O.
package align
