// Package invoker dispatches pipeline stages to the collaborators that
// execute them.
//
// The coordinator speaks only the Invoker interface; concrete
// implementations cover NATS request/reply for remote collaborators, a
// rate-limited wrapper for throttled backends, and a scripted invoker
// for tests. An invocation error is a transport or execution failure;
// a stage that ran and rejected its input returns a Result with
// StatusFailed, not an error.
package invoker
