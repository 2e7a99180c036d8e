// Package monitor watches the workflows root and surfaces its state as
// Prometheus metrics: in-flight workflows (directories still holding a
// checkpoint), checkpoint writes observed on disk, and raw filesystem
// events. It observes only; it never writes workflow state.
package monitor
