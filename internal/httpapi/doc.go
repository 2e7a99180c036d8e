// Package httpapi exposes the workflow status API over HTTP: health
// and Prometheus metrics endpoints plus a small JSON API for starting,
// inspecting, listing, and resuming workflows. Status reads never
// trigger stage execution.
package httpapi
