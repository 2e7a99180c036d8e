// Package artifact manages the per-workflow directory: the immutable
// manifest written at workflow start and one JSON artifact per completed
// stage. Artifacts are the pipeline's audit trail and persist
// indefinitely; reading a missing artifact fails explicitly, never with a
// default.
//
// Layout under the workflows root:
//
//	<root>/<workflow_id>/manifest.json
//	<root>/<workflow_id>/checkpoint.json   (owned by internal/checkpoint)
//	<root>/<workflow_id>/<stage>.json
//
// All writes go through the statefile persistence core.
package artifact
