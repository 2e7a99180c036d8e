// Package checkpoint manages durable snapshots of pipeline progress.
//
// Each workflow has exactly one checkpoint file, overwritten atomically
// after every stage completion (latest-wins, no version history) and
// deleted only on full pipeline success. A checkpoint is trusted only
// after validation: required fields present and every listed artifact
// resolving to an existing file.
package checkpoint
