// Package config loads daemon configuration: hardcoded defaults, then a
// YAML file, then environment variable overrides. The file is validated
// through its open descriptor (permissions and size) before parsing so
// the check and the read cannot race.
package config
