package align

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const maxPolicyFileSize = 256 * 1024

// DefaultPolicy returns a permissive policy for projects without a policy
// file: everything aligns except requests hitting no declared restriction.
func DefaultPolicy() Policy {
	return Policy{}
}

// LoadPolicy reads a project policy from a TOML file.
//
// Example:
//
//	goals = ["reliability", "performance"]
//	constraints = ["no breaking API changes"]
//
//	[scope]
//	description = "backend services only"
//	allowed = ["api", "rate limiting", "storage"]
//	restricted = ["ui", "react", "frontend"]
func LoadPolicy(path string) (Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if info.Size() > maxPolicyFileSize {
		return Policy{}, fmt.Errorf("policy file too large: %d bytes (max %d)", info.Size(), maxPolicyFileSize)
	}

	var policy Policy
	if _, err := toml.DecodeFile(path, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to decode policy file %s: %w", path, err)
	}

	return policy, nil
}
