package artifact

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/pipelined/internal/align"
)

// StagePlan is the canonical stage plan frozen into a manifest at workflow
// start: the full tracked order plus the subset dispatched in parallel.
type StagePlan struct {
	Canonical []string `json:"canonical"`
	Parallel  []string `json:"parallel"`
}

// Repository is a read-only snapshot of the target repository at workflow
// start, captured for the audit trail.
type Repository struct {
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
	Dirty  bool   `json:"dirty,omitempty"`
}

// Manifest describes one workflow. Created once at start, immutable
// thereafter.
type Manifest struct {
	WorkflowID string      `json:"workflow_id"`
	Request    string      `json:"request"`
	Alignment  align.Data  `json:"alignment"`
	Plan       StagePlan   `json:"plan"`
	Repository *Repository `json:"repository,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Record is one persisted stage output.
type Record struct {
	WorkflowID string          `json:"workflow_id"`
	Stage      string          `json:"stage"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
