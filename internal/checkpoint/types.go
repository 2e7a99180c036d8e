package checkpoint

import "time"

// SchemaVersion is written into every checkpoint.
const SchemaVersion = "1.0"

// Type categorizes why a checkpoint was written.
type Type string

const (
	// TypeInitial is the empty checkpoint written at workflow start.
	TypeInitial Type = "initial"

	// TypeStageCompletion follows a sequential stage completing.
	TypeStageCompletion Type = "stage_completion"

	// TypeParallelValidation follows the validator fan-out join.
	TypeParallelValidation Type = "parallel_validation"
)

// Checkpoint is the persisted progress snapshot for one workflow.
//
// CompletedStages is always an order-preserving prefix of the manifest's
// canonical plan; CurrentStage is the first stage not yet completed, or
// nil when the plan is exhausted.
type Checkpoint struct {
	Version          string         `json:"version"`
	WorkflowID       string         `json:"workflow_id"`
	CreatedAt        time.Time      `json:"created_at"`
	CheckpointType   Type           `json:"checkpoint_type"`
	CompletedStages  []string       `json:"completed_stages"`
	CurrentStage     *string        `json:"current_stage"`
	ArtifactsCreated []string       `json:"artifacts_created"`
	Metadata         map[string]any `json:"metadata"`
}

// CreateRequest carries the fields for a checkpoint write; version and
// created_at are server-assigned.
type CreateRequest struct {
	WorkflowID       string
	CheckpointType   Type
	CompletedStages  []string
	CurrentStage     *string
	ArtifactsCreated []string
	Metadata         map[string]any
}

// Summary is one entry of a resumable-workflows listing.
type Summary struct {
	WorkflowID      string    `json:"workflow_id"`
	CreatedAt       time.Time `json:"created_at"`
	CompletedStages []string  `json:"completed_stages"`
	CurrentStage    *string   `json:"current_stage"`
}

// ResumePlan describes what remains for one workflow.
type ResumePlan struct {
	WorkflowID         string   `json:"workflow_id"`
	CompletedStages    []string `json:"completed_stages"`
	Remaining          []string `json:"remaining"`
	NextStage          *string  `json:"next_stage"`
	ProgressPercentage int      `json:"progress_percentage"`
	CanResume          bool     `json:"can_resume"`
}

// StageRef returns a pointer to s, for CurrentStage fields.
func StageRef(s string) *string {
	return &s
}
