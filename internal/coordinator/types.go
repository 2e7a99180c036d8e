package coordinator

import (
	"encoding/json"
	"time"
)

// OutcomeStatus classifies how one parallel validator ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
)

// Outcome records the result of one parallel validator. Failures and
// timeouts are entries here, never escalated errors.
type Outcome struct {
	Stage    string        `json:"stage"`
	Status   OutcomeStatus `json:"status"`
	Artifact string        `json:"artifact,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// MarshalJSON renders Duration as a human-readable string ("1.5s")
// instead of raw nanoseconds for API consumers.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	return json.Marshal(struct {
		plain
		Duration string `json:"duration"`
	}{plain(o), o.Duration.String()})
}

// UnmarshalJSON parses the string form back into a time.Duration.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	type plain Outcome
	aux := struct {
		*plain
		Duration string `json:"duration"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Duration == "" {
		return nil
	}
	d, err := time.ParseDuration(aux.Duration)
	if err != nil {
		return err
	}
	o.Duration = d
	return nil
}

// ProgressState is the derived, read-only view of where a workflow
// stands.
type ProgressState struct {
	WorkflowID         string     `json:"workflow_id"`
	Request            string     `json:"request"`
	CompletedStages    []string   `json:"completed_stages"`
	CurrentStage       *string    `json:"current_stage"`
	Remaining          []string   `json:"remaining"`
	ProgressPercentage int        `json:"progress_percentage"`
	Completed          bool       `json:"completed"`
	CheckpointAt       *time.Time `json:"checkpoint_at,omitempty"`
}

// Config holds coordinator tunables.
type Config struct {
	// ValidatorTimeout bounds each parallel validator independently.
	ValidatorTimeout time.Duration

	// MaxParallelValidators bounds the fan-out pool size.
	MaxParallelValidators int

	// RepositoryPath, when set, is snapshotted into the manifest at
	// workflow start.
	RepositoryPath string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ValidatorTimeout:      5 * time.Minute,
		MaxParallelValidators: 3,
	}
}
