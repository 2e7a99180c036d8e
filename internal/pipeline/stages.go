package pipeline

import "fmt"

// Stage is one named unit of pipeline work with a fixed position in
// canonical order.
type Stage string

const (
	// StageResearch gathers context about the requested change.
	StageResearch Stage = "research"

	// StagePlan produces the implementation plan from research output.
	StagePlan Stage = "plan"

	// StageTestDesign designs the test strategy before implementation.
	StageTestDesign Stage = "test_design"

	// StageImplement executes the planned change.
	StageImplement Stage = "implement"

	// StageReview performs code review of the implementation.
	StageReview Stage = "review"

	// StageSecurityAudit audits the change for security issues.
	StageSecurityAudit Stage = "security_audit"

	// StageDocs generates documentation. Documentation generation is an
	// external collaborator: the stage is dispatched with the other
	// validators and its artifact kept, but its outcome never gates
	// pipeline completion and it is not part of the tracked ledger.
	StageDocs Stage = "docs"
)

// CanonicalOrder returns the tracked stages in execution order. Progress
// percentages are computed over this list.
func CanonicalOrder() []Stage {
	return []Stage{
		StageResearch,
		StagePlan,
		StageTestDesign,
		StageImplement,
		StageReview,
		StageSecurityAudit,
	}
}

// SequentialStages returns the strictly ordered, data-dependent prefix of
// the pipeline. Each stage consumes the previous stage's artifact, which
// is why these are never parallelized.
func SequentialStages() []Stage {
	return []Stage{
		StageResearch,
		StagePlan,
		StageTestDesign,
		StageImplement,
	}
}

// ParallelValidators returns the independent validators dispatched
// concurrently after the sequential stages complete. No completion order
// is guaranteed among them.
func ParallelValidators() []Stage {
	return []Stage{
		StageReview,
		StageSecurityAudit,
		StageDocs,
	}
}

// IsValid reports whether s names a known stage.
func IsValid(s Stage) bool {
	switch s {
	case StageResearch, StagePlan, StageTestDesign, StageImplement,
		StageReview, StageSecurityAudit, StageDocs:
		return true
	}
	return false
}

// Remaining returns the order-preserving difference canonical − completed.
func Remaining(canonical, completed []Stage) []Stage {
	done := make(map[Stage]bool, len(completed))
	for _, s := range completed {
		done[s] = true
	}

	remaining := make([]Stage, 0, len(canonical))
	for _, s := range canonical {
		if !done[s] {
			remaining = append(remaining, s)
		}
	}
	return remaining
}

// NextStage returns the first stage of canonical not in completed, or ""
// when the plan is exhausted.
func NextStage(canonical, completed []Stage) Stage {
	remaining := Remaining(canonical, completed)
	if len(remaining) == 0 {
		return ""
	}
	return remaining[0]
}

// ValidatePrefix checks that completed is an order-preserving prefix of
// canonical. This is the core checkpoint invariant: stages complete in
// canonical order and never disappear.
func ValidatePrefix(canonical, completed []Stage) error {
	if len(completed) > len(canonical) {
		return fmt.Errorf("completed stages (%d) exceed canonical plan (%d)", len(completed), len(canonical))
	}
	for i, s := range completed {
		if canonical[i] != s {
			return fmt.Errorf("completed stage %q at position %d breaks canonical order (expected %q)", s, i, canonical[i])
		}
	}
	return nil
}

// Stages converts a string slice into stages.
func Stages(names []string) []Stage {
	stages := make([]Stage, len(names))
	for i, n := range names {
		stages[i] = Stage(n)
	}
	return stages
}

// Names converts stages into a string slice for persistence.
func Names(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return names
}
