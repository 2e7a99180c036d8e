package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalOrder_SixTrackedStages(t *testing.T) {
	order := CanonicalOrder()

	assert.Len(t, order, 6)
	assert.Equal(t, StageResearch, order[0])
	assert.Equal(t, StageSecurityAudit, order[5])
}

func TestSequentialStages_PrefixOfCanonical(t *testing.T) {
	seq := SequentialStages()
	canonical := CanonicalOrder()

	assert.NoError(t, ValidatePrefix(canonical, seq))
}

func TestParallelValidators_IncludesDocs(t *testing.T) {
	validators := ParallelValidators()

	assert.Len(t, validators, 3)
	assert.Contains(t, validators, StageDocs)
}

func TestRemaining_OrderPreservingDifference(t *testing.T) {
	canonical := []Stage{"a", "b", "c", "d"}

	assert.Equal(t, []Stage{"c", "d"}, Remaining(canonical, []Stage{"a", "b"}))
	assert.Equal(t, canonical, Remaining(canonical, nil))
	assert.Empty(t, Remaining(canonical, canonical))
}

func TestNextStage(t *testing.T) {
	canonical := []Stage{"a", "b", "c", "d"}

	assert.Equal(t, Stage("c"), NextStage(canonical, []Stage{"a", "b"}))
	assert.Equal(t, Stage("a"), NextStage(canonical, nil))
	assert.Equal(t, Stage(""), NextStage(canonical, canonical))
}

func TestValidatePrefix(t *testing.T) {
	canonical := []Stage{"a", "b", "c"}

	assert.NoError(t, ValidatePrefix(canonical, nil))
	assert.NoError(t, ValidatePrefix(canonical, []Stage{"a"}))
	assert.NoError(t, ValidatePrefix(canonical, []Stage{"a", "b", "c"}))

	assert.Error(t, ValidatePrefix(canonical, []Stage{"b"}), "skipping a stage breaks the prefix")
	assert.Error(t, ValidatePrefix(canonical, []Stage{"b", "a"}), "reordering breaks the prefix")
	assert.Error(t, ValidatePrefix(canonical, []Stage{"a", "b", "c", "d"}), "unknown extra stage")
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(StageResearch))
	assert.True(t, IsValid(StageDocs))
	assert.False(t, IsValid("deploy"))
}

func TestStagesNamesRoundTrip(t *testing.T) {
	in := []Stage{StageResearch, StagePlan}
	assert.Equal(t, in, Stages(Names(in)))
}
