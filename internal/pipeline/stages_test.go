// internal/pipeline/stages_test.go
package pipeline

import (
	"context"
	"testing"

	"scholarship-pipeline/internal/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Criteria Parsing Tests
// ==========================

func TestParseCriteria_NormalizesWeights(t *testing.T) {
	criteria, err := parseCriteria(`{"criteria": [
		{"name": "research", "weight": 0.6},
		{"name": "leadership", "weight": 0.2},
		{"name": "service", "weight": 0.2}
	]}`)
	require.NoError(t, err)

	require.Len(t, criteria, 3)
	var total float64
	for _, cw := range criteria {
		total += cw.Weight
	}
	assert.InDelta(t, 1.0, total, 0.0001)
	assert.Equal(t, "research", criteria[0].Name)
	assert.InDelta(t, 0.6, criteria[0].Weight, 0.0001)
}

func TestParseCriteria_RescalesUnnormalizedWeights(t *testing.T) {
	criteria, err := parseCriteria(`{"criteria": [
		{"name": "a", "weight": 1.0},
		{"name": "b", "weight": 1.0}
	]}`)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, criteria[0].Weight, 0.0001)
	assert.InDelta(t, 0.5, criteria[1].Weight, 0.0001)
}

func TestParseCriteria_StripsMarkdownFences(t *testing.T) {
	criteria, err := parseCriteria("```json\n{\"criteria\": [{\"name\": \"gpa\", \"weight\": 1.0}]}\n```")
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, "gpa", criteria[0].Name)
}

func TestParseCriteria_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty array", `{"criteria": []}`},
		{"missing name", `{"criteria": [{"weight": 0.5}]}`},
		{"weight out of range", `{"criteria": [{"name": "a", "weight": 1.5}]}`},
		{"zero weight sum", `{"criteria": [{"name": "a", "weight": 0}]}`},
		{"not json", `the model refused`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCriteria(tt.raw)
			assert.Error(t, err)
		})
	}
}

// ==========================
// Stage Behavior Tests
// ==========================

func TestStageGeneration_IdempotentWhenMaterialsSet(t *testing.T) {
	env := newTestEnv(t)

	state := NewWorkflowState("wf-1", "session-1", "ref-a", "ref-b")
	state.CurrentPhase = PhaseGeneration
	state.ScholarshipIntel = "intel"
	state.ResumeText = "resume"
	state.Materials = "already drafted essay"

	out := env.orch.stageGeneration(context.Background(), state)

	assert.Equal(t, PhaseComplete, out.CurrentPhase)
	assert.Equal(t, "already drafted essay", out.Materials)
	assert.Zero(t, env.gen.essayCalls, "generation must be skipped when output exists")
}

func TestStageGeneration_MissingUpstreamFields(t *testing.T) {
	env := newTestEnv(t)

	state := NewWorkflowState("wf-1", "session-1", "ref-a", "ref-b")
	state.CurrentPhase = PhaseGeneration

	out := env.orch.stageGeneration(context.Background(), state)

	assert.Equal(t, PhaseError, out.CurrentPhase)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, "MISSING_UPSTREAM_FIELD", out.Errors[0].Code)
}

func TestStageMatching_MissingCriteria(t *testing.T) {
	env := newTestEnv(t)

	state := NewWorkflowState("wf-1", "session-1", "ref-a", "ref-b")
	state.CurrentPhase = PhaseMatching

	out := env.orch.stageMatching(context.Background(), state)

	assert.Equal(t, PhaseError, out.CurrentPhase)
}

func TestRouteAfterMatching(t *testing.T) {
	assert.Equal(t, PhaseInterview, routeAfterMatching(&WorkflowState{TriggerInterview: true}))
	assert.Equal(t, PhaseGeneration, routeAfterMatching(&WorkflowState{TriggerInterview: false}))
}

func TestStageIngest_SkipsFetchWhenFieldsSet(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.fail = map[string]bool{
		"https://scholarships.example/stem": true,
		"resume.txt":                        true,
	}

	state := NewWorkflowState("wf-1", "session-1",
		"https://scholarships.example/stem", "resume.txt")
	state.CurrentPhase = PhaseIngestScholarship
	state.ScholarshipIntel = "cached intel"
	state.ResumeText = "cached resume"

	out := env.orch.stageIngest(context.Background(), state)

	// Fields already set: no fetch, no failure, just a phase advance.
	assert.Equal(t, PhaseIngestResume, out.CurrentPhase)
	assert.Equal(t, "cached intel", out.ScholarshipIntel)
	assert.Empty(t, env.kb.indexed["session-1"], "no re-index on rerun")
}

// ==========================
// Fragment Chunking Tests
// ==========================

func TestSplitFragments(t *testing.T) {
	text := "Research assistant at the systems lab, 2023-2025.\n\nshort\n\nPublished two papers on distributed ML training."

	fragments := splitFragments(text)

	require.Len(t, fragments, 2)
	assert.Contains(t, fragments[0], "Research assistant")
	assert.Contains(t, fragments[1], "Published two papers")
}

func TestSplitFragments_ShortTextKeptWhole(t *testing.T) {
	fragments := splitFragments("brief note")
	require.Len(t, fragments, 1)
	assert.Equal(t, "brief note", fragments[0])
}

// ==========================
// State Record Tests
// ==========================

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	state := NewWorkflowState("wf-1", "session-1", "a", "b")
	state.Criteria = []match.CriterionWeight{{Name: "research", Weight: 1.0}}
	state.Gaps = []string{"research"}
	state.MatchDetails = map[string]match.CriterionDetail{"research": {Score: 0.2, Weight: 1.0}}

	clone := state.Clone()
	clone.Criteria[0].Name = "changed"
	clone.Gaps[0] = "changed"
	clone.MatchDetails["research"] = match.CriterionDetail{Score: 0.9, Weight: 1.0}

	assert.Equal(t, "research", state.Criteria[0].Name)
	assert.Equal(t, "research", state.Gaps[0])
	assert.InDelta(t, 0.2, state.MatchDetails["research"].Score, 0.0001)
}

func TestWorkflowState_RoundTrip(t *testing.T) {
	state := NewWorkflowState("wf-1", "session-1", "a", "b")
	state.CurrentPhase = PhaseMatching
	state.MatchScore = 0.42
	state.Gaps = []string{"research"}

	blob, err := state.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalState(blob)
	require.NoError(t, err)
	assert.Equal(t, state.WorkflowID, restored.WorkflowID)
	assert.Equal(t, PhaseMatching, restored.CurrentPhase)
	assert.InDelta(t, 0.42, restored.MatchScore, 0.0001)
	assert.Equal(t, []string{"research"}, restored.Gaps)
}

func TestPhase_IsTerminal(t *testing.T) {
	assert.True(t, PhaseComplete.IsTerminal())
	assert.True(t, PhaseError.IsTerminal())
	assert.False(t, PhaseMatching.IsTerminal())
	assert.False(t, PhaseInterview.IsTerminal())
}
