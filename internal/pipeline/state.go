// internal/pipeline/state.go
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/match"
)

// Phase is the workflow's current position in the stage graph.
type Phase string

const (
	PhaseStart             Phase = "start"
	PhaseIngestScholarship Phase = "ingest_scholarship"
	PhaseIngestResume      Phase = "ingest_resume"
	PhaseAnalysis          Phase = "analysis"
	PhaseMatching          Phase = "matching"
	PhaseInterview         Phase = "interview"
	PhaseGeneration        Phase = "generation"
	PhaseComplete          Phase = "complete"
	PhaseError             Phase = "error"
)

// IsTerminal reports whether no further stage will run for the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseError
}

// StageError is one append-only entry of a workflow's error history.
type StageError struct {
	Phase     Phase     `json:"phase"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExternalInput is the human-supplied input consumed by Resume: either a
// synthesized interview narrative or an explicit skip signal.
type ExternalInput struct {
	Narrative     string `json:"narrative,omitempty"`
	SkipInterview bool   `json:"skipInterview,omitempty"`
}

// WorkflowState is the single record threaded through the orchestrator. Each
// stage owns the fields of its phase; the whole struct is the checkpoint
// payload. Stage functions receive and return copies rather than mutating
// shared state, so concurrent workflow instances never interfere.
type WorkflowState struct {
	WorkflowID string `json:"workflowId"`
	SessionID  string `json:"sessionId"`

	// Inputs.
	ScholarshipRef string `json:"scholarshipRef"`
	ResumeRef      string `json:"resumeRef"`

	// Ingestion outputs.
	ScholarshipIntel string `json:"scholarshipIntel,omitempty"`
	ResumeText       string `json:"resumeText,omitempty"`

	// Analysis output: weights sum to 1.0 after normalization.
	Criteria []match.CriterionWeight `json:"criteria,omitempty"`

	// Matching outputs.
	MatchScore       float64                          `json:"matchScore"`
	TriggerInterview bool                             `json:"triggerInterview"`
	Gaps             []string                         `json:"gaps,omitempty"`
	MatchDetails     map[string]match.CriterionDetail `json:"matchDetails,omitempty"`

	// Interview output, applied by Resume.
	InterviewNarrative string `json:"interviewNarrative,omitempty"`

	// Generation output.
	Materials string `json:"materials,omitempty"`

	// Control.
	CurrentPhase Phase        `json:"currentPhase"`
	Errors       []StageError `json:"errors,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWorkflowState creates a workflow at the start phase.
func NewWorkflowState(workflowID, sessionID, scholarshipRef, resumeRef string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		WorkflowID:     workflowID,
		SessionID:      sessionID,
		ScholarshipRef: scholarshipRef,
		ResumeRef:      resumeRef,
		CurrentPhase:   PhaseStart,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a deep copy. Stages work on clones so a failed stage leaves
// the caller's state untouched.
func (s *WorkflowState) Clone() *WorkflowState {
	out := *s
	out.Criteria = append([]match.CriterionWeight(nil), s.Criteria...)
	out.Gaps = append([]string(nil), s.Gaps...)
	out.Errors = append([]StageError(nil), s.Errors...)
	if s.MatchDetails != nil {
		out.MatchDetails = make(map[string]match.CriterionDetail, len(s.MatchDetails))
		for k, v := range s.MatchDetails {
			out.MatchDetails[k] = v
		}
	}
	return &out
}

// Fail moves the workflow to the terminal error phase with an appended
// error entry. Earlier stage outputs are left as they were.
func (s *WorkflowState) Fail(phase Phase, code, message string) *WorkflowState {
	out := s.Clone()
	out.CurrentPhase = PhaseError
	out.Errors = append(out.Errors, StageError{
		Phase:     phase,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	out.UpdatedAt = time.Now().UTC()
	return out
}

// FailWith is Fail for an already-constructed StandardError.
func (s *WorkflowState) FailWith(phase Phase, serr *errors.StandardError) *WorkflowState {
	msg := serr.Message
	if serr.Details != "" {
		msg += ": " + serr.Details
	}
	return s.Fail(phase, string(serr.Code), msg)
}

// Marshal serializes the full state for checkpointing.
func (s *WorkflowState) Marshal() ([]byte, error) {
	blob, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow state: %w", err)
	}
	return blob, nil
}

// UnmarshalState restores a checkpointed state blob.
func UnmarshalState(blob []byte) (*WorkflowState, error) {
	var state WorkflowState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return &state, nil
}
