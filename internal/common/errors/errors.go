// Package errors provides standardized error handling for the scholarship
// application pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Stage failures: the workflow halts in the error phase.
	ErrCodeStageFailed           ErrorCode = "STAGE_FAILED"
	ErrCodeIngestionFailed       ErrorCode = "INGESTION_FAILED"
	ErrCodeAnalysisFailed        ErrorCode = "ANALYSIS_FAILED"
	ErrCodeGenerationFailed      ErrorCode = "GENERATION_FAILED"
	ErrCodeCheckpointWriteFailed ErrorCode = "CHECKPOINT_WRITE_FAILED"
	ErrCodeCheckpointReadFailed  ErrorCode = "CHECKPOINT_READ_FAILED"
	ErrCodeMissingUpstreamField  ErrorCode = "MISSING_UPSTREAM_FIELD"
	ErrCodeCriteriaInvalid       ErrorCode = "CRITERIA_INVALID"

	// Partial-evidence failures: absorbed locally as a worst-case score.
	ErrCodeKnowledgeQueryFailed ErrorCode = "KNOWLEDGE_QUERY_FAILED"
	ErrCodeAnswerScoringFailed  ErrorCode = "ANSWER_SCORING_FAILED"
	ErrCodeSynthesisFailed      ErrorCode = "SYNTHESIS_FAILED"

	// Resume handling.
	ErrCodeResumeMismatch     ErrorCode = "RESUME_MISMATCH"
	ErrCodeWorkflowNotFound   ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrCodeWorkflowTerminated ErrorCode = "WORKFLOW_TERMINATED"

	// External services.
	ErrCodeGenAIFailed  ErrorCode = "GENAI_FAILED"
	ErrCodeGenAITimeout ErrorCode = "GENAI_TIMEOUT"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewStageFailedError marks a stage that could not complete. The workflow
// moves to the error phase and is not retried automatically.
func NewStageFailedError(phase string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageFailed,
		Message:   fmt.Sprintf("Stage '%s' failed", phase),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckpointWriteFailedError creates a checkpoint persistence error. There
// is no safe default for a lost checkpoint, so this is a stage failure.
func NewCheckpointWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckpointWriteFailed,
		Message:   "Checkpoint write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCheckpointReadFailedError creates a checkpoint load error.
func NewCheckpointReadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCheckpointReadFailed,
		Message:   "Checkpoint read failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingUpstreamFieldError reports a stage input that should have been
// produced by an earlier phase.
func NewMissingUpstreamFieldError(field, phase string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingUpstreamField,
		Message:   fmt.Sprintf("Required field '%s' missing entering phase '%s'", field, phase),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCriteriaInvalidError reports an unusable weighted-criteria map.
func NewCriteriaInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCriteriaInvalid,
		Message:   "Weighted criteria failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewKnowledgeQueryFailedError creates an absorbed per-criterion query error.
func NewKnowledgeQueryFailedError(criterion string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeKnowledgeQueryFailed,
		Message:   "Knowledge base query failed",
		Details:   fmt.Sprintf("criterion: %s, error: %s", criterion, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnswerScoringFailedError creates an absorbed answer-scoring error.
func NewAnswerScoringFailedError(criterion string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnswerScoringFailed,
		Message:   "Interview answer scoring failed",
		Details:   fmt.Sprintf("criterion: %s, error: %s", criterion, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewResumeMismatchError rejects a resume call for a workflow that is not in
// a resumable phase. State is never mutated.
func NewResumeMismatchError(workflowID, phase string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResumeMismatch,
		Message:   "Workflow is not in a resumable phase",
		Details:   fmt.Sprintf("workflowId: %s, phase: %s", workflowID, phase),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowNotFoundError reports a missing checkpoint for a workflow id.
func NewWorkflowNotFoundError(workflowID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowNotFound,
		Message:   "No checkpoint found for workflow",
		Details:   fmt.Sprintf("workflowId: %s", workflowID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenAIFailedError creates an external text-generation service error.
func NewGenAIFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenAIFailed,
		Message:   "Text generation service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenAITimeoutError creates a text-generation timeout error.
func NewGenAITimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeGenAITimeout,
		Message:   "Text generation service timeout",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsStageFailure reports whether an error code halts the whole workflow.
func IsStageFailure(code ErrorCode) bool {
	switch code {
	case ErrCodeStageFailed,
		ErrCodeIngestionFailed,
		ErrCodeAnalysisFailed,
		ErrCodeGenerationFailed,
		ErrCodeCheckpointWriteFailed,
		ErrCodeMissingUpstreamField,
		ErrCodeCriteriaInvalid:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CHECKPOINT"):
		return "CHECKPOINT"
	case strings.Contains(codeStr, "KNOWLEDGE"):
		return "KNOWLEDGE"
	case strings.Contains(codeStr, "GENAI") || strings.Contains(codeStr, "SYNTHESIS") || strings.Contains(codeStr, "SCORING"):
		return "AI"
	case strings.Contains(codeStr, "RESUME") || strings.Contains(codeStr, "WORKFLOW"):
		return "LIFECYCLE"
	default:
		return "STAGE"
	}
}
