// internal/common/errors/errors_test.go
package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Constructor Tests
// ==========================

func TestErrorConstructors(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	tests := []struct {
		name      string
		err       *StandardError
		wantCode  ErrorCode
		retryable bool
	}{
		{"stage failed", NewStageFailedError("matching", cause), ErrCodeStageFailed, false},
		{"checkpoint write", NewCheckpointWriteFailedError(cause), ErrCodeCheckpointWriteFailed, true},
		{"checkpoint read", NewCheckpointReadFailedError(cause), ErrCodeCheckpointReadFailed, true},
		{"missing upstream field", NewMissingUpstreamFieldError("criteria", "matching"), ErrCodeMissingUpstreamField, false},
		{"criteria invalid", NewCriteriaInvalidError("weights sum to zero"), ErrCodeCriteriaInvalid, false},
		{"knowledge query", NewKnowledgeQueryFailedError("research", cause), ErrCodeKnowledgeQueryFailed, true},
		{"answer scoring", NewAnswerScoringFailedError("research", cause), ErrCodeAnswerScoringFailed, true},
		{"resume mismatch", NewResumeMismatchError("wf-1", "matching"), ErrCodeResumeMismatch, false},
		{"workflow not found", NewWorkflowNotFoundError("wf-1"), ErrCodeWorkflowNotFound, false},
		{"genai failed", NewGenAIFailedError(cause), ErrCodeGenAIFailed, true},
		{"genai timeout", NewGenAITimeoutError(), ErrCodeGenAITimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.Contains(t, tt.err.Error(), string(tt.wantCode))
		})
	}
}

// ==========================
// Utility Function Tests
// ==========================

func TestIsStageFailure(t *testing.T) {
	assert.True(t, IsStageFailure(ErrCodeStageFailed))
	assert.True(t, IsStageFailure(ErrCodeCheckpointWriteFailed))
	assert.True(t, IsStageFailure(ErrCodeCriteriaInvalid))
	assert.False(t, IsStageFailure(ErrCodeKnowledgeQueryFailed))
	assert.False(t, IsStageFailure(ErrCodeResumeMismatch))
	assert.False(t, IsStageFailure(ErrCodeCheckpointReadFailed))
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeCheckpointWriteFailed, "CHECKPOINT"},
		{ErrCodeKnowledgeQueryFailed, "KNOWLEDGE"},
		{ErrCodeGenAITimeout, "AI"},
		{ErrCodeSynthesisFailed, "AI"},
		{ErrCodeAnswerScoringFailed, "AI"},
		{ErrCodeResumeMismatch, "LIFECYCLE"},
		{ErrCodeWorkflowNotFound, "LIFECYCLE"},
		{ErrCodeStageFailed, "STAGE"},
		{ErrCodeCriteriaInvalid, "STAGE"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.code))
		})
	}
}
