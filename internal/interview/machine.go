// internal/interview/machine.go
package interview

import (
	"context"
	"fmt"
	"strings"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/genai"

	"github.com/tidwall/gjson"
)

// StartResult is the output of StartSession.
type StartResult struct {
	Question    string             `json:"question"`
	Target      string             `json:"target"`
	Confidences map[string]float64 `json:"confidences"`
}

// TurnResult is the output of SubmitAnswer.
type TurnResult struct {
	Prompt           string  `json:"prompt"`
	ConfidenceUpdate float64 `json:"confidenceUpdate"`
	NextTarget       string  `json:"nextTarget,omitempty"`
	IsComplete       bool    `json:"isComplete"`
}

// Machine drives interview sessions. It holds the live dependencies so the
// Session itself stays a plain serializable record.
type Machine struct {
	gen    genai.Generator
	config config.InterviewConfig
	logger logger.Logger
}

func NewMachine(gen genai.Generator, cfg config.InterviewConfig, log logger.Logger) *Machine {
	return &Machine{
		gen:    gen,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "interview"}),
	}
}

// StartSession creates a session for the given gaps, sorted descending by
// weight, and generates the opening question for the top gap.
func (m *Machine) StartSession(ctx context.Context, workflowID string, gaps []string, weights map[string]float64, background string) (*Session, *StartResult, error) {
	if len(gaps) == 0 {
		return nil, nil, fmt.Errorf("cannot start interview with no gaps")
	}

	session := newSession(workflowID, gaps, weights, background)
	session.CurrentTarget = session.Gaps[0]

	question := m.generateQuestion(ctx, session, session.CurrentTarget, bandOpening)
	session.appendTurn("assistant", question)

	m.logger.Info("interview session started", map[string]interface{}{
		"workflowId": workflowID,
		"gaps":       session.Gaps,
		"target":     session.CurrentTarget,
	})

	return session, &StartResult{
		Question:    question,
		Target:      session.CurrentTarget,
		Confidences: session.Confidences,
	}, nil
}

// SubmitAnswer processes one answer for the current target: score it, record
// evidence, then either stop at the turn cap, move to the next unsatisfied
// gap, or stay on the same target with a follow-up question.
func (m *Machine) SubmitAnswer(ctx context.Context, session *Session, answer string) (*TurnResult, error) {
	if session.Status == StatusComplete {
		return &TurnResult{IsComplete: true, ConfidenceUpdate: session.Confidences[session.CurrentTarget]}, nil
	}
	if session.CurrentTarget == "" {
		return nil, fmt.Errorf("session has no current target")
	}

	target := session.CurrentTarget
	session.Status = StatusScoring
	session.appendTurn("student", answer)

	candidate, evidence := m.scoreAnswer(ctx, session, target, answer)

	// Confidence never decreases across turns.
	previous := session.Confidences[target]
	confidence := previous
	if candidate > previous {
		confidence = candidate
	}
	session.Confidences[target] = confidence

	if evidence != "" {
		session.Evidence[target] = append(session.Evidence[target], evidence)
	}

	session.TurnsTaken++

	// Hard stop at the turn cap, independent of convergence.
	if session.TurnsTaken >= m.config.MaxTurns {
		session.Status = StatusComplete
		session.CurrentTarget = ""
		m.logger.Info("interview hit turn cap", map[string]interface{}{
			"workflowId": session.WorkflowID,
			"turns":      session.TurnsTaken,
		})
		return &TurnResult{ConfidenceUpdate: confidence, IsComplete: true}, nil
	}

	if confidence >= m.config.ConfidenceThreshold {
		next := session.nextUnsatisfied(m.config.ConfidenceThreshold)
		if next == "" {
			session.Status = StatusComplete
			session.CurrentTarget = ""
			return &TurnResult{ConfidenceUpdate: confidence, IsComplete: true}, nil
		}

		session.Status = StatusTransitioning
		session.CurrentTarget = next
		prompt := m.generateQuestion(ctx, session, next, bandTransition)
		session.appendTurn("assistant", prompt)
		session.Status = StatusAwaitingAnswer
		return &TurnResult{Prompt: prompt, ConfidenceUpdate: confidence, NextTarget: next}, nil
	}

	// Target not yet satisfied: follow up, framed by the confidence band.
	prompt := m.generateQuestion(ctx, session, target, bandFor(confidence))
	session.appendTurn("assistant", prompt)
	session.Status = StatusAwaitingAnswer
	return &TurnResult{Prompt: prompt, ConfidenceUpdate: confidence, NextTarget: target}, nil
}

// Complete synthesizes the first-person narrative from the answer history
// and final confidences. A synthesis failure still marks the session
// complete; downstream treats the missing narrative as "no additional
// evidence supplied".
func (m *Machine) Complete(ctx context.Context, session *Session) (string, error) {
	if session.Narrative != "" {
		return session.Narrative, nil
	}
	session.Status = StatusComplete

	narrative, err := m.gen.Generate(ctx, narrativeSystemPrompt, m.buildNarrativePrompt(session))
	if err != nil {
		m.logger.Warn("narrative synthesis failed, completing without narrative", map[string]interface{}{
			"workflowId": session.WorkflowID,
			"error":      err.Error(),
		})
		return "", nil
	}

	session.Narrative = strings.TrimSpace(narrative)
	return session.Narrative, nil
}

// scoreAnswer asks the generation service for a {score, evidence} judgment.
// On failure it falls back to a small bump that cannot cross the threshold
// in a single step.
func (m *Machine) scoreAnswer(ctx context.Context, session *Session, target, answer string) (float64, string) {
	raw, err := m.gen.Generate(ctx, scoringSystemPrompt, m.buildScoringPrompt(target, answer))
	if err == nil {
		parsed := gjson.Parse(extractJSON(raw))
		score := parsed.Get("score")
		if score.Exists() && score.Float() >= 0 && score.Float() <= 1 {
			return score.Float(), strings.TrimSpace(parsed.Get("evidence").String())
		}
		err = fmt.Errorf("unusable score in response")
	}

	serr := errors.NewAnswerScoringFailedError(target, err)
	m.logger.Warn("answer scoring failed, applying fallback bump", map[string]interface{}{
		"workflowId": session.WorkflowID,
		"error":      serr.Error(),
		"details":    serr.Details,
	})

	fallback := session.Confidences[target] + m.config.FallbackBump
	ceiling := m.config.ConfidenceThreshold - 0.01
	if fallback > ceiling {
		fallback = ceiling
	}
	return fallback, ""
}

// extractJSON strips markdown fences the model sometimes wraps around JSON.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return trimmed[start : end+1]
		}
	}
	return trimmed
}
