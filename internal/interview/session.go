// internal/interview/session.go
package interview

import (
	"sort"
	"time"
)

// Status is the state-machine state of an interview session.
type Status string

const (
	StatusAwaitingAnswer Status = "awaiting_answer"
	StatusScoring        Status = "scoring"
	StatusTransitioning  Status = "transitioning"
	StatusComplete       Status = "complete"
)

// Turn is one entry of the append-only conversation history.
type Turn struct {
	Role    string `json:"role"` // "assistant" or "student"
	Content string `json:"content"`
}

// Session carries the full interview state. It is serializable at any point
// and holds no live dependencies, so a session can be resumed from cold
// storage hours after the last answer.
type Session struct {
	WorkflowID string `json:"workflowId"`

	// Gaps is ordered descending by weight; ties keep the gate's order.
	Gaps    []string           `json:"gaps"`
	Weights map[string]float64 `json:"weights"`

	// Confidences are monotonically non-decreasing per criterion.
	Confidences   map[string]float64  `json:"confidences"`
	CurrentTarget string              `json:"currentTarget"`
	TurnsTaken    int                 `json:"turnsTaken"`
	History       []Turn              `json:"history"`
	Evidence      map[string][]string `json:"evidence"`
	Narrative     string              `json:"narrative,omitempty"`
	Status        Status              `json:"status"`

	// Background is scholarship context used to frame questions.
	Background string    `json:"background,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// newSession orders the gaps by descending weight (stable, so input order
// breaks ties) and zeroes every confidence.
func newSession(workflowID string, gaps []string, weights map[string]float64, background string) *Session {
	ordered := make([]string, len(gaps))
	copy(ordered, gaps)
	sort.SliceStable(ordered, func(i, j int) bool {
		return weights[ordered[i]] > weights[ordered[j]]
	})

	confidences := make(map[string]float64, len(ordered))
	for _, gap := range ordered {
		confidences[gap] = 0
	}

	now := time.Now().UTC()
	return &Session{
		WorkflowID:  workflowID,
		Gaps:        ordered,
		Weights:     weights,
		Confidences: confidences,
		Evidence:    make(map[string][]string, len(ordered)),
		Background:  background,
		Status:      StatusAwaitingAnswer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// nextUnsatisfied returns the highest-weight gap whose confidence is below
// the threshold, or "" when every gap is satisfied. Gaps are already ordered
// by priority.
func (s *Session) nextUnsatisfied(threshold float64) string {
	for _, gap := range s.Gaps {
		if s.Confidences[gap] < threshold {
			return gap
		}
	}
	return ""
}

func (s *Session) appendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
}
