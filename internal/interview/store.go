// internal/interview/store.go
package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"scholarship-pipeline/internal/checkpoint"
)

// Store persists interview sessions in the same checkpoint store as workflow
// state, under their own key, so answers arriving hours later can resume the
// session from cold storage rather than a process-local map.
type Store struct {
	checkpoints checkpoint.Store
}

func NewStore(checkpoints checkpoint.Store) *Store {
	return &Store{checkpoints: checkpoints}
}

func sessionKey(workflowID string) string {
	return "interview:" + workflowID
}

func (s *Store) Save(ctx context.Context, session *Session) error {
	blob, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.checkpoints.Save(ctx, sessionKey(session.WorkflowID), blob)
}

func (s *Store) Load(ctx context.Context, workflowID string) (*Session, error) {
	blob, err := s.checkpoints.Load(ctx, sessionKey(workflowID))
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(blob, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
