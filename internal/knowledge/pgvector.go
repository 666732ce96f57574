// internal/knowledge/pgvector.go
package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/genai"

	"github.com/pgvector/pgvector-go"
)

// PgvectorStore keeps fragments in a postgres table with a pgvector column.
//
//	CREATE TABLE knowledge_fragments (
//	    id         BIGSERIAL PRIMARY KEY,
//	    session_id TEXT NOT NULL,
//	    content    TEXT NOT NULL,
//	    embedding  vector(3072) NOT NULL
//	);
//	CREATE INDEX idx_knowledge_fragments_session ON knowledge_fragments (session_id);
type PgvectorStore struct {
	db       *sql.DB
	embedder genai.Embedder
	logger   logger.Logger
}

func NewPgvectorStore(db *sql.DB, embedder genai.Embedder, log logger.Logger) *PgvectorStore {
	return &PgvectorStore{
		db:       db,
		embedder: embedder,
		logger:   log.WithFields(map[string]interface{}{"component": "knowledge-pgvector"}),
	}
}

func (s *PgvectorStore) Index(ctx context.Context, sessionID string, fragments []string) error {
	if sessionID == "" {
		return ErrMissingSession
	}

	for _, fragment := range fragments {
		embedding, err := s.embedder.Embed(ctx, fragment)
		if err != nil {
			return fmt.Errorf("embed fragment: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO knowledge_fragments (session_id, content, embedding)
			VALUES ($1, $2, $3)`,
			sessionID, fragment, pgvector.NewVector(embedding))
		if err != nil {
			return fmt.Errorf("insert fragment: %w", err)
		}
	}

	s.logger.Debug("fragments indexed", map[string]interface{}{
		"sessionId": sessionID,
		"count":     len(fragments),
	})
	return nil
}

func (s *PgvectorStore) Query(ctx context.Context, text, sessionID string, k int) ([]Fragment, error) {
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if k <= 0 {
		k = 3
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, embedding <=> $1 AS distance
		FROM knowledge_fragments
		WHERE session_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), sessionID, k)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	var fragments []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.Content, &f.Distance); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		fragments = append(fragments, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}

	return fragments, nil
}
