// internal/checkpoint/store.go
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scholarship-pipeline/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when no checkpoint exists for the id.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists whole-state blobs keyed by workflow id. Writes replace the
// previous blob (last-write-wins, no versioning); there is no partial update
// path. This is the sole recovery mechanism for suspended and crashed
// workflows.
//
//	CREATE TABLE workflow_checkpoints (
//	    workflow_id TEXT PRIMARY KEY,
//	    state       JSONB NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL
//	);
type Store interface {
	Save(ctx context.Context, workflowID string, blob []byte) error
	Load(ctx context.Context, workflowID string) ([]byte, error)
}

// PostgresStore implements Store on postgres with a redis read-through cache
// in front. Cache reads are best-effort and degrade to plain database
// access; a failed cache write invalidates the entry instead, so a stale
// blob can never shadow the row just written.
type PostgresStore struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewPostgresStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "checkpoint"}),
	}
}

func cacheKey(workflowID string) string {
	return "checkpoint:" + workflowID
}

func (s *PostgresStore) Save(ctx context.Context, workflowID string, blob []byte) error {
	if workflowID == "" {
		return fmt.Errorf("workflow id cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_checkpoints (workflow_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		workflowID, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey(workflowID), blob, s.cacheTTL).Err(); err != nil {
			s.logger.Warn("checkpoint cache write failed, invalidating entry", map[string]interface{}{
				"workflowId": workflowID,
				"error":      err.Error(),
			})
			// The previous blob is still cached at this point. If it cannot
			// be dropped either, the save must not report success: the next
			// Load would serve the stale checkpoint.
			if derr := s.redis.Del(ctx, cacheKey(workflowID)).Err(); derr != nil {
				return fmt.Errorf("invalidate checkpoint cache: %w", derr)
			}
		}
	}

	return nil
}

func (s *PostgresStore) Load(ctx context.Context, workflowID string) ([]byte, error) {
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey(workflowID)).Bytes(); err == nil {
			return val, nil
		}
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM workflow_checkpoints WHERE workflow_id = $1`,
		workflowID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if s.redis != nil {
		_ = s.redis.Set(ctx, cacheKey(workflowID), blob, s.cacheTTL).Err()
	}

	return blob, nil
}
