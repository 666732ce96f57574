// internal/knowledge/store.go
package knowledge

import (
	"context"
	"errors"
)

var (
	ErrEmptyQuery = errors.New("query text cannot be empty")
	// ErrMissingSession guards the isolation boundary: a query without a
	// session filter would leak fragments across workflows.
	ErrMissingSession = errors.New("session id is required")
)

// Fragment is one ranked result of a similarity query. Distance is the raw
// backend distance; smaller means more similar.
type Fragment struct {
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

// Store is the knowledge base consumed by the pipeline. Every query is
// scoped to a single session; backends must enforce the filter on every
// request.
type Store interface {
	Index(ctx context.Context, sessionID string, fragments []string) error
	Query(ctx context.Context, text, sessionID string, k int) ([]Fragment, error)
}
