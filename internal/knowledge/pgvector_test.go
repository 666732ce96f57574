// internal/knowledge/pgvector_test.go
package knowledge

import (
	"context"
	"testing"

	"scholarship-pipeline/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, assert.AnError
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestStore(t *testing.T) (*PgvectorStore, sqlmock.Sqlmock, *fakeEmbedder) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	embedder := &fakeEmbedder{}
	return NewPgvectorStore(db, embedder, logger.NewNoOpLogger()), mock, embedder
}

// ==========================
// Index Tests
// ==========================

func TestPgvectorStore_Index(t *testing.T) {
	store, mock, embedder := newTestStore(t)

	mock.ExpectExec("INSERT INTO knowledge_fragments").
		WithArgs("session-1", "fragment one", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO knowledge_fragments").
		WithArgs("session-1", "fragment two", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))

	err := store.Index(context.Background(), "session-1", []string{"fragment one", "fragment two"})
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgvectorStore_Index_MissingSession(t *testing.T) {
	store, _, _ := newTestStore(t)
	err := store.Index(context.Background(), "", []string{"fragment"})
	assert.ErrorIs(t, err, ErrMissingSession)
}

func TestPgvectorStore_Index_EmbedFailure(t *testing.T) {
	store, _, embedder := newTestStore(t)
	embedder.fail = true

	err := store.Index(context.Background(), "session-1", []string{"fragment"})
	assert.Error(t, err)
}

// ==========================
// Query Tests
// ==========================

func TestPgvectorStore_Query(t *testing.T) {
	store, mock, _ := newTestStore(t)

	rows := sqlmock.NewRows([]string{"content", "distance"}).
		AddRow("closest fragment", 0.12).
		AddRow("next fragment", 0.48)
	mock.ExpectQuery("SELECT content, embedding").
		WithArgs(sqlmock.AnyArg(), "session-1", 3).
		WillReturnRows(rows)

	fragments, err := store.Query(context.Background(), "research experience", "session-1", 3)
	require.NoError(t, err)

	require.Len(t, fragments, 2)
	assert.Equal(t, "closest fragment", fragments[0].Content)
	assert.InDelta(t, 0.12, fragments[0].Distance, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgvectorStore_Query_SessionFilterRequired(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Query(context.Background(), "research", "", 3)
	assert.ErrorIs(t, err, ErrMissingSession)
}

func TestPgvectorStore_Query_EmptyText(t *testing.T) {
	store, _, _ := newTestStore(t)
	_, err := store.Query(context.Background(), "", "session-1", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestPgvectorStore_Query_DefaultsK(t *testing.T) {
	store, mock, _ := newTestStore(t)

	mock.ExpectQuery("SELECT content, embedding").
		WithArgs(sqlmock.AnyArg(), "session-1", 3).
		WillReturnRows(sqlmock.NewRows([]string{"content", "distance"}))

	fragments, err := store.Query(context.Background(), "research", "session-1", 0)
	require.NoError(t, err)
	assert.Empty(t, fragments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
