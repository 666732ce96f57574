// internal/match/gate_test.go
package match

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/knowledge"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() config.MatchConfig {
	return config.MatchConfig{
		PassThreshold:    0.7,
		GapFloor:         0.65,
		MinRelevance:     0.1,
		TopK:             3,
		DistanceScale:    2.0,
		QueryConcurrency: 4,
		CacheTTL:         10 * time.Minute,
	}
}

// fakeStore serves canned distances per criterion and records every query.
type fakeStore struct {
	mu        sync.Mutex
	distances map[string]float64
	failures  map[string]bool
	empty     map[string]bool
	queries   []fakeQuery
}

type fakeQuery struct {
	text      string
	sessionID string
	k         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		distances: make(map[string]float64),
		failures:  make(map[string]bool),
		empty:     make(map[string]bool),
	}
}

func (f *fakeStore) Index(ctx context.Context, sessionID string, fragments []string) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, text, sessionID string, k int) ([]knowledge.Fragment, error) {
	f.mu.Lock()
	f.queries = append(f.queries, fakeQuery{text: text, sessionID: sessionID, k: k})
	f.mu.Unlock()

	if f.failures[text] {
		return nil, fmt.Errorf("query backend unavailable")
	}
	if f.empty[text] {
		return nil, nil
	}
	d, ok := f.distances[text]
	if !ok {
		d = 10.0
	}
	return []knowledge.Fragment{
		{Content: "fragment for " + text, Distance: d + 0.5},
		{Content: "best fragment for " + text, Distance: d},
	}, nil
}

func newTestGate(store knowledge.Store, rdb *redis.Client) *Gate {
	return NewGate(store, rdb, createTestConfig(), logger.NewNoOpLogger())
}

// ==========================
// Core Functionality Tests
// ==========================

func TestGate_Evaluate_ScoreAggregation(t *testing.T) {
	store := newFakeStore()
	// distance 0 -> score 1.0, distance 2.0 with scale 2.0 -> score 0.2
	store.distances["research"] = 0
	store.distances["leadership"] = 2.0

	gate := newTestGate(store, nil)

	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "research", Weight: 0.5},
		{Name: "leadership", Weight: 0.5},
	}, "session-1")
	require.NoError(t, err)

	assert.InDelta(t, 0.6, eval.Score, 0.001)
	assert.True(t, eval.TriggerInterview)
	assert.Len(t, eval.Details, 2)
	assert.InDelta(t, 1.0, eval.Details["research"].Score, 0.001)
	assert.InDelta(t, 0.2, eval.Details["leadership"].Score, 0.001)
}

func TestGate_Evaluate_NormalizesWeights(t *testing.T) {
	store := newFakeStore()
	store.distances["a"] = 0
	store.distances["b"] = 0

	gate := newTestGate(store, nil)

	// Weights sum to 10, not 1; the perfect-evidence score must still be 1.0.
	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "a", Weight: 6},
		{Name: "b", Weight: 4},
	}, "session-1")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, eval.Score, 0.001)
	assert.InDelta(t, 0.6, eval.Details["a"].Weight, 0.001)
	assert.InDelta(t, 0.4, eval.Details["b"].Weight, 0.001)
	assert.False(t, eval.TriggerInterview)
}

func TestGate_Evaluate_EmptyCriteria(t *testing.T) {
	gate := newTestGate(newFakeStore(), nil)

	eval, err := gate.Evaluate(context.Background(), nil, "session-1")
	require.NoError(t, err)

	assert.Zero(t, eval.Score)
	assert.Empty(t, eval.Gaps)
	assert.False(t, eval.TriggerInterview)
}

func TestGate_Evaluate_QueryFailureScoresZero(t *testing.T) {
	store := newFakeStore()
	store.distances["research"] = 0
	store.failures["leadership"] = true

	gate := newTestGate(store, nil)

	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "research", Weight: 0.5},
		{Name: "leadership", Weight: 0.5},
	}, "session-1")
	require.NoError(t, err)

	assert.InDelta(t, 0.5, eval.Score, 0.001)
	assert.Zero(t, eval.Details["leadership"].Score)
	assert.Contains(t, eval.Gaps, "leadership")
}

func TestGate_Evaluate_NoResultsScoresZero(t *testing.T) {
	store := newFakeStore()
	store.empty["community"] = true

	gate := newTestGate(store, nil)

	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "community", Weight: 1.0},
	}, "session-1")
	require.NoError(t, err)

	assert.Zero(t, eval.Score)
	assert.Equal(t, []string{"community"}, eval.Gaps)
}

func TestGate_Evaluate_SessionFilterOnEveryQuery(t *testing.T) {
	store := newFakeStore()
	gate := newTestGate(store, nil)

	_, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "a", Weight: 0.3},
		{Name: "b", Weight: 0.3},
		{Name: "c", Weight: 0.4},
	}, "session-42")
	require.NoError(t, err)

	require.Len(t, store.queries, 3)
	for _, q := range store.queries {
		assert.Equal(t, "session-42", q.sessionID)
		assert.Equal(t, 3, q.k)
	}
}

// ==========================
// Gap Detection Tests
// ==========================

func TestGate_FindGaps_OrderingAndThresholds(t *testing.T) {
	store := newFakeStore()
	// All high distance -> all low scores.
	for _, name := range []string{"research", "leadership", "service", "minor"} {
		store.distances[name] = 5.0
	}
	store.distances["gpa"] = 0 // satisfied, not a gap

	gate := newTestGate(store, nil)

	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "service", Weight: 0.2},
		{Name: "gpa", Weight: 0.25},
		{Name: "research", Weight: 0.3},
		{Name: "leadership", Weight: 0.2},
		{Name: "minor", Weight: 0.05}, // below min relevance, never a gap
	}, "session-1")
	require.NoError(t, err)

	// Descending weight; the service/leadership tie keeps input order.
	assert.Equal(t, []string{"research", "service", "leadership"}, eval.Gaps)
}

func TestGate_FindGaps_LowScoreZeroGaps(t *testing.T) {
	store := newFakeStore()
	// Scores land between gapFloor and passThreshold: 1/(1+0.25*2) = 0.667.
	store.distances["a"] = 0.25
	store.distances["b"] = 0.25

	gate := newTestGate(store, nil)

	eval, err := gate.Evaluate(context.Background(), []CriterionWeight{
		{Name: "a", Weight: 0.5},
		{Name: "b", Weight: 0.5},
	}, "session-1")
	require.NoError(t, err)

	assert.True(t, eval.TriggerInterview, "overall below pass threshold")
	assert.Empty(t, eval.Gaps, "no criterion below the gap floor")
}

// ==========================
// Caching Tests
// ==========================

func TestGate_Evaluate_CachesCriterionScores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := newFakeStore()
	store.distances["research"] = 0

	gate := newTestGate(store, rdb)
	criteria := []CriterionWeight{{Name: "research", Weight: 1.0}}

	_, err := gate.Evaluate(context.Background(), criteria, "session-1")
	require.NoError(t, err)
	first := len(store.queries)

	_, err = gate.Evaluate(context.Background(), criteria, "session-1")
	require.NoError(t, err)

	assert.Equal(t, first, len(store.queries), "second evaluation should hit the cache")
}

func TestGate_Evaluate_CacheIsolatedBySession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := newFakeStore()
	gate := newTestGate(store, rdb)
	criteria := []CriterionWeight{{Name: "research", Weight: 1.0}}

	_, err := gate.Evaluate(context.Background(), criteria, "session-1")
	require.NoError(t, err)
	_, err = gate.Evaluate(context.Background(), criteria, "session-2")
	require.NoError(t, err)

	assert.Len(t, store.queries, 2, "different sessions must not share cached scores")
}

func TestGate_EvaluateWeights_Deterministic(t *testing.T) {
	store := newFakeStore()
	store.distances["a"] = 5.0
	store.distances["b"] = 5.0
	gate := newTestGate(store, nil)

	weights := map[string]float64{"b": 0.5, "a": 0.5}

	first, err := gate.EvaluateWeights(context.Background(), weights, "session-1")
	require.NoError(t, err)
	second, err := gate.EvaluateWeights(context.Background(), weights, "session-1")
	require.NoError(t, err)

	assert.Equal(t, first.Gaps, second.Gaps)
	assert.Equal(t, []string{"a", "b"}, first.Gaps, "map ties resolve by sorted name")
}
