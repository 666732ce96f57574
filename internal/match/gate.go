// internal/match/gate.go
package match

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"scholarship-pipeline/internal/common/config"
	"scholarship-pipeline/internal/common/errors"
	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/common/metrics"
	"scholarship-pipeline/internal/knowledge"

	"github.com/redis/go-redis/v9"
)

// CriterionWeight is one named criterion with its relative weight. A
// workflow's set is expected to sum to 1.0; Evaluate normalizes regardless.
type CriterionWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// CriterionDetail is the per-criterion evaluation result.
type CriterionDetail struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Evaluation is the gate's decision. Gaps are ordered descending by weight;
// that order is consumed directly as interview priority.
type Evaluation struct {
	Score            float64                    `json:"score"`
	TriggerInterview bool                       `json:"triggerInterview"`
	Gaps             []string                   `json:"gaps"`
	Details          map[string]CriterionDetail `json:"details"`
}

// Gate scores a criterion set against the session's knowledge base evidence
// and decides whether an interview is needed.
type Gate struct {
	store  knowledge.Store
	redis  *redis.Client
	config config.MatchConfig
	logger logger.Logger
}

func NewGate(store knowledge.Store, rdb *redis.Client, cfg config.MatchConfig, log logger.Logger) *Gate {
	return &Gate{
		store:  store,
		redis:  rdb,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "match-gate"}),
	}
}

// Evaluate runs one knowledge base query per criterion (bounded fan-out),
// aggregates a weight-normalized overall score, and names the gaps. A failed
// query counts as a zero-score result; the gate never returns partial
// results. Gap ties preserve the input order of criteria.
func (g *Gate) Evaluate(ctx context.Context, criteria []CriterionWeight, sessionID string) (*Evaluation, error) {
	if len(criteria) == 0 {
		return &Evaluation{Details: map[string]CriterionDetail{}}, nil
	}

	scores := make([]float64, len(criteria))

	sem := make(chan struct{}, g.queryConcurrency())
	var wg sync.WaitGroup
	for i, cw := range criteria {
		wg.Add(1)
		go func(i int, cw CriterionWeight) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			scores[i] = g.scoreCriterion(ctx, cw.Name, sessionID)
		}(i, cw)
	}
	wg.Wait()

	var totalWeight float64
	for _, cw := range criteria {
		totalWeight += cw.Weight
	}

	details := make(map[string]CriterionDetail, len(criteria))
	var overall float64
	for i, cw := range criteria {
		normalized := cw.Weight
		if totalWeight > 0 {
			normalized = cw.Weight / totalWeight
		}
		overall += scores[i] * normalized
		details[cw.Name] = CriterionDetail{Score: scores[i], Weight: normalized}
	}

	gaps := g.findGaps(criteria, scores, totalWeight)
	trigger := overall < g.config.PassThreshold

	g.logger.Info("match evaluation complete", map[string]interface{}{
		"sessionId":        sessionID,
		"score":            overall,
		"gaps":             gaps,
		"triggerInterview": trigger,
	})

	return &Evaluation{
		Score:            overall,
		TriggerInterview: trigger,
		Gaps:             gaps,
		Details:          details,
	}, nil
}

// EvaluateWeights adapts an unordered weight map; keys are sorted so repeated
// calls are deterministic.
func (g *Gate) EvaluateWeights(ctx context.Context, weights map[string]float64, sessionID string) (*Evaluation, error) {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	criteria := make([]CriterionWeight, 0, len(names))
	for _, name := range names {
		criteria = append(criteria, CriterionWeight{Name: name, Weight: weights[name]})
	}
	return g.Evaluate(ctx, criteria, sessionID)
}

// scoreCriterion queries the knowledge base for one criterion and converts
// the best distance to a bounded similarity score. Failures are absorbed as
// zero so a single flaky query cannot abort the gate.
func (g *Gate) scoreCriterion(ctx context.Context, criterion, sessionID string) float64 {
	if score, ok := g.cachedScore(ctx, criterion, sessionID); ok {
		return score
	}

	fragments, err := g.store.Query(ctx, criterion, sessionID, g.config.TopK)
	if err != nil {
		metrics.KnowledgeQueryFailures.Inc()
		serr := errors.NewKnowledgeQueryFailedError(criterion, err)
		g.logger.Warn("knowledge query failed, scoring criterion as zero", map[string]interface{}{
			"criterion": criterion,
			"sessionId": sessionID,
			"error":     serr.Error(),
			"details":   serr.Details,
		})
		return 0
	}
	if len(fragments) == 0 {
		return 0
	}

	best := fragments[0].Distance
	for _, f := range fragments[1:] {
		if f.Distance < best {
			best = f.Distance
		}
	}

	score := 1.0 / (1.0 + best*g.config.DistanceScale)
	score = clamp01(score)

	g.cacheScore(ctx, criterion, sessionID, score)
	return score
}

// findGaps names criteria that matter (weight above the relevance floor) yet
// lack evidence (score below the gap floor), ordered descending by weight.
// The gap floor is independent from, and stricter than, the pass threshold;
// a low overall score with zero named gaps is accepted behavior.
func (g *Gate) findGaps(criteria []CriterionWeight, scores []float64, totalWeight float64) []string {
	type gap struct {
		name   string
		weight float64
	}
	var found []gap
	for i, cw := range criteria {
		normalized := cw.Weight
		if totalWeight > 0 {
			normalized = cw.Weight / totalWeight
		}
		if normalized > g.config.MinRelevance && scores[i] < g.config.GapFloor {
			found = append(found, gap{name: cw.Name, weight: normalized})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].weight > found[j].weight
	})

	names := make([]string, len(found))
	for i, gp := range found {
		names[i] = gp.name
	}
	return names
}

func (g *Gate) queryConcurrency() int {
	if g.config.QueryConcurrency > 0 {
		return g.config.QueryConcurrency
	}
	return 4
}

func (g *Gate) cachedScore(ctx context.Context, criterion, sessionID string) (float64, bool) {
	if g.redis == nil {
		return 0, false
	}
	val, err := g.redis.Get(ctx, scoreCacheKey(sessionID, criterion)).Result()
	if err != nil {
		return 0, false
	}
	var cached struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return 0, false
	}
	return cached.Score, true
}

func (g *Gate) cacheScore(ctx context.Context, criterion, sessionID string, score float64) {
	if g.redis == nil {
		return
	}
	data, _ := json.Marshal(struct {
		Score float64 `json:"score"`
	}{Score: score})
	g.redis.Set(ctx, scoreCacheKey(sessionID, criterion), data, g.config.CacheTTL)
}

func scoreCacheKey(sessionID, criterion string) string {
	return "match:score:" + sessionID + ":" + criterion
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
