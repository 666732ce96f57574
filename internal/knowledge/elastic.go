// internal/knowledge/elastic.go
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"scholarship-pipeline/internal/common/logger"
	"scholarship-pipeline/internal/genai"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticStore is the elasticsearch-backed knowledge base. Fragments are
// indexed with their embedding and a session_id keyword field; queries run a
// kNN search with a session term filter.
type ElasticStore struct {
	client   *elasticsearch.Client
	embedder genai.Embedder
	index    string
	logger   logger.Logger
}

func NewElasticStore(client *elasticsearch.Client, embedder genai.Embedder, index string, log logger.Logger) *ElasticStore {
	return &ElasticStore{
		client:   client,
		embedder: embedder,
		index:    index,
		logger:   log.WithFields(map[string]interface{}{"component": "knowledge-elastic"}),
	}
}

func (s *ElasticStore) Index(ctx context.Context, sessionID string, fragments []string) error {
	if sessionID == "" {
		return ErrMissingSession
	}

	for _, fragment := range fragments {
		embedding, err := s.embedder.Embed(ctx, fragment)
		if err != nil {
			return fmt.Errorf("embed fragment: %w", err)
		}

		doc := map[string]interface{}{
			"session_id": sessionID,
			"content":    fragment,
			"embedding":  embedding,
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal fragment: %w", err)
		}

		res, err := s.client.Index(
			s.index,
			bytes.NewReader(body),
			s.client.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("index fragment: %w", err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("index fragment: %s", res.Status())
		}
	}

	return nil
}

func (s *ElasticStore) Query(ctx context.Context, text, sessionID string, k int) ([]Fragment, error) {
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

	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   embedding,
			"k":              k,
			"num_candidates": k * 10,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{
					"session_id": sessionID,
				},
			},
		},
		"size": k,
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("knn search: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	fragments := make([]Fragment, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		// kNN cosine scores land in (0,1]; invert so smaller means closer,
		// matching the pgvector backend.
		distance := 1.0 - hit.Score
		if distance < 0 {
			distance = 0
		}
		fragments = append(fragments, Fragment{
			Content:  hit.Source.Content,
			Distance: distance,
		})
	}

	return fragments, nil
}
