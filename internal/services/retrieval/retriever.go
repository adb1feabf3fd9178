package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
)

// payloadTextKeys are the payload fields checked, in order, for passage
// text. Different ingestion tools store chunks under different keys.
var payloadTextKeys = []string{"text", "chunk", "content", "page_content", "body"}

// Service implements the Retriever interface over a Qdrant collection.
// Query text is embedded via the shared Embedder, then searched with the
// configured top-k and score threshold.
type Service struct {
	client         *QdrantClient
	embedder       interfaces.Embedder
	logger         arbor.ILogger
	collection     string
	topK           int
	scoreThreshold float64
}

// NewService creates a retrieval service over the configured collection
func NewService(config *common.QdrantConfig, embedder interfaces.Embedder, logger arbor.ILogger) *Service {
	client := NewQdrantClient(
		WithBaseURL(config.BaseURL),
		WithAPIKey(config.APIKey),
		WithTimeout(common.ParseDuration(config.Timeout, DefaultTimeout)),
		WithRateLimit(common.ParseDuration(config.RateLimit, DefaultRateLimit)),
		WithLogger(logger),
	)

	topK := config.TopK
	if topK <= 0 {
		topK = 5
	}

	return &Service{
		client:         client,
		embedder:       embedder,
		logger:         logger,
		collection:     config.Collection,
		topK:           topK,
		scoreThreshold: config.ScoreThreshold,
	}
}

// NewServiceWithClient creates a retrieval service with an explicit client.
// Used by tests to point the service at a local HTTP server.
func NewServiceWithClient(client *QdrantClient, embedder interfaces.Embedder, collection string, topK int, scoreThreshold float64, logger arbor.ILogger) *Service {
	return &Service{
		client:         client,
		embedder:       embedder,
		logger:         logger,
		collection:     collection,
		topK:           topK,
		scoreThreshold: scoreThreshold,
	}
}

// Retrieve embeds the query text and searches the index. Results come back
// ordered by descending score; an empty result is not an error.
func (s *Service) Retrieve(ctx context.Context, query string) ([]models.RetrievedPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	startTime := time.Now()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := s.client.Query(ctx, s.collection, vector, s.topK, s.scoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	passages := make([]models.RetrievedPassage, 0, len(points))
	for _, point := range points {
		content := extractContent(point.Payload)
		if content == "" {
			// Point has no usable text payload, skip it
			continue
		}
		passages = append(passages, models.RetrievedPassage{
			Content: content,
			Source:  extractSource(&point),
			Score:   point.Score,
		})
	}

	s.logger.Debug().
		Int("hits", len(points)).
		Int("passages", len(passages)).
		Dur("duration", time.Since(startTime)).
		Msg("Retrieval completed")

	return passages, nil
}

// HealthCheck verifies the collection exists and is reachable
func (s *Service) HealthCheck(ctx context.Context) error {
	if _, err := s.client.CollectionInfo(ctx, s.collection); err != nil {
		return fmt.Errorf("collection %s is not reachable: %w", s.collection, err)
	}
	return nil
}

// extractContent pulls the passage text out of a point payload, checking
// the known key names in preference order.
func extractContent(payload map[string]interface{}) string {
	for _, key := range payloadTextKeys {
		if value, ok := payload[key]; ok {
			if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
				return text
			}
		}
	}
	return ""
}

// extractSource pulls the source identifier from a point payload, falling
// back to the point ID when ingestion recorded no source.
func extractSource(point *ScoredPoint) string {
	if value, ok := point.Payload["source"]; ok {
		if source, ok := value.(string); ok && strings.TrimSpace(source) != "" {
			return source
		}
	}
	return point.IDString()
}
