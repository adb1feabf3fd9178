package interfaces

import (
	"context"

	"github.com/ternarybob/liber/internal/models"
)

// Retriever defines the interface for semantic passage retrieval against the
// vector index. Implementations embed the query text and search the index in
// a single call; callers never see raw vectors.
type Retriever interface {
	// Retrieve returns the passages most relevant to the query text, ordered
	// by descending similarity score. An empty result is not an error; it
	// means the index holds nothing above the relevance threshold.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - query: User query text to embed and search with
	//
	// Returns:
	//   - []models.RetrievedPassage: Matching passages, best first
	//   - error: Error if embedding or the index search fails
	Retrieve(ctx context.Context, query string) ([]models.RetrievedPassage, error)

	// HealthCheck verifies the vector index is reachable and the configured
	// collection exists.
	HealthCheck(ctx context.Context) error
}
