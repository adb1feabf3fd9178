package interfaces

import (
	"context"

	"github.com/ternarybob/liber/internal/models"
)

// AnswerService defines the interface for the end-to-end question answering
// pipeline: retrieval, prompt composition, provider generation with retry and
// fallback, and source attribution.
type AnswerService interface {
	// Answer processes a single query through the full pipeline and returns
	// the final result. Failures are reported as *answer.PipelineError so
	// transport layers can map them to status codes.
	Answer(ctx context.Context, query *models.Query) (*models.AnswerResult, error)

	// HealthCheck verifies the pipeline's dependencies (vector index and at
	// least one provider in the chain) are operational.
	HealthCheck(ctx context.Context) error
}
