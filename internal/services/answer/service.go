package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
	"github.com/ternarybob/liber/internal/services/llm"
)

// generator abstracts the retry coordinator so tests can script outcomes
type generator interface {
	Generate(ctx context.Context, prompt *models.GroundedPrompt) (*llm.GenerationResult, error)
	HealthCheck(ctx context.Context) error
}

// answerRequest is the validated shape of an incoming query
type answerRequest struct {
	Query     string `validate:"required"`
	SessionID string `validate:"max=256"`
}

// Service implements the AnswerService interface. One call runs the whole
// pipeline: validate, retrieve, compose, generate, attribute sources.
type Service struct {
	retriever         interfaces.Retriever
	composer          *Composer
	coordinator       generator
	logger            arbor.ILogger
	validate          *validator.Validate
	maxQueryLength    int
	retrievalAttempts int
}

// NewService creates the answer pipeline from its parts
func NewService(cfg *common.AnswerConfig, retriever interfaces.Retriever, coordinator *llm.Coordinator, logger arbor.ILogger) *Service {
	maxQueryLength := cfg.MaxQueryLength
	if maxQueryLength <= 0 {
		maxQueryLength = 4000
	}
	retrievalAttempts := cfg.RetrievalAttempts
	if retrievalAttempts <= 0 {
		retrievalAttempts = 3
	}

	return &Service{
		retriever:         retriever,
		composer:          NewComposer(cfg.MaxContextChars),
		coordinator:       coordinator,
		logger:            logger,
		validate:          validator.New(),
		maxQueryLength:    maxQueryLength,
		retrievalAttempts: retrievalAttempts,
	}
}

// Answer processes a single query through the full pipeline.
//
// The result always echoes the caller's session ID. An empty retrieval is a
// degraded success: the fixed no-information message comes back with no
// sources and no provider call is made.
func (s *Service) Answer(ctx context.Context, query *models.Query) (*models.AnswerResult, error) {
	startTime := time.Now()

	trimmed := strings.TrimSpace(query.Text)
	if err := s.validateQuery(trimmed, query.SessionID); err != nil {
		return nil, &PipelineError{Kind: FailureInvalidInput, Err: err}
	}

	passages, err := s.retrieveWithRetry(ctx, trimmed)
	if err != nil {
		if isContextError(ctx, err) {
			return nil, &PipelineError{Kind: FailureDeadlineExceeded, Err: err}
		}
		return nil, &PipelineError{Kind: FailureRetrievalUnavailable, Err: err}
	}

	// Empty corpus or nothing above threshold: answer without a provider call
	if len(passages) == 0 {
		s.logger.Info().
			Str("session_id", query.SessionID).
			Dur("duration", time.Since(startTime)).
			Msg("No relevant passages, returning no-information answer")
		return &models.AnswerResult{
			ResponseText: NoInfoMessage,
			Sources:      []string{},
			SessionID:    query.SessionID,
		}, nil
	}

	prompt := s.composer.Compose(trimmed, passages)

	generation, err := s.coordinator.Generate(ctx, prompt)
	if err != nil {
		if isContextError(ctx, err) {
			return nil, &PipelineError{Kind: FailureDeadlineExceeded, Err: err}
		}
		return nil, &PipelineError{Kind: FailureProvidersExhausted, Err: err}
	}

	result := &models.AnswerResult{
		ResponseText: generation.Text,
		Sources:      collectSources(prompt.Passages),
		SessionID:    query.SessionID,
		Provider:     string(generation.Provider),
	}

	s.logger.Info().
		Str("provider", result.Provider).
		Int("sources", len(result.Sources)).
		Int("attempts", len(generation.Attempts)).
		Dur("duration", time.Since(startTime)).
		Msg("Query answered")

	return result, nil
}

// HealthCheck verifies the vector index is reachable and at least one
// provider in the chain can serve a request.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.retriever.HealthCheck(ctx); err != nil {
		return fmt.Errorf("vector index unavailable: %w", err)
	}
	if err := s.coordinator.HealthCheck(ctx); err != nil {
		return fmt.Errorf("provider chain unavailable: %w", err)
	}
	return nil
}

// validateQuery applies the request constraints
func (s *Service) validateQuery(text, sessionID string) error {
	if text == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(text) > s.maxQueryLength {
		return fmt.Errorf("query exceeds maximum length of %d characters", s.maxQueryLength)
	}
	req := answerRequest{Query: text, SessionID: sessionID}
	if err := s.validate.Struct(&req); err != nil {
		return err
	}
	return nil
}

// retrieveWithRetry makes a bounded number of attempts against the vector
// index. Retrieval failures are infrastructure problems, so there is no
// backoff beyond a short fixed pause.
func (s *Service) retrieveWithRetry(ctx context.Context, query string) ([]models.RetrievedPassage, error) {
	var lastErr error
	for attempt := 0; attempt < s.retrievalAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		passages, err := s.retriever.Retrieve(ctx, query)
		if err == nil {
			return passages, nil
		}
		lastErr = err
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", s.retrievalAttempts).
			Msg("Retrieval attempt failed")
	}
	return nil, fmt.Errorf("retrieval failed after %d attempts: %w", s.retrievalAttempts, lastErr)
}

// collectSources returns the unique source identifiers of the prompt's
// passages in first-seen order.
func collectSources(passages []models.RetrievedPassage) []string {
	seen := make(map[string]struct{}, len(passages))
	sources := make([]string, 0, len(passages))
	for _, passage := range passages {
		if passage.Source == "" {
			continue
		}
		if _, ok := seen[passage.Source]; ok {
			continue
		}
		seen[passage.Source] = struct{}{}
		sources = append(sources, passage.Source)
	}
	return sources
}

// isContextError reports whether a pipeline step failed because the request
// context expired rather than because the step itself broke.
func isContextError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
