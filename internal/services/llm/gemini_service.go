package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
	"google.golang.org/genai"
)

// GeminiService implements the primary Provider using the Google Gemini API.
// It also implements Embedder so the retrieval layer can share the client.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiService creates a new Gemini provider instance.
//
// Parameters:
//   - config: Gemini configuration with API key and model settings
//   - logger: Structured logger for service operations
//
// Returns:
//   - *GeminiService: Initialized service ready for use
//   - error: nil on success, error with details on failure
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini provider (set via GEMINI_API_KEY, LIBER_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	// Set default model names if not specified
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "gemini-embedding-001"
	}
	if config.EmbeddingDim <= 0 {
		config.EmbeddingDim = 768
	}

	timeout := common.ParseDuration(config.Timeout, 2*time.Minute)

	// Initialize genai client
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Info().
		Str("model", config.Model).
		Str("embedding_model", config.EmbeddingModel).
		Int("embedding_dim", config.EmbeddingDim).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized successfully")

	return service, nil
}

// Name returns the provider identifier
func (s *GeminiService) Name() interfaces.ProviderName {
	return interfaces.ProviderGemini
}

// Generate sends the grounded prompt to Gemini and returns the response text.
// Failures are classified into the shared provider error taxonomy.
func (s *GeminiService) Generate(ctx context.Context, prompt *models.GroundedPrompt) (string, error) {
	if prompt == nil || prompt.Question == "" {
		return "", &ProviderError{Provider: s.Name(), Kind: ErrorKindMalformed, Err: fmt.Errorf("prompt question cannot be empty")}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("context_length", len(prompt.ContextBlock)).
		Int("passages", len(prompt.Passages)).
		Msg("Starting Gemini generation")

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if prompt.SystemInstructions != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.SystemInstructions, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt.UserMessage(), genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Dur("duration", time.Since(startTime)).
			Msg("Gemini generation failed")
		return "", Classify(s.Name(), err)
	}

	// Extract text from response - iterate candidates until non-empty text is found
	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if strings.TrimSpace(response.String()) == "" {
		return "", &ProviderError{Provider: s.Name(), Kind: ErrorKindMalformed, Err: fmt.Errorf("no text in Gemini response")}
	}

	s.logger.Info().
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini generation completed")

	return response.String(), nil
}

// Embed generates an embedding vector for the given text using the
// configured embedding model and output dimensionality.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outputDim := int32(s.config.EmbeddingDim)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := s.client.Models.EmbedContent(timeoutCtx, s.config.EmbeddingModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}

	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	if len(embedding) != s.config.EmbeddingDim {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.config.EmbeddingDim, len(embedding))
	}

	return embedding, nil
}

// HealthCheck verifies the client is initialized. It deliberately avoids
// generation probes so health polls do not consume quota.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}
	if s.config.APIKey == "" {
		return fmt.Errorf("Gemini API key is not configured")
	}
	return nil
}

// Close releases resources. The genai.Client doesn't require explicit
// cleanup beyond clearing the reference.
func (s *GeminiService) Close() error {
	s.logger.Info().Msg("Closing Gemini provider")
	s.client = nil
	return nil
}
