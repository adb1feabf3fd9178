package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
)

// ClaudeService implements the fallback Provider using the Anthropic API
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	timeout   time.Duration
	maxTokens int
}

// NewClaudeService creates a new Claude provider instance.
//
// Parameters:
//   - config: Claude configuration with API key and model settings
//   - logger: Structured logger for service operations
//
// Returns:
//   - *ClaudeService: Initialized service ready for use
//   - error: nil on success, error with details on failure
func NewClaudeService(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude provider (set via ANTHROPIC_API_KEY, LIBER_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	// Set default model name if not specified
	if config.Model == "" {
		config.Model = "claude-haiku-3-5-20241022"
	}

	timeout := common.ParseDuration(config.Timeout, 2*time.Minute)

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	service := &ClaudeService{
		config:    config,
		logger:    logger,
		client:    client,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Info().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude provider initialized successfully")

	return service, nil
}

// Name returns the provider identifier
func (s *ClaudeService) Name() interfaces.ProviderName {
	return interfaces.ProviderClaude
}

// Generate sends the grounded prompt to Claude and returns the response text.
// Failures are classified into the shared provider error taxonomy.
func (s *ClaudeService) Generate(ctx context.Context, prompt *models.GroundedPrompt) (string, error) {
	if prompt == nil || prompt.Question == "" {
		return "", &ProviderError{Provider: s.Name(), Kind: ErrorKindMalformed, Err: fmt.Errorf("prompt question cannot be empty")}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("context_length", len(prompt.ContextBlock)).
		Int("passages", len(prompt.Passages)).
		Msg("Starting Claude generation")

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.UserMessage())),
		},
	}

	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}

	if prompt.SystemInstructions != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: prompt.SystemInstructions},
		}
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Dur("duration", time.Since(startTime)).
			Msg("Claude generation failed")
		return "", Classify(s.Name(), err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(response.String()) == "" {
		return "", &ProviderError{Provider: s.Name(), Kind: ErrorKindMalformed, Err: fmt.Errorf("no text in Claude response")}
	}

	s.logger.Info().
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude generation completed")

	return response.String(), nil
}

// HealthCheck verifies the client is configured. It deliberately avoids
// generation probes so health polls do not consume quota.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	if s.config.APIKey == "" {
		return fmt.Errorf("Claude API key is not configured")
	}
	return nil
}

// Close releases resources
func (s *ClaudeService) Close() error {
	s.logger.Info().Msg("Closing Claude provider")
	return nil
}
