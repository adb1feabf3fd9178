package interfaces

import (
	"context"

	"github.com/ternarybob/liber/internal/models"
)

// ProviderName identifies an LLM provider
type ProviderName string

const (
	// ProviderGemini is the primary cloud provider (Google Gemini)
	ProviderGemini ProviderName = "gemini"

	// ProviderClaude is the secondary cloud provider (Anthropic Claude)
	ProviderClaude ProviderName = "claude"
)

// Provider defines the interface for a single LLM provider capable of
// answering a grounded prompt. Implementations wrap one vendor SDK each and
// translate vendor errors into the shared provider error taxonomy so the
// retry coordinator can treat providers uniformly.
type Provider interface {
	// Name returns the stable provider identifier used in logs, attempt
	// records, and persisted exchanges.
	Name() ProviderName

	// Generate sends the grounded prompt to the provider and returns the
	// response text. A nil error implies a non-empty response; an empty or
	// unparseable response is reported as a fatal provider error.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - prompt: Fully composed grounded prompt
	//
	// Returns:
	//   - string: Generated response text
	//   - error: *llm.ProviderError classifying the failure
	Generate(ctx context.Context, prompt *models.GroundedPrompt) (string, error)

	// HealthCheck verifies the provider client is configured and can reach
	// the vendor API. It must not perform a full generation.
	HealthCheck(ctx context.Context) error

	// Close releases underlying client resources
	Close() error
}
