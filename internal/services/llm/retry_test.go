package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
)

// stubProvider returns scripted results in sequence. Once the script is
// spent, the last entry repeats.
type stubProvider struct {
	name    interfaces.ProviderName
	script  []stubResult
	calls   int
	healthy bool
}

type stubResult struct {
	text string
	err  error
}

func (p *stubProvider) Name() interfaces.ProviderName { return p.name }

func (p *stubProvider) Generate(ctx context.Context, prompt *models.GroundedPrompt) (string, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	r := p.script[idx]
	return r.text, r.err
}

func (p *stubProvider) HealthCheck(ctx context.Context) error {
	if !p.healthy {
		return errors.New("unhealthy")
	}
	return nil
}

func (p *stubProvider) Close() error { return nil }

func newTestCoordinator(providers ...interfaces.Provider) *Coordinator {
	c := NewCoordinator(providers, NewDefaultRetryPolicy(), arbor.NewLogger())
	// Deterministic and instant for tests
	c.sleep = func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	c.jitter = func() float64 { return 0 }
	return c
}

func testPrompt() *models.GroundedPrompt {
	return &models.GroundedPrompt{
		SystemInstructions: "answer from context",
		ContextBlock:       "Source: ch1.md\nSome passage.",
		Question:           "What happens in chapter one?",
	}
}

func TestCoordinator_PrimarySucceedsFirstTry(t *testing.T) {
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{text: "the answer"}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{text: "unused"}}}

	c := newTestCoordinator(primary, secondary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Text)
	assert.Equal(t, interfaces.ProviderGemini, result.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.OutcomeSuccess, result.Attempts[0].Outcome)
}

func TestCoordinator_RateLimitedRetriesThenSucceeds(t *testing.T) {
	rateLimited := errors.New("Error 429: RESOURCE_EXHAUSTED")
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{
		{err: rateLimited},
		{err: rateLimited},
		{text: "recovered"},
	}}

	c := newTestCoordinator(primary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.Equal(t, 3, primary.calls)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, models.OutcomeRateLimited, result.Attempts[0].Outcome)
	assert.Equal(t, models.OutcomeRateLimited, result.Attempts[1].Outcome)
	assert.Equal(t, models.OutcomeSuccess, result.Attempts[2].Outcome)
}

func TestCoordinator_PrimaryExhaustedFallsBackToSecondary(t *testing.T) {
	rateLimited := errors.New("Error 429: quota exceeded")
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{err: rateLimited}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{text: "fallback answer"}}}

	c := newTestCoordinator(primary, secondary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.NoError(t, err)
	assert.Equal(t, "fallback answer", result.Text)
	assert.Equal(t, interfaces.ProviderClaude, result.Provider)
	// Primary used its full attempt budget before falling back
	assert.Equal(t, DefaultMaxAttempts, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestCoordinator_AuthErrorSkipsToNextProviderImmediately(t *testing.T) {
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{err: errors.New("Error 401: API key not valid")}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{text: "fallback answer"}}}

	c := newTestCoordinator(primary, secondary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.NoError(t, err)
	assert.Equal(t, "fallback answer", result.Text)
	// No retry against a provider with a bad key
	assert.Equal(t, 1, primary.calls)
}

func TestCoordinator_MalformedResponseSkipsToNextProvider(t *testing.T) {
	malformed := &ProviderError{
		Provider: interfaces.ProviderGemini,
		Kind:     ErrorKindMalformed,
		Err:      errors.New("no text in Gemini response"),
	}
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{err: malformed}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{text: "fallback answer"}}}

	c := newTestCoordinator(primary, secondary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.NoError(t, err)
	assert.Equal(t, "fallback answer", result.Text)
	assert.Equal(t, 1, primary.calls)
}

func TestCoordinator_AllProvidersExhausted(t *testing.T) {
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{err: errors.New("Error 429: quota")}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{err: errors.New("Error 401: invalid x-api-key")}}}

	c := newTestCoordinator(primary, secondary)
	result, err := c.Generate(context.Background(), testPrompt())

	require.Nil(t, result)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.LastErrors, 2)
	assert.Equal(t, ErrorKindRateLimited, exhausted.LastErrors[0].Kind)
	assert.Equal(t, ErrorKindAuth, exhausted.LastErrors[1].Kind)

	assert.Equal(t, DefaultMaxAttempts, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestCoordinator_ContextCanceledMidBackoff(t *testing.T) {
	rateLimited := errors.New("Error 429: quota exceeded")
	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{err: rateLimited}}}
	secondary := &stubProvider{name: interfaces.ProviderClaude, script: []stubResult{{text: "never reached"}}}

	ctx, cancel := context.WithCancel(context.Background())

	c := newTestCoordinator(primary, secondary)
	c.sleep = func(sleepCtx context.Context, d time.Duration) error {
		// Simulate the deadline arriving during the first backoff
		cancel()
		return sleepCtx.Err()
	}

	result, err := c.Generate(ctx, testPrompt())

	require.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestCoordinator_ExpiredContextMakesNoAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &stubProvider{name: interfaces.ProviderGemini, script: []stubResult{{text: "unused"}}}
	c := newTestCoordinator(primary)

	result, err := c.Generate(ctx, testPrompt())

	require.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, primary.calls)
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	policy := &RetryPolicy{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
	}

	noJitter := func() float64 { return 0 }

	assert.Equal(t, 500*time.Millisecond, policy.CalculateBackoff(0, 0, noJitter))
	assert.Equal(t, 1*time.Second, policy.CalculateBackoff(1, 0, noJitter))
	assert.Equal(t, 2*time.Second, policy.CalculateBackoff(2, 0, noJitter))
	// Capped at MaxBackoff
	assert.Equal(t, 8*time.Second, policy.CalculateBackoff(10, 0, noJitter))
}

func TestRetryPolicy_CalculateBackoff_APIDelayWins(t *testing.T) {
	policy := NewDefaultRetryPolicy()
	noJitter := func() float64 { return 0 }

	backoff := policy.CalculateBackoff(0, 3*time.Second, noJitter)
	assert.Equal(t, 3*time.Second, backoff)
}

func TestRetryPolicy_CalculateBackoff_JitterReducesDelay(t *testing.T) {
	policy := &RetryPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.25,
	}

	fullJitter := func() float64 { return 1.0 }
	backoff := policy.CalculateBackoff(0, 0, fullJitter)
	assert.Equal(t, 750*time.Millisecond, backoff)
}

func TestCoordinator_HealthCheckAnyProviderUp(t *testing.T) {
	primary := &stubProvider{name: interfaces.ProviderGemini}
	secondary := &stubProvider{name: interfaces.ProviderClaude, healthy: true}

	coordinator := newTestCoordinator(primary, secondary)

	assert.NoError(t, coordinator.HealthCheck(context.Background()))
}

func TestCoordinator_HealthCheckAllProvidersDown(t *testing.T) {
	primary := &stubProvider{name: interfaces.ProviderGemini}
	secondary := &stubProvider{name: interfaces.ProviderClaude}

	coordinator := newTestCoordinator(primary, secondary)
	err := coordinator.HealthCheck(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider available")
}

func TestCoordinator_HealthCheckNoProviders(t *testing.T) {
	coordinator := newTestCoordinator()

	assert.Error(t, coordinator.HealthCheck(context.Background()))
}
