package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
)

// RetryPolicy defines per-provider retry and backoff behavior for the
// coordinator. Backoff grows exponentially from InitialBackoff by Multiplier,
// is capped at MaxBackoff, and has a random jitter fraction applied so
// concurrent queries do not retry in lockstep.
type RetryPolicy struct {
	// MaxAttempts is the number of attempts per provider (default: 3)
	MaxAttempts int

	// InitialBackoff is the wait before the first retry (default: 500ms)
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff (default: 8s)
	MaxBackoff time.Duration

	// Multiplier is applied to backoff on each retry (default: 2.0)
	Multiplier float64

	// Jitter is the fraction of the delay randomized away (default: 0.25).
	// A delay d becomes a uniform pick from [d*(1-Jitter), d].
	Jitter float64
}

// Default retry constants for provider generation calls
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 8 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.25
)

// NewDefaultRetryPolicy returns a RetryPolicy with sensible defaults
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Multiplier:     DefaultMultiplier,
		Jitter:         DefaultJitter,
	}
}

// NewRetryPolicyFromConfig builds a policy from config values, falling back
// to defaults for anything unset or invalid.
func NewRetryPolicyFromConfig(cfg *common.RetryConfig) *RetryPolicy {
	policy := NewDefaultRetryPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	policy.InitialBackoff = common.ParseDuration(cfg.InitialBackoff, DefaultInitialBackoff)
	policy.MaxBackoff = common.ParseDuration(cfg.MaxBackoff, DefaultMaxBackoff)
	if cfg.Multiplier > 1.0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.Jitter >= 0 && cfg.Jitter < 1.0 {
		policy.Jitter = cfg.Jitter
	}
	return policy
}

// CalculateBackoff computes the backoff duration before retry number
// attempt (0-based). If apiDelay > 0 (from ExtractRetryDelay), it is used
// as the base instead of InitialBackoff. The result is capped at MaxBackoff
// before jitter is applied.
func (p *RetryPolicy) CalculateBackoff(attempt int, apiDelay time.Duration, jitterFn func() float64) time.Duration {
	base := p.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay
	}

	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= p.Multiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	if p.Jitter > 0 && jitterFn != nil {
		factor := 1.0 - p.Jitter*jitterFn()
		backoff = time.Duration(float64(backoff) * factor)
	}

	return backoff
}

// Coordinator drives generation attempts across an ordered provider chain.
// Each provider gets up to MaxAttempts tries; rate limit and transient
// errors back off and retry on the same provider, auth and malformed
// response errors skip straight to the next provider, and context expiry
// aborts immediately, including mid-backoff.
type Coordinator struct {
	providers []interfaces.Provider
	policy    *RetryPolicy
	logger    arbor.ILogger

	// sleep and jitter are injectable for tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// GenerationResult carries the coordinator's output with attempt bookkeeping
type GenerationResult struct {
	Text     string
	Provider interfaces.ProviderName
	Attempts []models.ProviderAttempt
}

// NewCoordinator creates a coordinator over an ordered provider chain.
// The first provider is primary; the rest are fallbacks in order.
func NewCoordinator(providers []interfaces.Provider, policy *RetryPolicy, logger arbor.ILogger) *Coordinator {
	if policy == nil {
		policy = NewDefaultRetryPolicy()
	}
	return &Coordinator{
		providers: providers,
		policy:    policy,
		logger:    logger,
		sleep:     sleepWithContext,
		jitter:    rand.Float64,
	}
}

// HealthCheck reports healthy when at least one provider in the chain is
// reachable. Individual provider failures are tolerated as long as the
// chain can still serve a request.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	if len(c.providers) == 0 {
		return fmt.Errorf("no providers configured")
	}

	var lastErr error
	for _, provider := range c.providers {
		err := provider.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("no provider available: %w", lastErr)
}

// sleepWithContext waits for d or until the context expires
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Generate runs the retry state machine over the provider chain.
//
// Returns the first successful response, or:
//   - ctx.Err() if the context expired at any point, including mid-backoff
//   - *ExhaustedError if every provider's attempt budget was spent
func (c *Coordinator) Generate(ctx context.Context, prompt *models.GroundedPrompt) (*GenerationResult, error) {
	result := &GenerationResult{}
	var lastErrors []*ProviderError

	for _, provider := range c.providers {
		text, perr := c.tryProvider(ctx, provider, prompt, result)
		if perr == nil {
			result.Text = text
			result.Provider = provider.Name()
			return result, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErrors = append(lastErrors, perr)
		c.logger.Warn().
			Str("provider", string(provider.Name())).
			Str("kind", string(perr.Kind)).
			Err(perr.Err).
			Msg("Provider exhausted, moving to next")
	}

	return nil, &ExhaustedError{LastErrors: lastErrors}
}

// tryProvider spends one provider's attempt budget. It returns the response
// text on success, or the final classified error once the budget is spent or
// a non-retryable error is seen.
func (c *Coordinator) tryProvider(ctx context.Context, provider interfaces.Provider, prompt *models.GroundedPrompt, result *GenerationResult) (string, *ProviderError) {
	var lastErr *ProviderError

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return "", classifyAbort(provider, ctx.Err(), lastErr)
		}

		started := time.Now()
		text, err := provider.Generate(ctx, prompt)
		latency := time.Since(started)

		if err == nil {
			result.Attempts = append(result.Attempts, models.ProviderAttempt{
				Provider:  string(provider.Name()),
				StartedAt: started,
				Outcome:   models.OutcomeSuccess,
				Latency:   latency,
			})
			return text, nil
		}

		perr := Classify(provider.Name(), err)
		lastErr = perr
		result.Attempts = append(result.Attempts, models.ProviderAttempt{
			Provider:  string(provider.Name()),
			StartedAt: started,
			Outcome:   attemptOutcome(perr),
			Latency:   latency,
		})

		c.logger.Debug().
			Str("provider", string(provider.Name())).
			Int("attempt", attempt+1).
			Int("max_attempts", c.policy.MaxAttempts).
			Str("kind", string(perr.Kind)).
			Err(perr.Err).
			Msg("Provider attempt failed")

		// Auth and malformed responses never recover on the same provider
		if !perr.Retryable() {
			return "", perr
		}

		// No backoff after the final attempt
		if attempt == c.policy.MaxAttempts-1 {
			break
		}

		apiDelay := time.Duration(0)
		if perr.Kind == ErrorKindRateLimited {
			apiDelay = ExtractRetryDelay(perr.Err)
		}
		backoff := c.policy.CalculateBackoff(attempt, apiDelay, c.jitter)

		c.logger.Debug().
			Str("provider", string(provider.Name())).
			Dur("backoff", backoff).
			Msg("Backing off before retry")

		if err := c.sleep(ctx, backoff); err != nil {
			// Context expired mid-backoff
			return "", classifyAbort(provider, err, lastErr)
		}
	}

	return "", lastErr
}

// classifyAbort wraps a context error so callers can distinguish an abort
// from an exhausted budget. The coordinator's Generate surfaces ctx.Err()
// directly; the wrapped error is only used when a provider loop ends early.
func classifyAbort(provider interfaces.Provider, ctxErr error, lastErr *ProviderError) *ProviderError {
	if lastErr != nil {
		return lastErr
	}
	return &ProviderError{Provider: provider.Name(), Kind: ErrorKindTransient, Err: ctxErr}
}

// attemptOutcome maps an error kind onto the attempt record outcome
func attemptOutcome(perr *ProviderError) models.AttemptOutcome {
	switch perr.Kind {
	case ErrorKindRateLimited:
		return models.OutcomeRateLimited
	case ErrorKindTransient:
		return models.OutcomeTransientError
	default:
		return models.OutcomeFatalError
	}
}
