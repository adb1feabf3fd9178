package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/liber/internal/interfaces"
)

// ErrorKind classifies provider failures for retry decisions
type ErrorKind string

const (
	// ErrorKindRateLimited means the provider rejected the request for quota
	// reasons. Retryable on the same provider after backoff.
	ErrorKindRateLimited ErrorKind = "rate_limited"

	// ErrorKindTransient covers connection failures and 5xx responses.
	// Retryable on the same provider after backoff.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindAuth means the API key was rejected. Never retried on the
	// same provider; the coordinator moves straight to the next one.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindMalformed means the provider returned a response without
	// usable text. Not retried on the same provider.
	ErrorKindMalformed ErrorKind = "malformed"
)

// ProviderError wraps a vendor SDK error with a retry classification
type ProviderError struct {
	Provider interfaces.ProviderName
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the coordinator may retry the same provider
// after this error.
func (e *ProviderError) Retryable() bool {
	return e.Kind == ErrorKindRateLimited || e.Kind == ErrorKindTransient
}

// ExhaustedError is returned when every configured provider has been tried
// and none produced a response. LastErrors holds the final error seen per
// provider, in the order the providers were attempted.
type ExhaustedError struct {
	LastErrors []*ProviderError
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.LastErrors))
	for _, pe := range e.LastErrors {
		parts = append(parts, pe.Error())
	}
	return "all providers exhausted: " + strings.Join(parts, "; ")
}

// Classify wraps an SDK error as a ProviderError. Both vendor SDKs surface
// failures as opaque errors with the HTTP status and API status strings in
// the message, so classification is by message matching.
func Classify(provider interfaces.ProviderName, err error) *ProviderError {
	if pe, ok := err.(*ProviderError); ok {
		return pe
	}

	kind := ErrorKindTransient

	switch {
	case IsRateLimitError(err):
		kind = ErrorKindRateLimited
	case IsAuthError(err):
		kind = ErrorKindAuth
	}

	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit_error") ||
		strings.Contains(errStr, "quota")
}

// IsAuthError checks if an error indicates a rejected or missing API key
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "API key") ||
		strings.Contains(errStr, "API_KEY_INVALID") ||
		strings.Contains(errStr, "UNAUTHENTICATED") ||
		strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "authentication_error")
}

// IsTimeoutError checks if an error came from context cancellation or a
// network timeout rather than the provider itself.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a rate limit
// error. Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
