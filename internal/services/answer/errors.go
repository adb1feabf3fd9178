package answer

import (
	"fmt"
	"net/http"
)

// FailureKind classifies pipeline failures for transport mapping
type FailureKind string

const (
	// FailureInvalidInput means the request failed validation
	FailureInvalidInput FailureKind = "invalid_input"

	// FailureRetrievalUnavailable means the vector index could not be
	// reached after the configured retrieval attempts
	FailureRetrievalUnavailable FailureKind = "retrieval_unavailable"

	// FailureProvidersExhausted means every provider's retry budget was
	// spent without a response
	FailureProvidersExhausted FailureKind = "providers_exhausted"

	// FailureDeadlineExceeded means the request's overall deadline expired
	FailureDeadlineExceeded FailureKind = "deadline_exceeded"
)

// PipelineError is the only error type the pipeline returns to callers
type PipelineError struct {
	Kind FailureKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// StatusCode maps the failure kind to an HTTP status code
func (e *PipelineError) StatusCode() int {
	switch e.Kind {
	case FailureInvalidInput:
		return http.StatusBadRequest
	case FailureRetrievalUnavailable, FailureProvidersExhausted:
		return http.StatusServiceUnavailable
	case FailureDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
