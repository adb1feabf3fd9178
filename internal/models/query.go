package models

import (
	"time"
)

// Query represents a single user question submitted to the answer pipeline.
// It is immutable once constructed; the session ID is an opaque token echoed
// back to the caller and never interpreted.
type Query struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// RetrievedPassage is one passage returned from the vector index for a query.
// Passages are ordered by descending relevance score and live only for the
// duration of the query that produced them.
type RetrievedPassage struct {
	// Content is the passage text extracted from the index payload
	Content string `json:"content"`

	// Source identifies where the passage came from (e.g. a chapter file path)
	Source string `json:"source"`

	// Score is the similarity score reported by the vector index
	Score float64 `json:"score"`
}

// GroundedPrompt is the fully composed prompt sent to an LLM provider.
// It is built once per query and never mutated after construction.
type GroundedPrompt struct {
	// SystemInstructions carries the grounding rules for the model
	SystemInstructions string

	// ContextBlock is the formatted passage context, in retrieval order
	ContextBlock string

	// Question is the user's query text, verbatim
	Question string

	// Passages are the retrieved passages actually included in ContextBlock,
	// in retrieval order. Source identifiers for the answer are drawn from
	// this slice only.
	Passages []RetrievedPassage
}

// UserMessage renders the user-facing part of the prompt. The output is a
// pure function of the prompt fields so identical prompts render to
// byte-identical messages.
func (p *GroundedPrompt) UserMessage() string {
	return "CONTEXT:\n" + p.ContextBlock + "\n\nQUESTION:\n" + p.Question + "\n\nFINAL ANSWER:\n"
}

// AttemptOutcome classifies the result of a single provider attempt.
type AttemptOutcome string

const (
	OutcomeSuccess        AttemptOutcome = "success"
	OutcomeRateLimited    AttemptOutcome = "rate_limited"
	OutcomeTransientError AttemptOutcome = "transient_error"
	OutcomeFatalError     AttemptOutcome = "fatal_error"
)

// ProviderAttempt records one generation attempt against one provider.
// Attempts exist for retry bookkeeping and observability only.
type ProviderAttempt struct {
	Provider  string         `json:"provider"`
	StartedAt time.Time      `json:"started_at"`
	Outcome   AttemptOutcome `json:"outcome"`
	Latency   time.Duration  `json:"latency"`
}

// AnswerResult is the final product of the answer pipeline for one query.
// Sources preserves first-seen order and contains no duplicates; it is always
// a subset of the source identifiers of the passages included in the prompt.
type AnswerResult struct {
	ResponseText string   `json:"response"`
	Sources      []string `json:"sources"`
	SessionID    string   `json:"session_id,omitempty"`

	// Provider is the provider that produced the response
	Provider string `json:"provider,omitempty"`
}
