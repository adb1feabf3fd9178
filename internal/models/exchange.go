package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exchange is one persisted question/answer pair. Exchanges are written after
// a query completes successfully and are retained for history queries only;
// the answer pipeline never reads them back.
type Exchange struct {
	ID        string    `json:"id" badgerhold:"key"`
	SessionID string    `json:"session_id" badgerhold:"index"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	Provider  string    `json:"provider"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at" badgerhold:"index"`
}

// NewExchangeID generates a unique exchange identifier
func NewExchangeID() string {
	return "exch_" + uuid.New().String()
}

// NewExchange creates an exchange from a completed query
func NewExchange(q *Query, result *AnswerResult, latency time.Duration) *Exchange {
	return &Exchange{
		ID:        NewExchangeID(),
		SessionID: q.SessionID,
		Question:  strings.TrimSpace(q.Text),
		Answer:    result.ResponseText,
		Sources:   result.Sources,
		Provider:  result.Provider,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
}
