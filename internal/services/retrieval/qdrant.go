// Package retrieval provides semantic passage retrieval against a Qdrant
// vector index.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for a local Qdrant instance.
	DefaultBaseURL = "http://localhost:6333"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRateLimit is the default minimum interval between requests.
	DefaultRateLimit = 50 * time.Millisecond
)

// QdrantClient is a minimal client for the Qdrant HTTP API, covering point
// search and collection inspection.
type QdrantClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// QdrantOption configures the QdrantClient.
type QdrantOption func(*QdrantClient)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) QdrantOption {
	return func(c *QdrantClient) {
		c.baseURL = baseURL
	}
}

// WithAPIKey sets the api-key header value.
func WithAPIKey(apiKey string) QdrantOption {
	return func(c *QdrantClient) {
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) QdrantOption {
	return func(c *QdrantClient) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) QdrantOption {
	return func(c *QdrantClient) {
		c.logger = logger
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(timeout time.Duration) QdrantOption {
	return func(c *QdrantClient) {
		c.httpClient.Timeout = timeout
	}
}

// WithRateLimit sets the minimum interval between requests.
func WithRateLimit(minInterval time.Duration) QdrantOption {
	return func(c *QdrantClient) {
		c.limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
}

// NewQdrantClient creates a new Qdrant API client.
func NewQdrantClient(opts ...QdrantOption) *QdrantClient {
	c := &QdrantClient{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(DefaultRateLimit), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// QdrantError represents an error response from the Qdrant API.
type QdrantError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *QdrantError) Error() string {
	return fmt.Sprintf("qdrant API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// ScoredPoint is one search hit from the index
type ScoredPoint struct {
	ID      json.RawMessage        `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// IDString renders the point ID, which Qdrant returns as either a number or
// a UUID string.
func (p *ScoredPoint) IDString() string {
	var s string
	if err := json.Unmarshal(p.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(p.ID, &n); err == nil {
		return n.String()
	}
	return string(p.ID)
}

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type queryResponse struct {
	Result struct {
		Points []ScoredPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

type collectionInfoResponse struct {
	Result struct {
		Status      string `json:"status"`
		PointsCount uint64 `json:"points_count"`
	} `json:"result"`
	Status string `json:"status"`
}

// Query searches the collection for the points nearest to the vector,
// returning up to limit hits at or above scoreThreshold with payloads.
func (c *QdrantClient) Query(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float64) ([]ScoredPoint, error) {
	reqBody := queryRequest{
		Query:          vector,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
		WithPayload:    true,
	}

	var resp queryResponse
	path := fmt.Sprintf("/collections/%s/points/query", collection)
	if err := c.post(ctx, path, reqBody, &resp); err != nil {
		return nil, err
	}

	return resp.Result.Points, nil
}

// CollectionInfo returns the point count for a collection. A non-2xx
// response, including 404 for a missing collection, surfaces as QdrantError.
func (c *QdrantClient) CollectionInfo(ctx context.Context, collection string) (uint64, error) {
	var resp collectionInfoResponse
	path := fmt.Sprintf("/collections/%s", collection)
	if err := c.get(ctx, path, &resp); err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

// post performs a POST request to the API.
func (c *QdrantClient) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Qdrant API request")
	}

	return c.do(req, path, result)
}

// get performs a GET request to the API.
func (c *QdrantClient) get(ctx context.Context, path string, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(req)

	return c.do(req, path, result)
}

func (c *QdrantClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *QdrantClient) do(req *http.Request, path string, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &QdrantError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
