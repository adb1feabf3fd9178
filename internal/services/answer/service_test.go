package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
	"github.com/ternarybob/liber/internal/services/llm"
)

// fakeRetriever scripts retrieval results per call
type fakeRetriever struct {
	results   [][]models.RetrievedPassage
	errs      []error
	calls     int
	healthErr error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) ([]models.RetrievedPassage, error) {
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return nil, err
	}
	if idx < len(f.results) {
		return f.results[idx], nil
	}
	return nil, nil
}

func (f *fakeRetriever) HealthCheck(ctx context.Context) error { return f.healthErr }

// fakeGenerator scripts the coordinator outcome
type fakeGenerator struct {
	result    *llm.GenerationResult
	err       error
	calls     int
	prompt    *models.GroundedPrompt
	healthErr error
}

func (f *fakeGenerator) HealthCheck(ctx context.Context) error { return f.healthErr }

func (f *fakeGenerator) Generate(ctx context.Context, prompt *models.GroundedPrompt) (*llm.GenerationResult, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestService(retriever interfaces.Retriever, gen generator) *Service {
	return &Service{
		retriever:         retriever,
		composer:          NewComposer(0),
		coordinator:       gen,
		logger:            arbor.NewLogger(),
		validate:          validator.New(),
		maxQueryLength:    4000,
		retrievalAttempts: 2,
	}
}

func passagesFixture() []models.RetrievedPassage {
	return []models.RetrievedPassage{
		{Content: "Call me Ishmael.", Source: "chapters/ch1.md", Score: 0.92},
		{Content: "More about Ishmael.", Source: "chapters/ch1.md", Score: 0.80},
		{Content: "The Pequod sets sail.", Source: "chapters/ch3.md", Score: 0.70},
	}
}

func TestAnswer_HappyPath(t *testing.T) {
	retriever := &fakeRetriever{results: [][]models.RetrievedPassage{passagesFixture()}}
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "Ishmael narrates.", Provider: interfaces.ProviderGemini}}

	service := newTestService(retriever, gen)
	result, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?", SessionID: "sess-1"})

	require.NoError(t, err)
	assert.Equal(t, "Ishmael narrates.", result.ResponseText)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Equal(t, string(interfaces.ProviderGemini), result.Provider)
	// Duplicate sources collapse, first-seen order preserved
	assert.Equal(t, []string{"chapters/ch1.md", "chapters/ch3.md"}, result.Sources)
	assert.Equal(t, 1, gen.calls)
}

func TestAnswer_EmptyCorpusIsDegradedSuccess(t *testing.T) {
	retriever := &fakeRetriever{results: [][]models.RetrievedPassage{{}}}
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "should not be called"}}

	service := newTestService(retriever, gen)
	result, err := service.Answer(context.Background(), &models.Query{Text: "Anything?", SessionID: "sess-2"})

	require.NoError(t, err)
	assert.Equal(t, NoInfoMessage, result.ResponseText)
	assert.Empty(t, result.Sources)
	assert.NotNil(t, result.Sources)
	assert.Equal(t, "sess-2", result.SessionID)
	// No provider call without context
	assert.Equal(t, 0, gen.calls)
}

func TestAnswer_EmptyQueryRejected(t *testing.T) {
	service := newTestService(&fakeRetriever{}, &fakeGenerator{})

	_, err := service.Answer(context.Background(), &models.Query{Text: "   "})

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureInvalidInput, perr.Kind)
	assert.Equal(t, 400, perr.StatusCode())
}

func TestAnswer_OverlongQueryRejected(t *testing.T) {
	service := newTestService(&fakeRetriever{}, &fakeGenerator{})

	_, err := service.Answer(context.Background(), &models.Query{Text: strings.Repeat("q", 4001)})

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureInvalidInput, perr.Kind)
}

func TestAnswer_RetrievalRetriesThenSucceeds(t *testing.T) {
	retriever := &fakeRetriever{
		errs:    []error{errors.New("connection refused"), nil},
		results: [][]models.RetrievedPassage{nil, passagesFixture()},
	}
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "answer", Provider: interfaces.ProviderGemini}}

	service := newTestService(retriever, gen)
	result, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?"})

	require.NoError(t, err)
	assert.Equal(t, "answer", result.ResponseText)
	assert.Equal(t, 2, retriever.calls)
}

func TestAnswer_RetrievalUnavailableAfterRetries(t *testing.T) {
	retriever := &fakeRetriever{
		errs: []error{errors.New("connection refused"), errors.New("connection refused")},
	}

	service := newTestService(retriever, &fakeGenerator{})
	_, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?"})

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureRetrievalUnavailable, perr.Kind)
	assert.Equal(t, 503, perr.StatusCode())
	assert.Equal(t, 2, retriever.calls)
}

func TestAnswer_ProvidersExhausted(t *testing.T) {
	retriever := &fakeRetriever{results: [][]models.RetrievedPassage{passagesFixture()}}
	gen := &fakeGenerator{err: &llm.ExhaustedError{}}

	service := newTestService(retriever, gen)
	_, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?"})

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureProvidersExhausted, perr.Kind)
	assert.Equal(t, 503, perr.StatusCode())
}

func TestAnswer_DeadlineExceededDuringGeneration(t *testing.T) {
	retriever := &fakeRetriever{results: [][]models.RetrievedPassage{passagesFixture()}}
	gen := &fakeGenerator{err: context.DeadlineExceeded}

	service := newTestService(retriever, gen)
	_, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?"})

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FailureDeadlineExceeded, perr.Kind)
	assert.Equal(t, 504, perr.StatusCode())
}

func TestAnswer_SourcesSubsetOfPromptPassages(t *testing.T) {
	retriever := &fakeRetriever{results: [][]models.RetrievedPassage{passagesFixture()}}
	gen := &fakeGenerator{result: &llm.GenerationResult{Text: "answer", Provider: interfaces.ProviderClaude}}

	service := newTestService(retriever, gen)
	result, err := service.Answer(context.Background(), &models.Query{Text: "Who narrates?"})

	require.NoError(t, err)
	require.NotNil(t, gen.prompt)

	promptSources := make(map[string]bool)
	for _, p := range gen.prompt.Passages {
		promptSources[p.Source] = true
	}
	for _, source := range result.Sources {
		assert.True(t, promptSources[source], "source %s not in prompt passages", source)
	}
}

func TestHealthCheck_HealthyWhenIndexAndProviderUp(t *testing.T) {
	service := newTestService(&fakeRetriever{}, &fakeGenerator{})

	assert.NoError(t, service.HealthCheck(context.Background()))
}

func TestHealthCheck_FailsWhenIndexDown(t *testing.T) {
	retriever := &fakeRetriever{healthErr: errors.New("connection refused")}

	service := newTestService(retriever, &fakeGenerator{})
	err := service.HealthCheck(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector index unavailable")
}

func TestHealthCheck_FailsWhenNoProviderAvailable(t *testing.T) {
	gen := &fakeGenerator{healthErr: errors.New("no provider available: client not initialized")}

	service := newTestService(&fakeRetriever{}, gen)
	err := service.HealthCheck(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider chain unavailable")
}
