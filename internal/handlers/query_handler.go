package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
	"github.com/ternarybob/liber/internal/services/answer"
)

// QueryRequest is the POST /api/query request body
type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// QueryResponse is the POST /api/query response body
type QueryResponse struct {
	Response  string   `json:"response"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id,omitempty"`
}

// QueryHandler handles question answering HTTP requests
type QueryHandler struct {
	answerService interfaces.AnswerService
	history       interfaces.HistoryStorage
	logger        arbor.ILogger
}

// NewQueryHandler creates a new query handler. history may be nil when
// exchange persistence is disabled.
func NewQueryHandler(answerService interfaces.AnswerService, history interfaces.HistoryStorage, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		answerService: answerService,
		history:       history,
		logger:        logger,
	}
}

// QueryHandler handles POST /api/query requests
func (h *QueryHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to decode query request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "Query field is required")
		return
	}

	h.logger.Info().
		Int("query_length", len(req.Query)).
		Str("session_id", req.SessionID).
		Msg("Processing query request")

	query := &models.Query{Text: req.Query, SessionID: req.SessionID}

	startTime := time.Now()
	result, err := h.answerService.Answer(r.Context(), query)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	h.recordExchange(query, result, time.Since(startTime))

	WriteJSON(w, http.StatusOK, QueryResponse{
		Response:  result.ResponseText,
		Sources:   result.Sources,
		SessionID: result.SessionID,
	})
}

// writePipelineError maps pipeline failures onto HTTP status codes
func (h *QueryHandler) writePipelineError(w http.ResponseWriter, err error) {
	var perr *answer.PipelineError
	if errors.As(err, &perr) {
		h.logger.Warn().
			Str("kind", string(perr.Kind)).
			Err(perr.Err).
			Msg("Query failed")
		WriteError(w, perr.StatusCode(), perr.Error())
		return
	}

	h.logger.Error().Err(err).Msg("Query failed with unexpected error")
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// recordExchange persists the completed exchange without blocking the
// response. Persistence failures are logged and dropped.
func (h *QueryHandler) recordExchange(query *models.Query, result *models.AnswerResult, latency time.Duration) {
	if h.history == nil {
		return
	}

	exchange := models.NewExchange(query, result, latency)
	go func() {
		if err := h.history.Save(exchange); err != nil {
			h.logger.Warn().Err(err).Str("exchange_id", exchange.ID).Msg("Failed to save exchange")
		}
	}()
}
