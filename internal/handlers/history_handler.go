package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/models"
)

// HistoryHandler serves persisted query/answer exchanges
type HistoryHandler struct {
	history      interfaces.HistoryStorage
	logger       arbor.ILogger
	defaultLimit int
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history interfaces.HistoryStorage, defaultLimit int, logger arbor.ILogger) *HistoryHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &HistoryHandler{
		history:      history,
		logger:       logger,
		defaultLimit: defaultLimit,
	}
}

// ListHandler handles GET /api/history requests. Supports optional
// session_id and limit query parameters.
func (h *HistoryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	if h.history == nil {
		WriteError(w, http.StatusNotFound, "History is disabled")
		return
	}

	limit := GetLimitParam(r, h.defaultLimit, 500)
	sessionID := r.URL.Query().Get("session_id")

	exchanges, err := h.listExchanges(sessionID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list exchanges")
		WriteError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"exchanges": exchanges,
		"count":     len(exchanges),
	})
}

func (h *HistoryHandler) listExchanges(sessionID string, limit int) ([]*models.Exchange, error) {
	if sessionID != "" {
		return h.history.ListBySession(sessionID, limit)
	}
	return h.history.List(limit)
}
