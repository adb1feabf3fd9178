package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Query pipeline
	mux.HandleFunc("/api/query", s.app.QueryHandler.QueryHandler) // POST - answer a question

	// API routes - History
	mux.HandleFunc("/api/history", s.app.HistoryHandler.ListHandler) // GET - list exchanges

	// API routes - Service status
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
