package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
	"github.com/ternarybob/liber/internal/handlers"
	"github.com/ternarybob/liber/internal/interfaces"
	"github.com/ternarybob/liber/internal/services/answer"
	"github.com/ternarybob/liber/internal/services/llm"
	"github.com/ternarybob/liber/internal/services/retrieval"
	"github.com/ternarybob/liber/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	StorageManager *badger.Manager
	Maintenance    *badger.Maintenance

	// LLM providers
	GeminiService *llm.GeminiService
	ClaudeService *llm.ClaudeService
	Coordinator   *llm.Coordinator

	// Retrieval
	RetrievalService *retrieval.Service

	// Answer pipeline
	AnswerService interfaces.AnswerService

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	QueryHandler   *handlers.QueryHandler
	HistoryHandler *handlers.HistoryHandler
}

// New creates the application with all services wired
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := a.initStorage(); err != nil {
		cancel()
		return nil, err
	}

	if err := a.initServices(); err != nil {
		cancel()
		a.closeStorage()
		return nil, err
	}

	a.initHandlers()

	logger.Info().Msg("Application initialized")

	return a, nil
}

// initStorage opens Badger and starts the maintenance scheduler
func (a *App) initStorage() error {
	if !a.Config.History.Enabled {
		a.Logger.Info().Msg("Exchange history disabled, skipping storage")
		return nil
	}

	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager

	a.Maintenance = badger.NewMaintenance(manager, &a.Config.History, a.Logger)
	if err := a.Maintenance.Start(a.Config.Storage.Badger.GCSchedule); err != nil {
		return fmt.Errorf("failed to start storage maintenance: %w", err)
	}

	return nil
}

// initServices builds the provider chain, retrieval, and the answer pipeline
func (a *App) initServices() error {
	gemini, err := llm.NewGeminiService(&a.Config.Gemini, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini provider: %w", err)
	}
	a.GeminiService = gemini

	// Claude is optional; without a key the chain runs primary-only
	providers := []interfaces.Provider{gemini}
	if a.Config.Claude.APIKey != "" {
		claude, err := llm.NewClaudeService(&a.Config.Claude, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Claude provider: %w", err)
		}
		a.ClaudeService = claude
		providers = append(providers, claude)
	} else {
		a.Logger.Warn().Msg("No Claude API key configured, running without fallback provider")
	}

	policy := llm.NewRetryPolicyFromConfig(&a.Config.Retry)
	a.Coordinator = llm.NewCoordinator(providers, policy, a.Logger)

	a.RetrievalService = retrieval.NewService(&a.Config.Qdrant, gemini, a.Logger)

	a.AnswerService = answer.NewService(&a.Config.Answer, a.RetrievalService, a.Coordinator, a.Logger)

	return nil
}

// initHandlers builds the HTTP handlers
func (a *App) initHandlers() {
	var history interfaces.HistoryStorage
	if a.StorageManager != nil {
		history = a.StorageManager.HistoryStorage()
	}

	a.APIHandler = handlers.NewAPIHandler(a.AnswerService, a.Logger)
	a.QueryHandler = handlers.NewQueryHandler(a.AnswerService, history, a.Logger)
	a.HistoryHandler = handlers.NewHistoryHandler(history, a.Config.History.DefaultLimit, a.Logger)
}

// closeStorage stops maintenance and closes the database
func (a *App) closeStorage() {
	if a.Maintenance != nil {
		a.Maintenance.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}

// Close releases all application resources
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	a.cancelCtx()

	if a.GeminiService != nil {
		if err := a.GeminiService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Gemini provider")
		}
	}
	if a.ClaudeService != nil {
		if err := a.ClaudeService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Claude provider")
		}
	}

	a.closeStorage()

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
