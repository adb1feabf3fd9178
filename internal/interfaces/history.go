package interfaces

import (
	"github.com/ternarybob/liber/internal/models"
)

// HistoryStorage defines persistence for completed query/answer exchanges
type HistoryStorage interface {
	// Save persists one exchange
	Save(exchange *models.Exchange) error

	// Get retrieves an exchange by ID
	Get(id string) (*models.Exchange, error)

	// List returns the most recent exchanges, newest first, up to limit.
	// A limit <= 0 applies the storage default.
	List(limit int) ([]*models.Exchange, error)

	// ListBySession returns exchanges for one session, newest first
	ListBySession(sessionID string, limit int) ([]*models.Exchange, error)

	// DeleteOlderThan removes exchanges created before the retention cutoff
	// and returns the number removed.
	DeleteOlderThan(retentionDays int) (int, error)

	// Count returns the total number of stored exchanges
	Count() (int, error)
}

// StorageManager manages the lifecycle of the storage layer
type StorageManager interface {
	// HistoryStorage returns the exchange history store
	HistoryStorage() HistoryStorage

	// Close releases storage resources
	Close() error
}
