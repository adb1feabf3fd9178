package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DefaultListLimit bounds history listings when no limit is given
const DefaultListLimit = 50

// HistoryStorage persists completed query/answer exchanges in Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new history storage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) *HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// Save persists one exchange
func (s *HistoryStorage) Save(exchange *models.Exchange) error {
	if exchange.ID == "" {
		return fmt.Errorf("exchange ID cannot be empty")
	}
	if err := s.db.Store().Upsert(exchange.ID, exchange); err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	s.logger.Debug().
		Str("exchange_id", exchange.ID).
		Str("session_id", exchange.SessionID).
		Msg("Exchange saved")
	return nil
}

// Get retrieves an exchange by ID
func (s *HistoryStorage) Get(id string) (*models.Exchange, error) {
	var exchange models.Exchange
	if err := s.db.Store().Get(id, &exchange); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("exchange not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	return &exchange, nil
}

// List returns the most recent exchanges, newest first
func (s *HistoryStorage) List(limit int) ([]*models.Exchange, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var exchanges []*models.Exchange
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&exchanges, query); err != nil {
		return nil, fmt.Errorf("failed to list exchanges: %w", err)
	}
	return exchanges, nil
}

// ListBySession returns exchanges for one session, newest first
func (s *HistoryStorage) ListBySession(sessionID string, limit int) ([]*models.Exchange, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var exchanges []*models.Exchange
	query := badgerhold.Where("SessionID").Eq(sessionID).SortBy("CreatedAt").Reverse().Limit(limit)
	if err := s.db.Store().Find(&exchanges, query); err != nil {
		return nil, fmt.Errorf("failed to list exchanges for session %s: %w", sessionID, err)
	}
	return exchanges, nil
}

// DeleteOlderThan removes exchanges created before the retention cutoff
// and returns the number removed.
func (s *HistoryStorage) DeleteOlderThan(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	var stale []*models.Exchange
	query := badgerhold.Where("CreatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale exchanges: %w", err)
	}

	if err := s.db.Store().DeleteMatching(&models.Exchange{}, query); err != nil {
		return 0, fmt.Errorf("failed to delete stale exchanges: %w", err)
	}

	if len(stale) > 0 {
		s.logger.Info().
			Int("deleted", len(stale)).
			Int("retention_days", retentionDays).
			Msg("Deleted stale exchanges")
	}

	return len(stale), nil
}

// Count returns the total number of stored exchanges
func (s *HistoryStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&models.Exchange{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count exchanges: %w", err)
	}
	return int(count), nil
}
