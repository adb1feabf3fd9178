package badger

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/liber/internal/common"
)

// Maintenance runs periodic storage upkeep: value log garbage collection and
// exchange retention enforcement.
type Maintenance struct {
	manager       *Manager
	cron          *cron.Cron
	logger        arbor.ILogger
	retentionDays int
}

// NewMaintenance creates a maintenance scheduler for the storage layer
func NewMaintenance(manager *Manager, historyConfig *common.HistoryConfig, logger arbor.ILogger) *Maintenance {
	return &Maintenance{
		manager:       manager,
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		retentionDays: historyConfig.RetentionDays,
	}
}

// Start begins the scheduled maintenance
func (m *Maintenance) Start(schedule string) error {
	if schedule == "" {
		// Default: hourly
		schedule = "0 0 * * * *"
	}

	_, err := m.cron.AddFunc(schedule, func() {
		m.runMaintenance()
	})
	if err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info().
		Str("schedule", schedule).
		Int("retention_days", m.retentionDays).
		Msg("Storage maintenance scheduler started")

	return nil
}

// Stop stops the scheduler
func (m *Maintenance) Stop() {
	m.cron.Stop()
	m.logger.Info().Msg("Storage maintenance scheduler stopped")
}

func (m *Maintenance) runMaintenance() {
	m.logger.Debug().Msg("Starting storage maintenance run")

	deleted, err := m.manager.HistoryStorage().DeleteOlderThan(m.retentionDays)
	if err != nil {
		m.logger.Error().Err(err).Msg("Exchange retention cleanup failed")
	}

	// Badger reclaims value log space one file per call, so loop until
	// nothing more can be rewritten.
	gcRuns := 0
	for {
		err := m.manager.DB().Store().Badger().RunValueLogGC(0.5)
		if err != nil {
			if err != badger.ErrNoRewrite {
				m.logger.Warn().Err(err).Msg("Value log GC failed")
			}
			break
		}
		gcRuns++
	}

	m.logger.Debug().
		Int("exchanges_deleted", deleted).
		Int("gc_runs", gcRuns).
		Msg("Storage maintenance run completed")
}
