package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// Starter starts a batch's migration wave. The service layer implements it;
// the scheduler only decides when a batch is due.
type Starter interface {
	StartBatch(ctx context.Context, batchID int64, skipDryRun bool) (*models.Batch, error)
}

// Scheduler starts ready batches whose scheduled time has arrived.
type Scheduler struct {
	db       *storage.Database
	starter  Starter
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// SchedulerConfig holds configuration for the batch scheduler.
type SchedulerConfig struct {
	Database *storage.Database
	Starter  Starter
	Logger   *slog.Logger
	Interval time.Duration
}

// NewScheduler creates a batch scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Starter == nil {
		return nil, fmt.Errorf("starter is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}

	return &Scheduler{
		db:       cfg.Database,
		starter:  cfg.Starter,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting batch scheduler", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.startDueBatches(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Batch scheduler stopped")
			return
		case <-s.stopCh:
			s.logger.Info("Batch scheduler stopped")
			return
		case <-ticker.C:
			s.startDueBatches(ctx)
		}
	}
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// startDueBatches starts every ready batch whose scheduled time has passed.
// The starter's compare-and-set keeps a concurrent operator start from
// racing the ticker.
func (s *Scheduler) startDueBatches(ctx context.Context) {
	batches, err := s.db.ListBatches(ctx)
	if err != nil {
		s.logger.Error("Failed to list batches for scheduling", "error", err)
		return
	}

	now := time.Now()
	for _, b := range batches {
		if b.Status != models.BatchStatusReady || !b.IsDue(now) {
			continue
		}

		s.logger.Info("Starting scheduled batch",
			"batch_id", b.ID,
			"batch_name", b.Name,
			"scheduled_at", b.ScheduledAt.Format(time.RFC3339))

		if _, err := s.starter.StartBatch(ctx, b.ID, false); err != nil {
			s.logger.Error("Failed to start scheduled batch",
				"batch_id", b.ID,
				"batch_name", b.Name,
				"error", err)
		}
	}
}
