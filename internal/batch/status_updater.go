package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// StatusUpdater periodically reconciles batch statuses with the statuses of
// their member repositories.
type StatusUpdater struct {
	db       *storage.Database
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// StatusUpdaterConfig holds configuration for the status updater.
type StatusUpdaterConfig struct {
	Database *storage.Database
	Logger   *slog.Logger
	Interval time.Duration
}

// NewStatusUpdater creates a batch status updater.
func NewStatusUpdater(cfg StatusUpdaterConfig) (*StatusUpdater, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}

	return &StatusUpdater{
		db:       cfg.Database,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the reconciliation loop. It runs once immediately, then on
// every tick until the context is cancelled or Stop is called.
func (su *StatusUpdater) Start(ctx context.Context) {
	su.logger.Info("Starting batch status updater", "interval", su.interval)

	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	su.reconcileAll(ctx)

	for {
		select {
		case <-ctx.Done():
			su.logger.Info("Batch status updater stopped")
			return
		case <-su.stopCh:
			su.logger.Info("Batch status updater stopped")
			return
		case <-ticker.C:
			su.reconcileAll(ctx)
		}
	}
}

// Stop stops the status updater.
func (su *StatusUpdater) Stop() {
	close(su.stopCh)
}

func (su *StatusUpdater) reconcileAll(ctx context.Context) {
	batches, err := su.db.ListBatches(ctx)
	if err != nil {
		su.logger.Error("Failed to list batches for reconciliation", "error", err)
		return
	}

	updated := 0
	for _, b := range batches {
		if b.Status.IsTerminal() {
			continue
		}
		changed, err := su.reconcile(ctx, b)
		if err != nil {
			su.logger.Error("Failed to reconcile batch status",
				"batch_id", b.ID,
				"batch_name", b.Name,
				"error", err)
			continue
		}
		if changed {
			updated++
		}
	}

	if updated > 0 {
		su.logger.Info("Batch status reconciliation complete", "updated", updated)
	}
}

// reconcile moves one batch to the status its members imply. The move is a
// compare-and-set so a concurrent operator action wins over the ticker.
func (su *StatusUpdater) reconcile(ctx context.Context, b *models.Batch) (bool, error) {
	repos, err := su.db.ListRepositories(ctx, map[string]any{"batch_id": b.ID})
	if err != nil {
		return false, fmt.Errorf("failed to list batch repositories: %w", err)
	}

	next := AggregateStatus(repos)
	if next == b.Status {
		return false, nil
	}
	if !models.CanTransitionBatch(b.Status, next) {
		su.logger.Debug("Skipping disallowed batch transition",
			"batch_id", b.ID,
			"from", b.Status,
			"to", next)
		return false, nil
	}

	if err := su.db.UpdateBatchStatusIf(ctx, b.ID, b.Status, next); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			su.logger.Debug("Batch moved concurrently, skipping", "batch_id", b.ID)
			return false, nil
		}
		return false, err
	}

	su.logger.Info("Batch status updated",
		"batch_id", b.ID,
		"batch_name", b.Name,
		"old_status", b.Status,
		"new_status", next)

	su.recordTimestamps(ctx, b, next)
	return true, nil
}

// recordTimestamps fills in the wave timestamps implied by a transition:
// dry-run completion when an in-flight batch settles back to ready, and
// completion time when it reaches a terminal outcome.
func (su *StatusUpdater) recordTimestamps(ctx context.Context, b *models.Batch, next models.BatchStatus) {
	now := time.Now()
	dirty := false

	if b.Status == models.BatchStatusInProgress && next == models.BatchStatusReady &&
		b.DryRunStartedAt != nil && b.DryRunCompletedAt == nil {
		b.DryRunCompletedAt = &now
		dirty = true
		if d := b.DryRunDuration(); d != nil {
			su.logger.Info("Batch dry run completed",
				"batch_id", b.ID,
				"batch_name", b.Name,
				"duration", d.String())
		}
	}

	if next.IsTerminal() || next == models.BatchStatusCompletedWithErrors || next == models.BatchStatusFailed {
		if b.CompletedAt == nil {
			b.CompletedAt = &now
			dirty = true
		}
	}

	if !dirty {
		return
	}

	b.Status = next
	if err := su.db.UpdateBatch(ctx, b); err != nil {
		su.logger.Error("Failed to record batch timestamps", "batch_id", b.ID, "error", err)
	}
}
