package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// CreateMigrationHistory creates a new attempt record and returns its id.
func (d *Database) CreateMigrationHistory(ctx context.Context, history *models.MigrationHistory) (int64, error) {
	if history.StartedAt.IsZero() {
		history.StartedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(history).Error; err != nil {
		return 0, fmt.Errorf("failed to create migration history: %w", err)
	}
	return history.ID, nil
}

// UpdateMigrationHistory marks an attempt finished with the given status.
func (d *Database) UpdateMigrationHistory(ctx context.Context, id int64, status string, errorMsg *string) error {
	now := time.Now().UTC()

	var history models.MigrationHistory
	if err := d.db.WithContext(ctx).First(&history, id).Error; err != nil {
		return fmt.Errorf("failed to get migration history %d: %w", id, err)
	}

	duration := int(now.Sub(history.StartedAt).Seconds())
	updates := map[string]any{
		"status":           status,
		"completed_at":     now,
		"duration_seconds": duration,
	}
	if errorMsg != nil {
		updates["error"] = *errorMsg
	}

	if err := d.db.WithContext(ctx).Model(&models.MigrationHistory{}).
		Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update migration history %d: %w", id, err)
	}
	return nil
}

// GetMigrationHistory retrieves attempt records for a repository, most recent
// first.
func (d *Database) GetMigrationHistory(ctx context.Context, repoID int64) ([]*models.MigrationHistory, error) {
	var history []*models.MigrationHistory
	if err := d.db.WithContext(ctx).
		Where("repository_id = ?", repoID).
		Order("started_at DESC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("failed to get migration history: %w", err)
	}
	return history, nil
}

// CreateMigrationLog appends a phase-tagged log line.
func (d *Database) CreateMigrationLog(ctx context.Context, log *models.MigrationLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := d.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create migration log: %w", err)
	}
	return nil
}

// GetMigrationLogs retrieves log lines for a repository with optional
// level/phase filters.
func (d *Database) GetMigrationLogs(ctx context.Context, repoID int64, level, phase string, limit, offset int) ([]*models.MigrationLog, error) {
	q := d.db.WithContext(ctx).Where("repository_id = ?", repoID)
	if level != "" {
		q = q.Where("level = ?", level)
	}
	if phase != "" {
		q = q.Where("phase = ?", phase)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var logs []*models.MigrationLog
	if err := q.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get migration logs: %w", err)
	}
	return logs, nil
}
