package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// ErrStatusConflict is returned by UpdateBatchStatusIf when the batch was not
// in the expected status. Callers treat it as "someone else got there first".
var ErrStatusConflict = errors.New("batch status changed concurrently")

// GetBatch retrieves a single batch by ID, with its repository count.
func (d *Database) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	var batch models.Batch
	err := d.db.WithContext(ctx).First(&batch, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %d: %w", id, err)
	}
	if err := d.fillRepoCount(ctx, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetBatchByName retrieves a single batch by its unique name.
func (d *Database) GetBatchByName(ctx context.Context, name string) (*models.Batch, error) {
	var batch models.Batch
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %q: %w", name, err)
	}
	if err := d.fillRepoCount(ctx, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListBatches returns all batches with repository counts.
func (d *Database) ListBatches(ctx context.Context) ([]*models.Batch, error) {
	var batches []*models.Batch
	if err := d.db.WithContext(ctx).Order("created_at ASC").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	for _, b := range batches {
		if err := d.fillRepoCount(ctx, b); err != nil {
			return nil, err
		}
	}
	return batches, nil
}

func (d *Database) fillRepoCount(ctx context.Context, batch *models.Batch) error {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Repository{}).
		Where("batch_id = ?", batch.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count batch repositories: %w", err)
	}
	batch.RepoCount = int(count)
	return nil
}

// CreateBatch creates a new batch.
func (d *Database) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.Status == "" {
		batch.Status = models.BatchStatusPending
	}
	if batch.MigrationAPI == "" {
		batch.MigrationAPI = models.MigrationAPIGEI
	}
	if err := d.db.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// UpdateBatch updates an existing batch.
func (d *Database) UpdateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == 0 {
		return fmt.Errorf("batch has no id")
	}
	if err := d.db.WithContext(ctx).Model(batch).
		Select("*").Omit("id", "created_at").Updates(batch).Error; err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

// UpdateBatchStatusIf performs a compare-and-set on the batch status. It only
// moves the batch to the new status when it is still in the expected one,
// returning ErrStatusConflict otherwise. This is what keeps two operators (or
// the scheduler and an operator) from both starting the same batch.
func (d *Database) UpdateBatchStatusIf(ctx context.Context, batchID int64, expected, next models.BatchStatus) error {
	if !models.CanTransitionBatch(expected, next) {
		return fmt.Errorf("invalid batch transition %s -> %s", expected, next)
	}
	result := d.db.WithContext(ctx).Model(&models.Batch{}).
		Where("id = ? AND status = ?", batchID, string(expected)).
		Updates(map[string]any{"status": string(next), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to update batch status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// DeleteBatch removes a batch by ID. Member repositories must be unassigned
// first; the service layer owns that rule.
func (d *Database) DeleteBatch(ctx context.Context, batchID int64) error {
	if err := d.db.WithContext(ctx).Delete(&models.Batch{}, batchID).Error; err != nil {
		return fmt.Errorf("failed to delete batch %d: %w", batchID, err)
	}
	return nil
}

// AddRepositoriesToBatch assigns repositories to a batch.
func (d *Database) AddRepositoriesToBatch(ctx context.Context, batchID int64, repoIDs []int64) error {
	if err := d.db.WithContext(ctx).Model(&models.Repository{}).
		Where("id IN ?", repoIDs).
		Updates(map[string]any{"batch_id": batchID, "updated_at": time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("failed to add repositories to batch: %w", err)
	}
	return nil
}

// RemoveRepositoriesFromBatch unassigns repositories from a batch.
func (d *Database) RemoveRepositoriesFromBatch(ctx context.Context, batchID int64, repoIDs []int64) error {
	if err := d.db.WithContext(ctx).Model(&models.Repository{}).
		Where("batch_id = ? AND id IN ?", batchID, repoIDs).
		Updates(map[string]any{"batch_id": nil, "updated_at": time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("failed to remove repositories from batch: %w", err)
	}
	return nil
}
