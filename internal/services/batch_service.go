// Package services holds the business rules between the HTTP surface and
// storage: batch membership, lifecycle operations, and repository
// bookkeeping.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// BatchService encapsulates batch lifecycle rules. Every transition goes
// through the storage compare-and-set so concurrent operators cannot both
// move the same batch.
type BatchService struct {
	batchStore storage.BatchStore
	repoStore  storage.RepositoryStore
	logger     *slog.Logger
}

// NewBatchService creates a BatchService.
func NewBatchService(batchStore storage.BatchStore, repoStore storage.RepositoryStore, logger *slog.Logger) *BatchService {
	return &BatchService{
		batchStore: batchStore,
		repoStore:  repoStore,
		logger:     logger,
	}
}

// CreateBatch validates and persists a new batch.
func (s *BatchService) CreateBatch(ctx context.Context, b *models.Batch) error {
	if b.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if existing, err := s.batchStore.GetBatchByName(ctx, b.Name); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("batch %q already exists", b.Name)
	}

	if err := s.batchStore.CreateBatch(ctx, b); err != nil {
		return err
	}
	s.logger.Info("Batch created", "batch_id", b.ID, "batch_name", b.Name)
	return nil
}

// MemberResult is the per-repository outcome of a membership change.
type MemberResult struct {
	FullName string `json:"full_name"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

// AddRepositories assigns repositories to a batch, one result per
// repository. Membership is frozen while the batch is in progress.
func (s *BatchService) AddRepositories(ctx context.Context, batchID int64, repoIDs []int64) ([]MemberResult, error) {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMembershipOpen(b); err != nil {
		return nil, err
	}

	results := make([]MemberResult, 0, len(repoIDs))
	for _, repoID := range repoIDs {
		result := MemberResult{}

		repo, err := s.repoStore.GetRepositoryByID(ctx, repoID)
		if err != nil || repo == nil {
			result.FullName = fmt.Sprintf("id:%d", repoID)
			result.Reason = "repository not found"
			results = append(results, result)
			continue
		}
		result.FullName = repo.FullName

		if repo.BatchID != nil && *repo.BatchID != batchID {
			result.Reason = "repository is already in another batch"
			results = append(results, result)
			continue
		}

		if ok, reason := repo.CanBeAssignedToBatch(); !ok {
			result.Reason = reason
			results = append(results, result)
			continue
		}

		repo.BatchID = &batchID
		if err := s.repoStore.UpdateRepository(ctx, repo); err != nil {
			result.Reason = "failed to update repository"
			s.logger.Error("Failed to add repository to batch",
				"repo", repo.FullName, "batch_id", batchID, "error", err)
			results = append(results, result)
			continue
		}

		result.OK = true
		results = append(results, result)
	}

	return results, nil
}

// RemoveRepositories unassigns repositories from a batch. Membership is
// frozen while the batch is in progress.
func (s *BatchService) RemoveRepositories(ctx context.Context, batchID int64, repoIDs []int64) (int, error) {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if err := s.requireMembershipOpen(b); err != nil {
		return 0, err
	}

	removed := 0
	for _, repoID := range repoIDs {
		repo, err := s.repoStore.GetRepositoryByID(ctx, repoID)
		if err != nil || repo == nil {
			continue
		}
		if repo.BatchID == nil || *repo.BatchID != batchID {
			continue
		}

		repo.BatchID = nil
		if err := s.repoStore.UpdateRepository(ctx, repo); err != nil {
			s.logger.Error("Failed to remove repository from batch",
				"repo", repo.FullName, "batch_id", batchID, "error", err)
			continue
		}
		removed++
	}

	return removed, nil
}

// DeleteBatch deletes a batch after unassigning its members. Repository rows
// are never deleted. A batch that is in progress cannot be deleted.
func (s *BatchService) DeleteBatch(ctx context.Context, batchID int64) error {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status == models.BatchStatusInProgress {
		return fmt.Errorf("cannot delete batch %q while it is in progress", b.Name)
	}

	repos, err := s.repoStore.ListRepositories(ctx, map[string]any{"batch_id": batchID})
	if err != nil {
		return fmt.Errorf("failed to list batch repositories: %w", err)
	}
	ids := make([]int64, 0, len(repos))
	for _, repo := range repos {
		ids = append(ids, repo.ID)
	}
	if len(ids) > 0 {
		if err := s.batchStore.RemoveRepositoriesFromBatch(ctx, batchID, ids); err != nil {
			return err
		}
	}

	if err := s.batchStore.DeleteBatch(ctx, batchID); err != nil {
		return err
	}
	s.logger.Info("Batch deleted", "batch_id", batchID, "batch_name", b.Name, "members_unassigned", len(ids))
	return nil
}

// StartDryRun queues a dry run for a batch's members. With onlyPending set,
// only members that still need a dry run are queued; members already
// dry_run_complete keep their result. Membership itself is never changed.
func (s *BatchService) StartDryRun(ctx context.Context, batchID int64, onlyPending bool) (int, error) {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	if err := s.batchStore.UpdateBatchStatusIf(ctx, batchID, b.Status, models.BatchStatusInProgress); err != nil {
		return 0, fmt.Errorf("cannot start dry run for batch %q: %w", b.Name, err)
	}

	now := time.Now().UTC()
	b.Status = models.BatchStatusInProgress
	b.DryRunStartedAt = &now
	b.DryRunCompletedAt = nil
	b.LastDryRunAt = &now
	if err := s.batchStore.UpdateBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("failed to record dry run start: %w", err)
	}

	repos, err := s.repoStore.ListRepositories(ctx, map[string]any{"batch_id": batchID})
	if err != nil {
		return 0, fmt.Errorf("failed to list batch repositories: %w", err)
	}

	queued := 0
	for _, repo := range repos {
		if onlyPending && !repo.Status.NeedsDryRun() {
			continue
		}
		if !models.CanTransition(repo.Status, models.StatusDryRunQueued) {
			s.logger.Debug("Skipping repository for dry run",
				"repo", repo.FullName, "status", repo.Status)
			continue
		}
		if err := s.repoStore.UpdateRepositoryStatus(ctx, repo.FullName, models.StatusDryRunQueued); err != nil {
			s.logger.Error("Failed to queue dry run", "repo", repo.FullName, "error", err)
			continue
		}
		queued++
	}

	s.logger.Info("Dry run started",
		"batch_id", batchID,
		"batch_name", b.Name,
		"queued", queued,
		"only_pending", onlyPending)
	return queued, nil
}

// StartBatch begins a batch's migration wave. Unless skipDryRun is set the
// batch must be ready, meaning every member completed its dry run.
// Membership is frozen from here until the wave settles.
func (s *BatchService) StartBatch(ctx context.Context, batchID int64, skipDryRun bool) (*models.Batch, error) {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !skipDryRun && b.Status != models.BatchStatusReady {
		return nil, fmt.Errorf("batch %q is not ready: status is %q", b.Name, b.Status)
	}

	if err := s.batchStore.UpdateBatchStatusIf(ctx, batchID, b.Status, models.BatchStatusInProgress); err != nil {
		return nil, fmt.Errorf("cannot start batch %q: %w", b.Name, err)
	}

	now := time.Now().UTC()
	b.Status = models.BatchStatusInProgress
	b.StartedAt = &now
	b.LastMigrationAttemptAt = &now
	if err := s.batchStore.UpdateBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to record batch start: %w", err)
	}

	repos, err := s.repoStore.ListRepositories(ctx, map[string]any{"batch_id": batchID})
	if err != nil {
		return nil, fmt.Errorf("failed to list batch repositories: %w", err)
	}

	queued := 0
	for _, repo := range repos {
		if !models.CanTransition(repo.Status, models.StatusQueuedForMigration) {
			s.logger.Debug("Skipping repository for migration",
				"repo", repo.FullName, "status", repo.Status)
			continue
		}
		if err := s.repoStore.UpdateRepositoryStatus(ctx, repo.FullName, models.StatusQueuedForMigration); err != nil {
			s.logger.Error("Failed to queue migration", "repo", repo.FullName, "error", err)
			continue
		}
		queued++
	}

	s.logger.Info("Batch started",
		"batch_id", batchID,
		"batch_name", b.Name,
		"queued", queued,
		"skip_dry_run", skipDryRun)
	return b, nil
}

// CancelBatch cancels a batch that has not started its wave yet.
func (s *BatchService) CancelBatch(ctx context.Context, batchID int64) error {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := s.batchStore.UpdateBatchStatusIf(ctx, batchID, b.Status, models.BatchStatusCancelled); err != nil {
		return fmt.Errorf("cannot cancel batch %q: %w", b.Name, err)
	}
	s.logger.Info("Batch cancelled", "batch_id", batchID, "batch_name", b.Name)
	return nil
}

// RetryRepository requeues a failed repository on the path it failed on: a
// failed dry run goes back to the dry-run queue, a failed migration back to
// the migration queue. Other statuses are not retryable.
func (s *BatchService) RetryRepository(ctx context.Context, repoID int64) (*models.Repository, error) {
	repo, err := s.repoStore.GetRepositoryByID(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository not found: %d", repoID)
	}

	var next models.MigrationStatus
	switch repo.Status {
	case models.StatusDryRunFailed:
		next = models.StatusDryRunQueued
	case models.StatusMigrationFailed:
		next = models.StatusQueuedForMigration
	default:
		return nil, fmt.Errorf("repository %s has status %q and cannot be retried", repo.FullName, repo.Status)
	}

	if err := s.repoStore.UpdateRepositoryStatus(ctx, repo.FullName, next); err != nil {
		return nil, err
	}
	repo.Status = next

	s.logger.Info("Repository requeued", "repo", repo.FullName, "status", next)
	return repo, nil
}

// BatchStats is a batch with progress counts derived from its members.
type BatchStats struct {
	Batch           *models.Batch `json:"batch"`
	RepositoryCount int           `json:"repository_count"`
	CompletedCount  int           `json:"completed_count"`
	InProgressCount int           `json:"in_progress_count"`
	PendingCount    int           `json:"pending_count"`
	FailedCount     int           `json:"failed_count"`
	ProgressPercent float64       `json:"progress_percent"`
}

// GetBatchStats returns a batch with its member progress counts.
func (s *BatchService) GetBatchStats(ctx context.Context, batchID int64) (*BatchStats, error) {
	b, err := s.requireBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	repos, err := s.repoStore.ListRepositories(ctx, map[string]any{"batch_id": batchID})
	if err != nil {
		return nil, fmt.Errorf("failed to list batch repositories: %w", err)
	}

	stats := &BatchStats{Batch: b, RepositoryCount: len(repos)}
	for _, repo := range repos {
		switch {
		case repo.Status == models.StatusComplete || repo.Status == models.StatusMigrationComplete:
			stats.CompletedCount++
		case repo.Status.IsMigrationActive():
			stats.InProgressCount++
		case repo.Status == models.StatusDryRunFailed || repo.Status == models.StatusMigrationFailed:
			stats.FailedCount++
		default:
			stats.PendingCount++
		}
	}
	if stats.RepositoryCount > 0 {
		stats.ProgressPercent = float64(stats.CompletedCount) / float64(stats.RepositoryCount) * 100
	}
	return stats, nil
}

func (s *BatchService) requireBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	b, err := s.batchStore.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("batch not found: %d", batchID)
	}
	return b, nil
}

func (s *BatchService) requireMembershipOpen(b *models.Batch) error {
	if b.Status == models.BatchStatusInProgress {
		return fmt.Errorf("batch %q membership is frozen while it is in progress", b.Name)
	}
	if b.Status.IsTerminal() {
		return fmt.Errorf("batch %q is %s", b.Name, b.Status)
	}
	return nil
}
