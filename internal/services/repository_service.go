package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// RepositoryService encapsulates repository-level operations that sit above
// raw storage: lookups with filters, destination overrides, and opting
// repositories out of migration.
type RepositoryService struct {
	repoStore    storage.RepositoryStore
	historyStore storage.MigrationHistoryStore
	logger       *slog.Logger
}

// NewRepositoryService creates a RepositoryService.
func NewRepositoryService(repoStore storage.RepositoryStore, historyStore storage.MigrationHistoryStore, logger *slog.Logger) *RepositoryService {
	return &RepositoryService{
		repoStore:    repoStore,
		historyStore: historyStore,
		logger:       logger,
	}
}

// GetRepository returns one repository with its component rows, or nil.
func (s *RepositoryService) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	return s.repoStore.GetRepository(ctx, fullName)
}

// ListRepositories returns repositories matching the filters, with the total
// count before paging.
func (s *RepositoryService) ListRepositories(ctx context.Context, filters map[string]any) ([]*models.Repository, int, error) {
	repos, err := s.repoStore.ListRepositories(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repoStore.CountRepositories(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	return repos, total, nil
}

// SetDestinationOverride sets or clears (with nil) a repository's explicit
// destination, stored as org/name.
func (s *RepositoryService) SetDestinationOverride(ctx context.Context, fullName string, override *string) (*models.Repository, error) {
	repo, err := s.requireRepository(ctx, fullName)
	if err != nil {
		return nil, err
	}

	repo.DestinationOverride = override
	if err := s.repoStore.UpdateRepository(ctx, repo); err != nil {
		return nil, err
	}

	if override == nil {
		s.logger.Info("Destination override cleared", "repo", fullName)
	} else {
		s.logger.Info("Destination override set", "repo", fullName, "destination", *override)
	}
	return repo, nil
}

// MarkWontMigrate opts a repository out of migration.
func (s *RepositoryService) MarkWontMigrate(ctx context.Context, fullName string) (*models.Repository, error) {
	return s.transition(ctx, fullName, models.StatusWontMigrate)
}

// Reinstate returns an opted-out repository to the pending pool.
func (s *RepositoryService) Reinstate(ctx context.Context, fullName string) (*models.Repository, error) {
	return s.transition(ctx, fullName, models.StatusPending)
}

func (s *RepositoryService) transition(ctx context.Context, fullName string, next models.MigrationStatus) (*models.Repository, error) {
	repo, err := s.requireRepository(ctx, fullName)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(repo.Status, next) {
		return nil, fmt.Errorf("repository %s cannot move from %q to %q", fullName, repo.Status, next)
	}
	if err := s.repoStore.UpdateRepositoryStatus(ctx, fullName, next); err != nil {
		return nil, err
	}
	repo.Status = next
	return repo, nil
}

// GetHistory returns the migration attempts recorded for a repository.
func (s *RepositoryService) GetHistory(ctx context.Context, fullName string) ([]*models.MigrationHistory, error) {
	repo, err := s.requireRepository(ctx, fullName)
	if err != nil {
		return nil, err
	}
	return s.historyStore.GetMigrationHistory(ctx, repo.ID)
}

// GetLogs returns phase-tagged log lines for a repository, optionally
// filtered by level and phase.
func (s *RepositoryService) GetLogs(ctx context.Context, fullName, level, phase string, limit, offset int) ([]*models.MigrationLog, error) {
	repo, err := s.requireRepository(ctx, fullName)
	if err != nil {
		return nil, err
	}
	return s.historyStore.GetMigrationLogs(ctx, repo.ID, level, phase, limit, offset)
}

func (s *RepositoryService) requireRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	repo, err := s.repoStore.GetRepository(ctx, fullName)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository not found: %s", fullName)
	}
	return repo, nil
}
