package storage

import (
	"context"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// RepositoryReader defines read operations for repositories.
type RepositoryReader interface {
	GetRepository(ctx context.Context, fullName string) (*models.Repository, error)
	GetRepositoryByID(ctx context.Context, id int64) (*models.Repository, error)
	GetRepositoriesByIDs(ctx context.Context, ids []int64) ([]*models.Repository, error)
	GetRepositoriesByNames(ctx context.Context, names []string) ([]*models.Repository, error)
	ListRepositories(ctx context.Context, filters map[string]any) ([]*models.Repository, error)
	CountRepositories(ctx context.Context, filters map[string]any) (int, error)
}

// RepositoryWriter defines write operations for repositories.
type RepositoryWriter interface {
	SaveRepository(ctx context.Context, repo *models.Repository) error
	UpdateRepository(ctx context.Context, repo *models.Repository) error
	UpdateRepositoryStatus(ctx context.Context, fullName string, status models.MigrationStatus) error
	DeleteRepository(ctx context.Context, fullName string) error
}

// RepositoryStore combines read and write operations for repositories.
type RepositoryStore interface {
	RepositoryReader
	RepositoryWriter
}

// BatchReader defines read operations for batches.
type BatchReader interface {
	GetBatch(ctx context.Context, id int64) (*models.Batch, error)
	GetBatchByName(ctx context.Context, name string) (*models.Batch, error)
	ListBatches(ctx context.Context) ([]*models.Batch, error)
}

// BatchWriter defines write operations for batches.
type BatchWriter interface {
	CreateBatch(ctx context.Context, batch *models.Batch) error
	UpdateBatch(ctx context.Context, batch *models.Batch) error
	// UpdateBatchStatusIf is a compare-and-set; it fails with
	// ErrStatusConflict when the batch moved since it was read.
	UpdateBatchStatusIf(ctx context.Context, batchID int64, expected, next models.BatchStatus) error
	DeleteBatch(ctx context.Context, batchID int64) error
	AddRepositoriesToBatch(ctx context.Context, batchID int64, repoIDs []int64) error
	RemoveRepositoriesFromBatch(ctx context.Context, batchID int64, repoIDs []int64) error
}

// BatchStore combines read and write operations for batches.
type BatchStore interface {
	BatchReader
	BatchWriter
}

// MigrationHistoryStore defines operations for migration history and logs.
type MigrationHistoryStore interface {
	GetMigrationHistory(ctx context.Context, repoID int64) ([]*models.MigrationHistory, error)
	GetMigrationLogs(ctx context.Context, repoID int64, level, phase string, limit, offset int) ([]*models.MigrationLog, error)
	CreateMigrationHistory(ctx context.Context, history *models.MigrationHistory) (int64, error)
	UpdateMigrationHistory(ctx context.Context, id int64, status string, errorMsg *string) error
	CreateMigrationLog(ctx context.Context, log *models.MigrationLog) error
}

// Compile-time interface checks.
var (
	_ RepositoryStore       = (*Database)(nil)
	_ BatchStore            = (*Database)(nil)
	_ MigrationHistoryStore = (*Database)(nil)
)
