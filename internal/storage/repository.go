package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// applyRepoFilters builds a query from the filter map. Supported keys:
// status (string, models.MigrationStatus, or a slice of either), batch_id
// (int64 or "none"), source, organization, complexity_tier, limit, offset,
// order.
func applyRepoFilters(q *gorm.DB, filters map[string]any) *gorm.DB {
	if v, ok := filters["status"]; ok {
		switch s := v.(type) {
		case string:
			q = q.Where("status = ?", s)
		case models.MigrationStatus:
			q = q.Where("status = ?", string(s))
		case []string:
			q = q.Where("status IN ?", s)
		case []models.MigrationStatus:
			strs := make([]string, len(s))
			for i, st := range s {
				strs[i] = string(st)
			}
			q = q.Where("status IN ?", strs)
		}
	}
	if v, ok := filters["batch_id"]; ok {
		if v == "none" {
			q = q.Where("batch_id IS NULL")
		} else {
			q = q.Where("batch_id = ?", v)
		}
	}
	if v, ok := filters["source"]; ok {
		q = q.Where("source = ?", v)
	}
	if v, ok := filters["organization"]; ok {
		q = q.Where("full_name LIKE ?", fmt.Sprintf("%v/%%", v))
	}
	if v, ok := filters["complexity_tier"]; ok {
		q = q.Joins("JOIN repository_validations rv ON rv.repository_id = repositories.id").
			Where("rv.complexity_tier = ?", v)
	}
	return q
}

// applyRepoPaging applies order/limit/offset. Kept separate from the where
// clauses so counting can reuse the filters without an ORDER BY.
func applyRepoPaging(q *gorm.DB, filters map[string]any) *gorm.DB {
	if v, ok := filters["order"].(string); ok {
		q = q.Order(v)
	} else {
		q = q.Order("full_name ASC")
	}
	if v, ok := filters["limit"].(int); ok && v > 0 {
		q = q.Limit(v)
	}
	if v, ok := filters["offset"].(int); ok && v > 0 {
		q = q.Offset(v)
	}
	return q
}

func (d *Database) preloadRepo(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).
		Preload("GitProperties").
		Preload("Features").
		Preload("ADOProperties").
		Preload("Validation")
}

// GetRepository retrieves a single repository by full name.
func (d *Database) GetRepository(ctx context.Context, fullName string) (*models.Repository, error) {
	var repo models.Repository
	err := d.preloadRepo(ctx).Where("full_name = ?", fullName).First(&repo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s: %w", fullName, err)
	}
	return &repo, nil
}

// GetRepositoryByID retrieves a single repository by ID.
func (d *Database) GetRepositoryByID(ctx context.Context, id int64) (*models.Repository, error) {
	var repo models.Repository
	err := d.preloadRepo(ctx).First(&repo, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %d: %w", id, err)
	}
	return &repo, nil
}

// GetRepositoriesByIDs retrieves multiple repositories by their IDs.
func (d *Database) GetRepositoriesByIDs(ctx context.Context, ids []int64) ([]*models.Repository, error) {
	var repos []*models.Repository
	if err := d.preloadRepo(ctx).Where("id IN ?", ids).Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("failed to get repositories by ids: %w", err)
	}
	return repos, nil
}

// GetRepositoriesByNames retrieves multiple repositories by their full names.
func (d *Database) GetRepositoriesByNames(ctx context.Context, names []string) ([]*models.Repository, error) {
	var repos []*models.Repository
	if err := d.preloadRepo(ctx).Where("full_name IN ?", names).Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("failed to get repositories by names: %w", err)
	}
	return repos, nil
}

// ListRepositories returns repositories matching the given filters.
func (d *Database) ListRepositories(ctx context.Context, filters map[string]any) ([]*models.Repository, error) {
	var repos []*models.Repository
	q := applyRepoPaging(applyRepoFilters(d.preloadRepo(ctx).Model(&models.Repository{}), filters), filters)
	if err := q.Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, nil
}

// CountRepositories counts repositories matching the given filters.
func (d *Database) CountRepositories(ctx context.Context, filters map[string]any) (int, error) {
	var count int64
	countFilters := make(map[string]any, len(filters))
	for k, v := range filters {
		if k == "limit" || k == "offset" || k == "order" {
			continue
		}
		countFilters[k] = v
	}
	q := applyRepoFilters(d.db.WithContext(ctx).Model(&models.Repository{}), countFilters)
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count repositories: %w", err)
	}
	return int(count), nil
}

// SaveRepository creates the repository row if it is new, otherwise updates
// it. Component rows present on the struct are replaced wholesale so each
// discovery pass overwrites only its own facts.
func (d *Database) SaveRepository(ctx context.Context, repo *models.Repository) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Repository
		err := tx.Where("full_name = ?", repo.FullName).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit(clause.Associations).Create(repo).Error; err != nil {
				return fmt.Errorf("failed to create repository: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up repository: %w", err)
		default:
			repo.ID = existing.ID
			repo.CreatedAt = existing.CreatedAt
			if err := tx.Omit(clause.Associations).Save(repo).Error; err != nil {
				return fmt.Errorf("failed to update repository: %w", err)
			}
		}

		return saveComponents(tx, repo)
	})
}

// saveComponents upserts each non-nil component row keyed by repository id.
func saveComponents(tx *gorm.DB, repo *models.Repository) error {
	if repo.GitProperties != nil {
		repo.GitProperties.RepositoryID = repo.ID
		if err := upsertComponent(tx, repo.GitProperties); err != nil {
			return fmt.Errorf("failed to save git properties: %w", err)
		}
	}
	if repo.Features != nil {
		repo.Features.RepositoryID = repo.ID
		if err := upsertComponent(tx, repo.Features); err != nil {
			return fmt.Errorf("failed to save features: %w", err)
		}
	}
	if repo.ADOProperties != nil {
		repo.ADOProperties.RepositoryID = repo.ID
		if err := upsertComponent(tx, repo.ADOProperties); err != nil {
			return fmt.Errorf("failed to save ado properties: %w", err)
		}
	}
	if repo.Validation != nil {
		repo.Validation.RepositoryID = repo.ID
		if err := upsertComponent(tx, repo.Validation); err != nil {
			return fmt.Errorf("failed to save validation: %w", err)
		}
	}
	return nil
}

func upsertComponent[T any](tx *gorm.DB, row *T) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "repository_id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// UpdateRepository updates an existing repository row and any component rows
// attached to it.
func (d *Database) UpdateRepository(ctx context.Context, repo *models.Repository) error {
	if repo.ID == 0 {
		return fmt.Errorf("repository has no id")
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Select("*") so nil batch_id and false flags are written too.
		if err := tx.Omit(clause.Associations).Model(repo).
			Select("*").Omit("id", "created_at").Updates(repo).Error; err != nil {
			return fmt.Errorf("failed to update repository: %w", err)
		}
		return saveComponents(tx, repo)
	})
}

// UpdateRepositoryStatus updates the status of a repository by full name.
func (d *Database) UpdateRepositoryStatus(ctx context.Context, fullName string, status models.MigrationStatus) error {
	result := d.db.WithContext(ctx).Model(&models.Repository{}).
		Where("full_name = ?", fullName).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to update status for %s: %w", fullName, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository not found: %s", fullName)
	}
	return nil
}

// DeleteRepository removes a repository and its component rows by full name.
func (d *Database) DeleteRepository(ctx context.Context, fullName string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var repo models.Repository
		err := tx.Where("full_name = ?", fullName).First(&repo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up repository: %w", err)
		}

		for _, component := range []any{
			&models.RepositoryGitProperties{},
			&models.RepositoryFeatures{},
			&models.RepositoryADOProperties{},
			&models.RepositoryValidation{},
		} {
			if err := tx.Where("repository_id = ?", repo.ID).Delete(component).Error; err != nil {
				return fmt.Errorf("failed to delete component row: %w", err)
			}
		}

		if err := tx.Delete(&repo).Error; err != nil {
			return fmt.Errorf("failed to delete repository: %w", err)
		}
		return nil
	})
}
