package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// Organizer composes batches from unassigned repositories, grouped by
// complexity tier so each wave carries repositories of similar risk.
type Organizer struct {
	db     *storage.Database
	logger *slog.Logger
}

// OrganizerConfig holds configuration for the batch organizer.
type OrganizerConfig struct {
	Database *storage.Database
	Logger   *slog.Logger
}

// NewOrganizer creates a batch organizer.
func NewOrganizer(cfg OrganizerConfig) (*Organizer, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Organizer{db: cfg.Database, logger: cfg.Logger}, nil
}

// ComposeOptions controls batch composition.
type ComposeOptions struct {
	// DestinationOrg is set on every created batch.
	DestinationOrg string
	// MaxPerBatch caps members per batch; 0 means 25.
	MaxPerBatch int
	// NamePrefix prefixes generated batch names; defaults to "wave".
	NamePrefix string
}

// tierOrder is the migration order: simple waves first.
var tierOrder = []string{models.TierSimple, models.TierMedium, models.TierComplex, models.TierVeryComplex}

// ComposeByTier groups every unassigned, eligible repository into new batches
// by complexity tier, lowest tier first. Within a tier, repositories are
// ordered by complexity score so each batch stays homogeneous.
func (o *Organizer) ComposeByTier(ctx context.Context, opts ComposeOptions) ([]*models.Batch, error) {
	maxPerBatch := opts.MaxPerBatch
	if maxPerBatch <= 0 {
		maxPerBatch = 25
	}
	prefix := opts.NamePrefix
	if prefix == "" {
		prefix = "wave"
	}

	repos, err := o.db.ListRepositories(ctx, map[string]any{"batch_id": "none"})
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned repositories: %w", err)
	}

	byTier := make(map[string][]*models.Repository)
	for _, repo := range repos {
		if ok, _ := repo.CanBeAssignedToBatch(); !ok {
			continue
		}
		tier := models.TierVeryComplex
		if repo.Validation != nil && repo.Validation.ComplexityTier != "" {
			tier = repo.Validation.ComplexityTier
		}
		byTier[tier] = append(byTier[tier], repo)
	}

	var created []*models.Batch
	wave := 0
	for _, tier := range tierOrder {
		members := byTier[tier]
		if len(members) == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return score(members[i]) < score(members[j])
		})

		for start := 0; start < len(members); start += maxPerBatch {
			end := start + maxPerBatch
			if end > len(members) {
				end = len(members)
			}
			wave++

			b := &models.Batch{
				Name:           fmt.Sprintf("%s-%02d-%s", prefix, wave, tier),
				Description:    fmt.Sprintf("Auto-composed %s tier wave", tier),
				DestinationOrg: opts.DestinationOrg,
				Status:         models.BatchStatusPending,
			}
			if err := o.db.CreateBatch(ctx, b); err != nil {
				return created, fmt.Errorf("failed to create batch %s: %w", b.Name, err)
			}

			ids := make([]int64, 0, end-start)
			for _, repo := range members[start:end] {
				ids = append(ids, repo.ID)
			}
			if err := o.db.AddRepositoriesToBatch(ctx, b.ID, ids); err != nil {
				return created, fmt.Errorf("failed to assign repositories to %s: %w", b.Name, err)
			}
			b.RepoCount = len(ids)
			created = append(created, b)

			o.logger.Info("Composed batch",
				"batch_name", b.Name,
				"tier", tier,
				"repos", len(ids))
		}
	}

	return created, nil
}

func score(repo *models.Repository) int {
	if repo.Validation == nil {
		return 0
	}
	return repo.Validation.ComplexityScore
}
