package batch

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func TestComposeByTier(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seed := func(name, tier string, score int) {
		repo := &models.Repository{
			FullName: "acme/" + name,
			Source:   models.SourceGitHub,
			Status:   models.StatusPending,
			Validation: &models.RepositoryValidation{
				ComplexityScore: score,
				ComplexityTier:  tier,
			},
		}
		require.NoError(t, db.SaveRepository(ctx, repo))
	}
	seed("a", models.TierSimple, 2)
	seed("b", models.TierSimple, 4)
	seed("c", models.TierSimple, 3)
	seed("d", models.TierComplex, 15)

	o, err := NewOrganizer(OrganizerConfig{Database: db, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	batches, err := o.ComposeByTier(ctx, ComposeOptions{
		DestinationOrg: "new-org",
		MaxPerBatch:    2,
	})
	require.NoError(t, err)
	require.Len(t, batches, 3)

	// Simple tier splits into two waves of two and one, complex gets its own.
	assert.Equal(t, "wave-01-simple", batches[0].Name)
	assert.Equal(t, 2, batches[0].RepoCount)
	assert.Equal(t, "wave-02-simple", batches[1].Name)
	assert.Equal(t, 1, batches[1].RepoCount)
	assert.Equal(t, "wave-03-complex", batches[2].Name)
	assert.Equal(t, "new-org", batches[2].DestinationOrg)

	// Every repository ends up assigned.
	unassigned, err := db.ListRepositories(ctx, map[string]any{"batch_id": "none"})
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestComposeByTierSkipsIneligible(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	repo := &models.Repository{
		FullName: "acme/huge",
		Source:   models.SourceGitHub,
		Status:   models.StatusPending,
		Validation: &models.RepositoryValidation{
			ComplexityTier:         models.TierVeryComplex,
			HasOversizedRepository: true,
		},
	}
	require.NoError(t, db.SaveRepository(ctx, repo))

	o, err := NewOrganizer(OrganizerConfig{Database: db, Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	batches, err := o.ComposeByTier(ctx, ComposeOptions{DestinationOrg: "new-org"})
	require.NoError(t, err)
	assert.Empty(t, batches)
}
