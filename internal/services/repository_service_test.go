package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func newRepoService(t *testing.T) (*RepositoryService, *BatchService, func(string, models.MigrationStatus) *models.Repository) {
	t.Helper()
	db := testDB(t)
	svc := NewRepositoryService(db, db, slog.New(slog.DiscardHandler))
	seed := func(name string, status models.MigrationStatus) *models.Repository {
		return seedRepo(t, db, name, status)
	}
	return svc, newBatchService(t, db), seed
}

func TestSetDestinationOverride(t *testing.T) {
	svc, _, seed := newRepoService(t)
	ctx := context.Background()
	seed("acme/widgets", models.StatusPending)

	dest := "new-org/renamed"
	repo, err := svc.SetDestinationOverride(ctx, "acme/widgets", &dest)
	require.NoError(t, err)
	require.NotNil(t, repo.DestinationOverride)
	assert.Equal(t, dest, *repo.DestinationOverride)

	repo, err = svc.SetDestinationOverride(ctx, "acme/widgets", nil)
	require.NoError(t, err)
	assert.Nil(t, repo.DestinationOverride)

	_, err = svc.SetDestinationOverride(ctx, "acme/missing", &dest)
	assert.ErrorContains(t, err, "not found")
}

func TestWontMigrateRoundTrip(t *testing.T) {
	svc, _, seed := newRepoService(t)
	ctx := context.Background()
	seed("acme/widgets", models.StatusPending)

	repo, err := svc.MarkWontMigrate(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWontMigrate, repo.Status)

	repo, err = svc.Reinstate(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, repo.Status)
}

func TestWontMigrateRejectsActiveRepository(t *testing.T) {
	svc, _, seed := newRepoService(t)
	ctx := context.Background()
	seed("acme/widgets", models.StatusMigratingContent)

	_, err := svc.MarkWontMigrate(ctx, "acme/widgets")
	assert.ErrorContains(t, err, "cannot move")
}

func TestListRepositoriesReturnsTotal(t *testing.T) {
	svc, _, seed := newRepoService(t)
	ctx := context.Background()
	seed("acme/a", models.StatusPending)
	seed("acme/b", models.StatusPending)
	seed("acme/c", models.StatusComplete)

	repos, total, err := svc.ListRepositories(ctx, map[string]any{
		"status": models.StatusPending,
		"limit":  1,
	})
	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Equal(t, 2, total)
}
