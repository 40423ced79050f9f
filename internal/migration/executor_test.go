package migration

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// fakeAPI scripts the destination migration surface.
type fakeAPI struct {
	mu sync.Mutex

	destExists bool
	states     []migrationState
	stateIdx   int

	started     []startMigrationInput
	existsCalls int
}

func (f *fakeAPI) OrganizationID(_ context.Context, _ string) (string, error) {
	return "org-node-id", nil
}

func (f *fakeAPI) CreateMigrationSource(_ context.Context, _, sourceURL string, ado bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ado {
		return "src-ado|" + sourceURL, nil
	}
	return "src-gh|" + sourceURL, nil
}

func (f *fakeAPI) StartMigration(_ context.Context, in startMigrationInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, in)
	return "mig-1", nil
}

func (f *fakeAPI) MigrationState(_ context.Context, _ string) (*migrationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return &migrationState{State: stateSucceeded}, nil
	}
	state := f.states[f.stateIdx]
	if f.stateIdx < len(f.states)-1 {
		f.stateIdx++
	}
	return &state, nil
}

func (f *fakeAPI) RepositoryExists(_ context.Context, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	// The first call is the pre-migration collision check. Later calls are
	// post-migration verification of the freshly imported repository.
	if f.existsCalls == 1 {
		return f.destExists, nil
	}
	return true, nil
}

func testDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestExecutor(t *testing.T, db *storage.Database, api migrationAPI) *Executor {
	t.Helper()
	return &Executor{
		api:                api,
		sourceClient:       &github.Client{},
		sourceToken:        "source-token",
		destToken:          "dest-token",
		repos:              db,
		history:            db,
		logger:             slog.New(slog.DiscardHandler),
		visibilityHandling: VisibilityPrivate,
		pollInterval:       time.Millisecond,
		maxPollInterval:    time.Millisecond,
		timeout:            time.Minute,
		orgIDCache:         make(map[string]string),
		migSourceCache:     make(map[string]string),
	}
}

func seedRepo(t *testing.T, db *storage.Database, status models.MigrationStatus) *models.Repository {
	t.Helper()
	repo := &models.Repository{
		FullName:   "acme/widgets",
		Source:     models.SourceGitHub,
		SourceURL:  "https://github.example.com/acme/widgets",
		Visibility: models.VisibilityInternal,
		Status:     status,
	}
	require.NoError(t, db.SaveRepository(context.Background(), repo))
	return repo
}

func TestNewExecutorValidation(t *testing.T) {
	db := testDB(t)
	logger := slog.New(slog.DiscardHandler)

	_, err := NewExecutor(ExecutorConfig{RepoStore: db, HistoryStore: db, Logger: logger})
	assert.EqualError(t, err, "destination client is required")

	_, err = NewExecutor(ExecutorConfig{DestClient: &github.Client{}, HistoryStore: db, Logger: logger})
	assert.EqualError(t, err, "repository store is required")

	_, err = NewExecutor(ExecutorConfig{
		DestClient:         &github.Client{},
		RepoStore:          db,
		HistoryStore:       db,
		Logger:             logger,
		VisibilityHandling: "mirror",
	})
	assert.ErrorContains(t, err, "invalid visibility handling")
}

func TestExecuteMigrationDryRun(t *testing.T) {
	db := testDB(t)
	api := &fakeAPI{}
	e := newTestExecutor(t, db, api)
	ctx := context.Background()

	repo := seedRepo(t, db, models.StatusDryRunQueued)
	require.NoError(t, e.ExecuteMigration(ctx, repo, nil, true))

	got, err := db.GetRepository(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDryRunComplete, got.Status)
	assert.Nil(t, got.MigratedAt, "dry runs never mark the repository migrated")
	assert.Empty(t, api.started, "dry runs never start an import")

	history, err := db.GetMigrationHistory(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].DryRun)
	assert.Equal(t, "dry_run", history[0].Phase)
	assert.Equal(t, "completed", history[0].Status)
	assert.NotNil(t, history[0].CompletedAt)
}

func TestExecuteMigrationSuccess(t *testing.T) {
	db := testDB(t)
	api := &fakeAPI{states: []migrationState{
		{State: stateQueued},
		{State: stateInProgress},
		{State: stateSucceeded},
	}}
	e := newTestExecutor(t, db, api)
	ctx := context.Background()

	repo := seedRepo(t, db, models.StatusQueuedForMigration)
	b := &models.Batch{Name: "wave-1", DestinationOrg: "new-org", ExcludeReleases: true}

	require.NoError(t, e.ExecuteMigration(ctx, repo, b, false))

	got, err := db.GetRepository(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.NotNil(t, got.MigratedAt)

	require.Len(t, api.started, 1)
	started := api.started[0]
	assert.Equal(t, "widgets", started.RepositoryName)
	assert.Equal(t, "private", started.TargetVisibility)
	assert.True(t, started.SkipReleases, "batch exclude_releases carries into the import")
	assert.Equal(t, "source-token", started.SourceToken)

	history, err := db.GetMigrationHistory(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "migration", history[0].Phase)
	assert.Equal(t, "completed", history[0].Status)

	logs, err := db.GetMigrationLogs(ctx, repo.ID, "", "completion", 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestExecuteMigrationFailureRouting(t *testing.T) {
	db := testDB(t)
	api := &fakeAPI{states: []migrationState{
		{State: stateFailed, FailureReason: "git source migration failed"},
	}}
	e := newTestExecutor(t, db, api)
	ctx := context.Background()

	repo := seedRepo(t, db, models.StatusQueuedForMigration)
	err := e.ExecuteMigration(ctx, repo, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git source migration failed")

	got, err := db.GetRepository(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMigrationFailed, got.Status)

	history, err := db.GetMigrationHistory(ctx, repo.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "failed", history[0].Status)
	require.NotNil(t, history[0].Error)
	assert.Contains(t, *history[0].Error, "git source migration failed")
}

func TestDryRunFailsOnDestinationCollision(t *testing.T) {
	db := testDB(t)
	api := &fakeAPI{destExists: true}
	e := newTestExecutor(t, db, api)
	ctx := context.Background()

	repo := seedRepo(t, db, models.StatusDryRunQueued)
	err := e.ExecuteMigration(ctx, repo, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	got, err := db.GetRepository(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDryRunFailed, got.Status)
}

func TestValidateRejectsOversizedRepository(t *testing.T) {
	db := testDB(t)
	e := newTestExecutor(t, db, &fakeAPI{})
	ctx := context.Background()

	repo := seedRepo(t, db, models.StatusDryRunQueued)
	repo.Validation = &models.RepositoryValidation{HasOversizedRepository: true}
	require.NoError(t, db.SaveRepository(ctx, repo))

	err := e.ExecuteMigration(ctx, repo, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40 GiB")
}

func TestADOSourceUsesAzureDevOpsMigrationSource(t *testing.T) {
	db := testDB(t)
	api := &fakeAPI{}
	e := newTestExecutor(t, db, api)
	ctx := context.Background()

	repo := &models.Repository{
		FullName:  "fabrikam/Platform/widgets",
		Source:    models.SourceAzureDevOps,
		SourceURL: "https://dev.azure.com/fabrikam/Platform/_git/widgets",
		Status:    models.StatusQueuedForMigration,
	}
	require.NoError(t, db.SaveRepository(ctx, repo))
	b := &models.Batch{Name: "ado-wave", DestinationOrg: "new-org"}

	require.NoError(t, e.ExecuteMigration(ctx, repo, b, false))

	require.Len(t, api.started, 1)
	assert.Equal(t, "src-ado|https://dev.azure.com", api.started[0].SourceID)
	assert.Equal(t, "Platform-widgets", api.started[0].RepositoryName)
}

func TestTargetVisibility(t *testing.T) {
	e := &Executor{visibilityHandling: VisibilityKeep}
	assert.Equal(t, "public", e.targetVisibility(models.VisibilityPublic))
	assert.Equal(t, "private", e.targetVisibility(models.VisibilityInternal))
	assert.Equal(t, "private", e.targetVisibility(models.VisibilityPrivate))

	e.visibilityHandling = VisibilityPrivate
	assert.Equal(t, "private", e.targetVisibility(models.VisibilityPublic))
}

func TestNextPollInterval(t *testing.T) {
	initial := 30 * time.Second
	max := 5 * time.Minute

	assert.Equal(t, initial, nextPollInterval(time.Minute, initial, max))
	assert.Equal(t, time.Minute, nextPollInterval(10*time.Minute, initial, max))
	assert.Equal(t, max, nextPollInterval(3*time.Hour, initial, max))
}
