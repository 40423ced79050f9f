package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

type executedCall struct {
	fullName string
	dryRun   bool
	hasBatch bool
}

// fakeImporter records executions. When settle is set, repositories are
// moved to a terminal status the way the real pipeline does; when fail is
// set, the call errors without settling.
type fakeImporter struct {
	mu     sync.Mutex
	db     *storage.Database
	settle bool
	fail   bool
	calls  []executedCall
}

func (f *fakeImporter) ExecuteMigration(ctx context.Context, repo *models.Repository, b *models.Batch, dryRun bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, executedCall{fullName: repo.FullName, dryRun: dryRun, hasBatch: b != nil})
	f.mu.Unlock()

	if f.fail {
		return fmt.Errorf("import exploded")
	}
	if f.settle {
		status := models.StatusComplete
		if dryRun {
			status = models.StatusDryRunComplete
		}
		return f.db.UpdateRepositoryStatus(ctx, repo.FullName, status)
	}
	return nil
}

func (f *fakeImporter) executed() []executedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]executedCall(nil), f.calls...)
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

func newTestWorker(t *testing.T, db *storage.Database, imp *fakeImporter, workers int) *Worker {
	t.Helper()
	w, err := New(Config{
		Importer:  imp,
		RepoStore: db,
		Batches:   db,
		Logger:    slog.New(slog.DiscardHandler),
		Workers:   workers,
	})
	require.NoError(t, err)
	return w
}

func seedRepo(t *testing.T, db *storage.Database, fullName string, status models.MigrationStatus, priority int) *models.Repository {
	t.Helper()
	repo := &models.Repository{
		FullName: fullName,
		Source:   models.SourceGitHub,
		Status:   status,
		Priority: priority,
	}
	require.NoError(t, db.SaveRepository(context.Background(), repo))
	return repo
}

func TestNewValidation(t *testing.T) {
	db := testDB(t)
	logger := slog.New(slog.DiscardHandler)

	_, err := New(Config{RepoStore: db, Batches: db, Logger: logger})
	assert.EqualError(t, err, "importer is required")

	_, err = New(Config{Importer: &fakeImporter{}, Batches: db, Logger: logger})
	assert.EqualError(t, err, "repository store is required")

	_, err = New(Config{Importer: &fakeImporter{}, RepoStore: db, Batches: db})
	assert.EqualError(t, err, "logger is required")
}

func TestProcessQueuedDispatchesByStatus(t *testing.T) {
	db := testDB(t)
	imp := &fakeImporter{db: db, settle: true}
	w := newTestWorker(t, db, imp, 5)
	ctx := context.Background()

	seedRepo(t, db, "acme/dry", models.StatusDryRunQueued, 0)
	seedRepo(t, db, "acme/real", models.StatusQueuedForMigration, 0)
	seedRepo(t, db, "acme/idle", models.StatusPending, 0)

	w.ProcessQueued(ctx)
	w.wg.Wait()

	calls := imp.executed()
	require.Len(t, calls, 2)

	byName := map[string]executedCall{}
	for _, c := range calls {
		byName[c.fullName] = c
	}
	assert.True(t, byName["acme/dry"].dryRun)
	assert.False(t, byName["acme/real"].dryRun)

	idle, err := db.GetRepository(ctx, "acme/idle")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, idle.Status)
	assert.Zero(t, w.ActiveCount())
}

func TestProcessQueuedHonorsPriorityAndSlots(t *testing.T) {
	db := testDB(t)
	imp := &fakeImporter{db: db, settle: true}
	w := newTestWorker(t, db, imp, 1)
	ctx := context.Background()

	seedRepo(t, db, "acme/low", models.StatusQueuedForMigration, 0)
	seedRepo(t, db, "acme/high", models.StatusQueuedForMigration, 10)

	w.ProcessQueued(ctx)
	w.wg.Wait()

	calls := imp.executed()
	require.Len(t, calls, 1, "one slot claims one repository")
	assert.Equal(t, "acme/high", calls[0].fullName)

	w.ProcessQueued(ctx)
	w.wg.Wait()

	calls = imp.executed()
	require.Len(t, calls, 2)
	assert.Equal(t, "acme/low", calls[1].fullName)
}

func TestRunRoutesFailureStatus(t *testing.T) {
	db := testDB(t)
	imp := &fakeImporter{db: db, fail: true}
	w := newTestWorker(t, db, imp, 5)
	ctx := context.Background()

	seedRepo(t, db, "acme/dry", models.StatusDryRunQueued, 0)
	seedRepo(t, db, "acme/real", models.StatusQueuedForMigration, 0)

	w.ProcessQueued(ctx)
	w.wg.Wait()

	dry, err := db.GetRepository(ctx, "acme/dry")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDryRunFailed, dry.Status)

	mig, err := db.GetRepository(ctx, "acme/real")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMigrationFailed, mig.Status)
}

func TestRunPassesBatchSettings(t *testing.T) {
	db := testDB(t)
	imp := &fakeImporter{db: db, settle: true}
	w := newTestWorker(t, db, imp, 5)
	ctx := context.Background()

	b := &models.Batch{Name: "wave-1", DestinationOrg: "new-org"}
	require.NoError(t, db.CreateBatch(ctx, b))
	repo := seedRepo(t, db, "acme/batched", models.StatusQueuedForMigration, 0)
	repo.BatchID = &b.ID
	require.NoError(t, db.UpdateRepository(ctx, repo))

	w.ProcessQueued(ctx)
	w.wg.Wait()

	calls := imp.executed()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].hasBatch)
}

func TestStartStop(t *testing.T) {
	db := testDB(t)
	imp := &fakeImporter{db: db, settle: true}
	w := newTestWorker(t, db, imp, 2)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start fails")
	require.NoError(t, w.Stop())
}
