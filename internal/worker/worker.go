// Package worker polls storage for queued repositories and runs them through
// the migration pipeline with a bounded number of parallel executions.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/migration"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultWorkers      = 5
)

// Config configures a Worker.
type Config struct {
	Importer  migration.Importer
	RepoStore storage.RepositoryStore
	Batches   storage.BatchStore
	Logger    *slog.Logger

	PollInterval time.Duration
	Workers      int
}

// Worker drains the dry-run and migration queues. Each poll claims up to the
// free worker slots, ordered by priority then age.
type Worker struct {
	importer     migration.Importer
	repos        storage.RepositoryStore
	batches      storage.BatchStore
	logger       *slog.Logger
	pollInterval time.Duration
	workers      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active map[int64]bool
}

// New creates a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	if cfg.RepoStore == nil {
		return nil, fmt.Errorf("repository store is required")
	}
	if cfg.Batches == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	return &Worker{
		importer:     cfg.Importer,
		repos:        cfg.RepoStore,
		batches:      cfg.Batches,
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		workers:      cfg.Workers,
		active:       make(map[int64]bool),
	}, nil
}

// Start begins polling. It returns immediately; Stop waits for in-flight
// migrations to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.ctx != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("Starting migration worker",
		"poll_interval", w.pollInterval,
		"workers", w.workers)

	w.wg.Add(1)
	go w.pollLoop()
	return nil
}

// Stop cancels polling and waits for active migrations to complete.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Migration worker stopped")
	return nil
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessQueued(w.ctx)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.ProcessQueued(w.ctx)
		}
	}
}

// ProcessQueued claims queued repositories up to the free worker slots and
// dispatches them. It is exported so a poll can be forced outside the loop.
func (w *Worker) ProcessQueued(ctx context.Context) {
	w.mu.RLock()
	activeCount := len(w.active)
	w.mu.RUnlock()

	slots := w.workers - activeCount
	if slots <= 0 {
		w.logger.Debug("All worker slots busy", "active", activeCount)
		return
	}

	repos, err := w.repos.ListRepositories(ctx, map[string]any{
		"status": []models.MigrationStatus{
			models.StatusQueuedForMigration,
			models.StatusDryRunQueued,
		},
		"limit": slots,
		"order": "priority DESC, id ASC",
	})
	if err != nil {
		w.logger.Error("Failed to fetch queued repositories", "error", err)
		return
	}
	if len(repos) == 0 {
		return
	}

	w.logger.Info("Claiming queued repositories", "count", len(repos), "slots", slots)

	for _, repo := range repos {
		w.mu.Lock()
		if w.active[repo.ID] {
			w.mu.Unlock()
			continue
		}
		w.active[repo.ID] = true
		w.mu.Unlock()

		w.wg.Add(1)
		go w.run(repo)
	}
}

// run executes one migration and routes the repository to a failed status if
// the pipeline itself could not.
func (w *Worker) run(repo *models.Repository) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.active, repo.ID)
		w.mu.Unlock()
	}()

	ctx := context.Background()
	dryRun := repo.Status == models.StatusDryRunQueued

	var b *models.Batch
	if repo.BatchID != nil {
		fetched, err := w.batches.GetBatch(ctx, *repo.BatchID)
		if err != nil {
			w.logger.Warn("Failed to fetch batch for repository",
				"repo", repo.FullName,
				"batch_id", *repo.BatchID,
				"error", err)
		} else {
			b = fetched
		}
	}

	w.logger.Info("Executing migration",
		"repo", repo.FullName,
		"dry_run", dryRun,
		"has_batch", b != nil)

	if err := w.importer.ExecuteMigration(ctx, repo, b, dryRun); err != nil {
		w.logger.Error("Migration failed",
			"repo", repo.FullName,
			"dry_run", dryRun,
			"error", err)
		w.ensureFailedStatus(ctx, repo, dryRun)
	}
}

// ensureFailedStatus routes the repository to the matching failed status when
// the pipeline exited without settling it.
func (w *Worker) ensureFailedStatus(ctx context.Context, repo *models.Repository, dryRun bool) {
	current, err := w.repos.GetRepository(ctx, repo.FullName)
	if err != nil || current == nil {
		return
	}

	failed := models.StatusMigrationFailed
	if dryRun {
		failed = models.StatusDryRunFailed
	}
	if current.Status == failed {
		return
	}

	if err := w.repos.UpdateRepositoryStatus(ctx, repo.FullName, failed); err != nil {
		w.logger.Error("Failed to update repository status after failure",
			"repo", repo.FullName,
			"error", err)
	}
}

// ActiveCount returns the number of in-flight migrations.
func (w *Worker) ActiveCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.active)
}

// ActiveIDs returns the repository IDs currently migrating.
func (w *Worker) ActiveIDs() []int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]int64, 0, len(w.active))
	for id := range w.active {
		ids = append(ids, id)
	}
	return ids
}
