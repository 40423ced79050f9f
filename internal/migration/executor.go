package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// VisibilityHandling controls how source visibility maps to the destination.
const (
	// VisibilityKeep carries the source visibility over, except internal
	// repositories which become private.
	VisibilityKeep = "keep"
	// VisibilityPrivate makes every migrated repository private.
	VisibilityPrivate = "private"
)

const (
	defaultPollInterval    = 30 * time.Second
	defaultMaxPollInterval = 5 * time.Minute
	defaultTimeout         = 48 * time.Hour

	// fastPhaseDuration is how long polling stays at the initial interval
	// before backing off. Most small repositories finish inside it.
	fastPhaseDuration = 10 * time.Minute
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// SourceClient authenticates against a GitHub source. Optional when
	// every source repository is Azure DevOps.
	SourceClient *github.Client

	// SourceToken overrides the source access token passed to the
	// destination. Required for Azure DevOps sources, where it is the PAT
	// the destination uses to pull from ADO.
	SourceToken string

	// DestClient authenticates against the destination. Required.
	DestClient *github.Client

	RepoStore    storage.RepositoryStore
	HistoryStore storage.MigrationHistoryStore
	Logger       *slog.Logger

	// VisibilityHandling is VisibilityKeep or VisibilityPrivate. Defaults
	// to VisibilityPrivate.
	VisibilityHandling string

	PollInterval    time.Duration
	MaxPollInterval time.Duration
	Timeout         time.Duration
}

// Executor drives repositories through the migration pipeline and records
// each attempt in migration history. It is safe for concurrent use.
type Executor struct {
	api          migrationAPI
	sourceClient *github.Client
	sourceToken  string
	destToken    string
	repos        storage.RepositoryStore
	history      storage.MigrationHistoryStore
	logger       *slog.Logger

	visibilityHandling string
	pollInterval       time.Duration
	maxPollInterval    time.Duration
	timeout            time.Duration

	mu             sync.Mutex
	orgIDCache     map[string]string
	migSourceCache map[string]string
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.DestClient == nil {
		return nil, fmt.Errorf("destination client is required")
	}
	if cfg.RepoStore == nil {
		return nil, fmt.Errorf("repository store is required")
	}
	if cfg.HistoryStore == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.VisibilityHandling == "" {
		cfg.VisibilityHandling = VisibilityPrivate
	}
	if cfg.VisibilityHandling != VisibilityKeep && cfg.VisibilityHandling != VisibilityPrivate {
		return nil, fmt.Errorf("invalid visibility handling %q", cfg.VisibilityHandling)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = defaultMaxPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	sourceToken := cfg.SourceToken
	if sourceToken == "" && cfg.SourceClient != nil {
		sourceToken = cfg.SourceClient.Token()
	}

	return &Executor{
		api:                newGEIClient(cfg.DestClient),
		sourceClient:       cfg.SourceClient,
		sourceToken:        sourceToken,
		destToken:          cfg.DestClient.Token(),
		repos:              cfg.RepoStore,
		history:            cfg.HistoryStore,
		logger:             cfg.Logger,
		visibilityHandling: cfg.VisibilityHandling,
		pollInterval:       cfg.PollInterval,
		maxPollInterval:    cfg.MaxPollInterval,
		timeout:            cfg.Timeout,
		orgIDCache:         make(map[string]string),
		migSourceCache:     make(map[string]string),
	}, nil
}

var _ Importer = (*Executor)(nil)

// ExecuteMigration runs one repository through the pipeline. Dry runs stop
// after validation and never touch the destination beyond a collision check.
func (e *Executor) ExecuteMigration(ctx context.Context, repo *models.Repository, b *models.Batch, dryRun bool) error {
	mc, err := e.newContext(ctx, repo, b, dryRun)
	if err != nil {
		return err
	}

	e.logger.Info("Starting migration",
		"repo", repo.FullName,
		"destination", mc.dest.FullName(),
		"dry_run", dryRun)

	initial := models.StatusPreMigration
	if dryRun {
		initial = models.StatusDryRunInProgress
	}
	e.setStatus(ctx, mc, initial)

	if err := e.phaseValidate(ctx, mc); err != nil {
		return e.handlePhaseError(ctx, mc, "pre_migration", err)
	}

	if dryRun {
		return e.phaseCompletion(ctx, mc)
	}

	if err := e.phaseStartMigration(ctx, mc); err != nil {
		return e.handlePhaseError(ctx, mc, "migration_start", err)
	}

	if err := e.phasePollMigration(ctx, mc); err != nil {
		return e.handlePhaseError(ctx, mc, "migration_progress", err)
	}

	// Post-migration checks are advisory and never fail the migration.
	e.phasePostMigration(ctx, mc)

	return e.phaseCompletion(ctx, mc)
}

// setStatus persists a repository status change, logging failures rather
// than aborting the run.
func (e *Executor) setStatus(ctx context.Context, mc *migrationContext, status models.MigrationStatus) {
	mc.repo.Status = status
	if err := e.repos.UpdateRepository(ctx, mc.repo); err != nil {
		e.logger.Error("Failed to update repository status",
			"repo", mc.repo.FullName,
			"status", status,
			"error", err)
	}
}

// handlePhaseError records the failure in history and routes the repository
// to the matching failed status.
func (e *Executor) handlePhaseError(ctx context.Context, mc *migrationContext, phase string, err error) error {
	msg := err.Error()
	e.logOperation(ctx, mc, "ERROR", phase, "phase_failed", msg, nil)
	e.updateHistoryStatus(ctx, mc.historyID, "failed", &msg)

	failed := models.StatusMigrationFailed
	if mc.dryRun {
		failed = models.StatusDryRunFailed
	}
	e.setStatus(ctx, mc, failed)

	e.logger.Error("Migration phase failed",
		"repo", mc.repo.FullName,
		"phase", phase,
		"dry_run", mc.dryRun,
		"error", err)
	return fmt.Errorf("%s: %w", phase, err)
}

func (e *Executor) createHistory(ctx context.Context, repo *models.Repository, dryRun bool) (int64, error) {
	phase := "migration"
	if dryRun {
		phase = "dry_run"
	}
	history := &models.MigrationHistory{
		RunID:        uuid.NewString(),
		RepositoryID: repo.ID,
		BatchID:      repo.BatchID,
		DryRun:       dryRun,
		Phase:        phase,
		Status:       "in_progress",
		StartedAt:    time.Now().UTC(),
	}
	return e.history.CreateMigrationHistory(ctx, history)
}

func (e *Executor) updateHistoryStatus(ctx context.Context, historyID int64, status string, errorMsg *string) {
	if err := e.history.UpdateMigrationHistory(ctx, historyID, status, errorMsg); err != nil {
		e.logger.Error("Failed to update migration history", "history_id", historyID, "error", err)
	}
}

func (e *Executor) logOperation(ctx context.Context, mc *migrationContext, level, phase, operation, message string, details *string) {
	entry := &models.MigrationLog{
		HistoryID:    mc.historyID,
		RepositoryID: mc.repo.ID,
		Level:        level,
		Phase:        phase,
		Operation:    operation,
		Message:      message,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.history.CreateMigrationLog(ctx, entry); err != nil {
		e.logger.Error("Failed to create migration log", "error", err)
	}
}

// organizationID resolves and caches a destination organization's node ID.
func (e *Executor) organizationID(ctx context.Context, org string) (string, error) {
	e.mu.Lock()
	id, ok := e.orgIDCache[org]
	e.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := e.api.OrganizationID(ctx, org)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.orgIDCache[org] = id
	e.mu.Unlock()
	return id, nil
}

// migrationSourceID resolves and caches the migration source for an owner.
func (e *Executor) migrationSourceID(ctx context.Context, ownerID, sourceURL string, ado bool) (string, error) {
	key := ownerID + "|" + sourceURL

	e.mu.Lock()
	id, ok := e.migSourceCache[key]
	e.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := e.api.CreateMigrationSource(ctx, ownerID, sourceURL, ado)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.migSourceCache[key] = id
	e.mu.Unlock()
	return id, nil
}

// targetVisibility maps a source visibility to the destination value.
func (e *Executor) targetVisibility(sourceVisibility string) string {
	if e.visibilityHandling == VisibilityKeep {
		if sourceVisibility == models.VisibilityPublic {
			return "public"
		}
		return "private"
	}
	return "private"
}

// nextPollInterval backs off after the fast phase so long-running imports do
// not burn rate limit on polling.
func nextPollInterval(elapsed, initial, max time.Duration) time.Duration {
	if elapsed < fastPhaseDuration {
		return initial
	}
	scaled := initial * time.Duration(1+elapsed/fastPhaseDuration)
	if scaled > max {
		return max
	}
	return scaled
}
