package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/batch"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// migrationContext carries per-run state through the phases.
type migrationContext struct {
	repo        *models.Repository
	batch       *models.Batch
	dryRun      bool
	historyID   int64
	dest        batch.Destination
	migrationID string
}

func (e *Executor) newContext(ctx context.Context, repo *models.Repository, b *models.Batch, dryRun bool) (*migrationContext, error) {
	historyID, err := e.createHistory(ctx, repo, dryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration history: %w", err)
	}
	return &migrationContext{
		repo:      repo,
		batch:     b,
		dryRun:    dryRun,
		historyID: historyID,
		dest:      batch.ResolveDestination(repo, b),
	}, nil
}

// phaseValidate confirms the repository can migrate to its destination. Both
// dry runs and real runs pass through it.
func (e *Executor) phaseValidate(ctx context.Context, mc *migrationContext) error {
	e.logOperation(ctx, mc, "INFO", "pre_migration", "validation_started",
		fmt.Sprintf("Validating migration to %s", mc.dest.FullName()), nil)

	if mc.dest.Org == "" {
		return fmt.Errorf("unable to determine destination organization for %s", mc.repo.FullName)
	}
	if mc.repo.SourceURL == "" {
		return fmt.Errorf("repository %s has no recorded source URL", mc.repo.FullName)
	}
	if e.sourceToken == "" {
		return fmt.Errorf("source access token is not configured")
	}
	if !mc.repo.IsADOSource() && e.sourceClient == nil {
		return fmt.Errorf("source client is not configured for GitHub source %s", mc.repo.FullName)
	}
	if v := mc.repo.Validation; v != nil && v.HasOversizedRepository {
		return fmt.Errorf("repository exceeds the 40 GiB size limit")
	}

	exists, err := e.api.RepositoryExists(ctx, mc.dest.Org, mc.dest.Name)
	if err != nil {
		return fmt.Errorf("failed to check destination repository: %w", err)
	}
	if exists {
		return fmt.Errorf("destination repository %s already exists", mc.dest.FullName())
	}

	e.logOperation(ctx, mc, "INFO", "pre_migration", "validation_passed",
		fmt.Sprintf("Destination %s is available", mc.dest.FullName()), nil)
	return nil
}

// phaseStartMigration kicks off the import on the destination.
func (e *Executor) phaseStartMigration(ctx context.Context, mc *migrationContext) error {
	e.setStatus(ctx, mc, models.StatusArchiveGenerating)

	ownerID, err := e.organizationID(ctx, mc.dest.Org)
	if err != nil {
		return err
	}

	ado := mc.repo.IsADOSource()
	sourceID, err := e.migrationSourceID(ctx, ownerID, e.sourceBaseURL(mc.repo), ado)
	if err != nil {
		return err
	}

	migrationID, err := e.api.StartMigration(ctx, startMigrationInput{
		SourceID:            sourceID,
		OwnerID:             ownerID,
		SourceRepositoryURL: mc.repo.SourceURL,
		RepositoryName:      mc.dest.Name,
		TargetVisibility:    e.targetVisibility(mc.repo.Visibility),
		SkipReleases:        e.shouldExcludeReleases(mc),
		SourceToken:         e.sourceToken,
		DestToken:           e.destToken,
	})
	if err != nil {
		return err
	}
	mc.migrationID = migrationID

	e.logOperation(ctx, mc, "INFO", "migration_start", "migration_started",
		fmt.Sprintf("Migration %s started for %s", migrationID, mc.dest.FullName()), nil)
	return nil
}

// phasePollMigration waits for the destination to finish the import,
// mirroring its reported state onto the repository status.
func (e *Executor) phasePollMigration(ctx context.Context, mc *migrationContext) error {
	startTime := time.Now()
	deadline := startTime.Add(e.timeout)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("migration timed out after %s", e.timeout)
		}

		state, err := e.api.MigrationState(ctx, mc.migrationID)
		if err != nil {
			return err
		}
		e.logger.Debug("Migration state",
			"repo", mc.repo.FullName,
			"migration_id", mc.migrationID,
			"state", state.State)

		switch state.State {
		case stateSucceeded:
			e.logOperation(ctx, mc, "INFO", "migration_progress", "import_succeeded",
				fmt.Sprintf("Import finished after %s", time.Since(startTime).Round(time.Second)), nil)
			return nil

		case stateFailed, stateFailedValidation:
			reason := state.FailureReason
			if reason == "" {
				reason = "no failure reason reported"
			}
			return fmt.Errorf("migration failed: %s", reason)

		case stateQueued, statePendingValidation:
			// Export side still running, leave status at archive_generating.

		case stateInProgress:
			if mc.repo.Status != models.StatusMigratingContent {
				e.setStatus(ctx, mc, models.StatusMigratingContent)
			}

		default:
			e.logger.Warn("Unknown migration state",
				"repo", mc.repo.FullName,
				"state", state.State)
		}

		interval := nextPollInterval(time.Since(startTime), e.pollInterval, e.maxPollInterval)
		timer.Reset(interval)
	}
}

// phasePostMigration verifies the migrated repository is visible at the
// destination. Failures are recorded but never fail the run.
func (e *Executor) phasePostMigration(ctx context.Context, mc *migrationContext) {
	e.setStatus(ctx, mc, models.StatusPostMigration)

	exists, err := e.api.RepositoryExists(ctx, mc.dest.Org, mc.dest.Name)
	if err != nil {
		msg := err.Error()
		e.logOperation(ctx, mc, "WARN", "post_migration", "verification_error",
			"Could not verify destination repository", &msg)
		return
	}
	if !exists {
		e.logOperation(ctx, mc, "WARN", "post_migration", "verification_failed",
			fmt.Sprintf("Destination repository %s not found after import", mc.dest.FullName()), nil)
		return
	}
	e.logOperation(ctx, mc, "INFO", "post_migration", "verification_passed",
		fmt.Sprintf("Destination repository %s verified", mc.dest.FullName()), nil)
}

// phaseCompletion settles the repository in its terminal success status and
// closes out the history record.
func (e *Executor) phaseCompletion(ctx context.Context, mc *migrationContext) error {
	if mc.dryRun {
		e.setStatus(ctx, mc, models.StatusDryRunComplete)
		e.logOperation(ctx, mc, "INFO", "completion", "dry_run_complete",
			fmt.Sprintf("Dry run passed for %s", mc.repo.FullName), nil)
	} else {
		e.setStatus(ctx, mc, models.StatusMigrationComplete)
		now := time.Now().UTC()
		mc.repo.MigratedAt = &now
		e.setStatus(ctx, mc, models.StatusComplete)
		e.logOperation(ctx, mc, "INFO", "completion", "migration_complete",
			fmt.Sprintf("Migrated %s to %s", mc.repo.FullName, mc.dest.FullName()), nil)
	}

	e.updateHistoryStatus(ctx, mc.historyID, "completed", nil)

	e.logger.Info("Migration finished",
		"repo", mc.repo.FullName,
		"destination", mc.dest.FullName(),
		"dry_run", mc.dryRun)
	return nil
}

// sourceBaseURL is the URL recorded on the destination's migration source.
func (e *Executor) sourceBaseURL(repo *models.Repository) string {
	if repo.IsADOSource() {
		return "https://dev.azure.com"
	}
	return e.sourceClient.BaseURL()
}

// shouldExcludeReleases honors the repository flag first, then the batch.
func (e *Executor) shouldExcludeReleases(mc *migrationContext) bool {
	if mc.repo.ExcludeReleases {
		return true
	}
	return mc.batch != nil && mc.batch.ExcludeReleases
}
