package batch

import (
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// AggregateStatus computes a batch status from its member repository
// statuses. Repositories marked wont_migrate are settled and do not count
// against readiness or completion.
//
// A batch is ready exactly when every counted member is dry_run_complete;
// adding a pending member to a ready batch makes it pending again on the next
// reconciliation.
func AggregateStatus(repos []*models.Repository) models.BatchStatus {
	var active, complete, failed, dryRunComplete, settled int

	for _, repo := range repos {
		st := repo.Status
		switch {
		case st == models.StatusWontMigrate:
			settled++
		case st == models.StatusDryRunQueued || st == models.StatusDryRunInProgress ||
			st == models.StatusMigrationComplete || st.IsMigrationActive():
			active++
		case st == models.StatusComplete:
			complete++
		case st == models.StatusDryRunFailed || st == models.StatusMigrationFailed:
			failed++
		case st == models.StatusDryRunComplete:
			dryRunComplete++
		}
	}

	total := len(repos) - settled
	if total <= 0 {
		return models.BatchStatusPending
	}

	switch {
	case active > 0:
		return models.BatchStatusInProgress
	case complete == total:
		return models.BatchStatusCompleted
	case failed == total:
		return models.BatchStatusFailed
	case failed > 0:
		return models.BatchStatusCompletedWithErrors
	case complete > 0:
		// Some members migrated, the rest idle with no failures. The wave is
		// still underway until the remaining members are queued or settled.
		return models.BatchStatusInProgress
	case dryRunComplete == total:
		return models.BatchStatusReady
	default:
		return models.BatchStatusPending
	}
}
