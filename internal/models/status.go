package models

// MigrationStatus is the lifecycle state of a single repository.
type MigrationStatus string

const (
	StatusPending            MigrationStatus = "pending"
	StatusDryRunQueued       MigrationStatus = "dry_run_queued"
	StatusDryRunInProgress   MigrationStatus = "dry_run_in_progress"
	StatusDryRunComplete     MigrationStatus = "dry_run_complete"
	StatusDryRunFailed       MigrationStatus = "dry_run_failed"
	StatusQueuedForMigration MigrationStatus = "queued_for_migration"
	StatusPreMigration       MigrationStatus = "pre_migration"
	StatusArchiveGenerating  MigrationStatus = "archive_generating"
	StatusMigratingContent   MigrationStatus = "migrating_content"
	StatusPostMigration      MigrationStatus = "post_migration"
	StatusMigrationComplete  MigrationStatus = "migration_complete"
	StatusComplete           MigrationStatus = "complete"
	StatusMigrationFailed    MigrationStatus = "migration_failed"
	StatusRolledBack         MigrationStatus = "rolled_back"
	StatusWontMigrate        MigrationStatus = "wont_migrate"
)

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending             BatchStatus = "pending"
	BatchStatusReady               BatchStatus = "ready"
	BatchStatusInProgress          BatchStatus = "in_progress"
	BatchStatusCompleted           BatchStatus = "completed"
	BatchStatusCompletedWithErrors BatchStatus = "completed_with_errors"
	BatchStatusFailed              BatchStatus = "failed"
	BatchStatusCancelled           BatchStatus = "cancelled"
)

// repoTransitions is the single source of truth for repository status changes.
// Lifecycle operations validate against this table instead of comparing strings
// at call sites.
var repoTransitions = map[MigrationStatus][]MigrationStatus{
	StatusPending:            {StatusDryRunQueued, StatusQueuedForMigration, StatusWontMigrate},
	StatusDryRunQueued:       {StatusDryRunInProgress, StatusDryRunFailed},
	StatusDryRunInProgress:   {StatusDryRunComplete, StatusDryRunFailed},
	StatusDryRunComplete:     {StatusDryRunQueued, StatusQueuedForMigration, StatusWontMigrate},
	StatusDryRunFailed:       {StatusDryRunQueued, StatusWontMigrate},
	StatusQueuedForMigration: {StatusPreMigration, StatusMigrationFailed},
	StatusPreMigration:       {StatusArchiveGenerating, StatusMigrationFailed},
	StatusArchiveGenerating:  {StatusMigratingContent, StatusMigrationFailed},
	StatusMigratingContent:   {StatusPostMigration, StatusMigrationFailed},
	StatusPostMigration:      {StatusMigrationComplete, StatusMigrationFailed},
	StatusMigrationComplete:  {StatusComplete},
	StatusComplete:           {},
	StatusMigrationFailed:    {StatusDryRunQueued, StatusQueuedForMigration, StatusRolledBack, StatusWontMigrate},
	StatusRolledBack:         {StatusDryRunQueued, StatusQueuedForMigration, StatusWontMigrate},
	StatusWontMigrate:        {StatusPending},
}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusPending:             {BatchStatusReady, BatchStatusInProgress, BatchStatusCancelled},
	BatchStatusReady:               {BatchStatusPending, BatchStatusInProgress, BatchStatusCancelled},
	BatchStatusInProgress:          {BatchStatusReady, BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusFailed},
	BatchStatusCompleted:           {},
	BatchStatusCompletedWithErrors: {BatchStatusInProgress},
	BatchStatusFailed:              {BatchStatusInProgress},
	BatchStatusCancelled:           {},
}

// CanTransition reports whether a repository may move from one status to another.
func CanTransition(from, to MigrationStatus) bool {
	for _, next := range repoTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionBatch reports whether a batch may move from one status to another.
func CanTransitionBatch(from, to BatchStatus) bool {
	for _, next := range batchTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known repository status.
func IsValidStatus(s MigrationStatus) bool {
	_, ok := repoTransitions[s]
	return ok
}

// IsValidBatchStatus reports whether s is a known batch status.
func IsValidBatchStatus(s BatchStatus) bool {
	_, ok := batchTransitions[s]
	return ok
}

// IsTerminal reports whether a repository status has no outgoing transitions.
func (s MigrationStatus) IsTerminal() bool {
	return len(repoTransitions[s]) == 0
}

// IsTerminal reports whether a batch status has no outgoing transitions.
func (s BatchStatus) IsTerminal() bool {
	return len(batchTransitions[s]) == 0
}

// NeedsDryRun reports whether a repository in this status still needs a
// (re-)dry-run before it can be migrated with confidence.
func (s MigrationStatus) NeedsDryRun() bool {
	switch s {
	case StatusPending, StatusDryRunFailed, StatusMigrationFailed, StatusRolledBack:
		return true
	}
	return false
}

// IsDryRunPhase reports whether the status belongs to the dry-run half of the
// lifecycle.
func (s MigrationStatus) IsDryRunPhase() bool {
	switch s {
	case StatusDryRunQueued, StatusDryRunInProgress, StatusDryRunComplete, StatusDryRunFailed:
		return true
	}
	return false
}

// IsMigrationActive reports whether a migration is currently underway for the
// repository.
func (s MigrationStatus) IsMigrationActive() bool {
	switch s {
	case StatusQueuedForMigration, StatusPreMigration, StatusArchiveGenerating,
		StatusMigratingContent, StatusPostMigration:
		return true
	}
	return false
}
