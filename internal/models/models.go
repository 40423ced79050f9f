package models

import (
	"strings"
	"time"
)

// Repository is the core row for a discovered repository. Discovery facts live
// in the 1:1 component rows so each profiling pass can overwrite its own slice
// of the snapshot without touching the rest.
type Repository struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName   string          `gorm:"uniqueIndex;not null" json:"full_name"`
	Source     string          `gorm:"index;not null" json:"source"`
	SourceURL  string          `json:"source_url"`
	Visibility string          `json:"visibility"`
	Status     MigrationStatus `gorm:"index;not null;default:pending" json:"status"`
	BatchID    *int64          `gorm:"index" json:"batch_id,omitempty"`
	Priority   int             `json:"priority"`

	// DestinationOverride, when set, wins over the batch default destination.
	// Stored as "org/name".
	DestinationOverride *string `json:"destination_override,omitempty"`

	// Per-repo migration flags. When unset the batch-level flags apply.
	ExcludeReleases    bool `json:"exclude_releases"`
	ExcludeAttachments bool `json:"exclude_attachments"`

	GitProperties *RepositoryGitProperties `gorm:"foreignKey:RepositoryID" json:"git_properties,omitempty"`
	Features      *RepositoryFeatures      `gorm:"foreignKey:RepositoryID" json:"features,omitempty"`
	ADOProperties *RepositoryADOProperties `gorm:"foreignKey:RepositoryID" json:"ado_properties,omitempty"`
	Validation    *RepositoryValidation    `gorm:"foreignKey:RepositoryID" json:"validation,omitempty"`

	DiscoveredAt *time.Time `json:"discovered_at,omitempty"`
	MigratedAt   *time.Time `json:"migrated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// GetOrganization returns the org (or ADO "org/project") part of FullName.
func (r *Repository) GetOrganization() string {
	idx := strings.LastIndex(r.FullName, "/")
	if idx < 0 {
		return ""
	}
	return r.FullName[:idx]
}

// GetRepoName returns the bare repository name part of FullName.
func (r *Repository) GetRepoName() string {
	idx := strings.LastIndex(r.FullName, "/")
	if idx < 0 {
		return r.FullName
	}
	return r.FullName[idx+1:]
}

// IsADOSource reports whether the repository came from Azure DevOps.
func (r *Repository) IsADOSource() bool {
	return r.Source == SourceAzureDevOps
}

// CanBeAssignedToBatch reports whether the repository may join a batch, with a
// human-readable reason when it may not.
func (r *Repository) CanBeAssignedToBatch() (bool, string) {
	if r.Validation != nil && r.Validation.HasOversizedRepository {
		return false, "repository exceeds the 40 GiB size limit"
	}
	switch r.Status {
	case StatusPending, StatusDryRunComplete, StatusDryRunFailed,
		StatusMigrationFailed, StatusRolledBack:
		return true, ""
	}
	return false, "status '" + string(r.Status) + "' is not eligible"
}

// Batch groups repositories for a coordinated migration wave.
type Batch struct {
	ID             int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string      `gorm:"uniqueIndex;not null" json:"name"`
	Description    string      `json:"description"`
	DestinationOrg string      `json:"destination_org"`
	MigrationAPI   string      `gorm:"default:gei" json:"migration_api"`
	Type           string      `json:"type"`
	Status         BatchStatus `gorm:"index;not null;default:pending" json:"status"`

	ExcludeReleases    bool `json:"exclude_releases"`
	ExcludeAttachments bool `json:"exclude_attachments"`

	ScheduledAt            *time.Time `json:"scheduled_at,omitempty"`
	LastDryRunAt           *time.Time `json:"last_dry_run_at,omitempty"`
	LastMigrationAttemptAt *time.Time `json:"last_migration_attempt_at,omitempty"`
	DryRunStartedAt        *time.Time `json:"dry_run_started_at,omitempty"`
	DryRunCompletedAt      *time.Time `json:"dry_run_completed_at,omitempty"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`

	// RepoCount is populated on read, not stored.
	RepoCount int `gorm:"-" json:"repo_count"`
}

// Duration returns how long the batch ran, when both timestamps are set.
func (b *Batch) Duration() *time.Duration {
	if b.StartedAt == nil || b.CompletedAt == nil {
		return nil
	}
	d := b.CompletedAt.Sub(*b.StartedAt)
	return &d
}

// DryRunDuration returns how long the last dry-run wave ran.
func (b *Batch) DryRunDuration() *time.Duration {
	if b.DryRunStartedAt == nil || b.DryRunCompletedAt == nil {
		return nil
	}
	d := b.DryRunCompletedAt.Sub(*b.DryRunStartedAt)
	return &d
}

// IsDue reports whether a scheduled batch should start now.
func (b *Batch) IsDue(now time.Time) bool {
	return b.ScheduledAt != nil && !b.ScheduledAt.After(now)
}

// MigrationHistory is one attempt (dry run or migration) for one repository.
type MigrationHistory struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID           string     `gorm:"index" json:"run_id"`
	RepositoryID    int64      `gorm:"index;not null" json:"repository_id"`
	BatchID         *int64     `gorm:"index" json:"batch_id,omitempty"`
	DryRun          bool       `json:"dry_run"`
	Phase           string     `json:"phase"`
	Status          string     `json:"status"`
	Error           *string    `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
}

// MigrationLog is a phase-tagged log line attached to a history record.
type MigrationLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	HistoryID    int64     `gorm:"index;not null" json:"history_id"`
	RepositoryID int64     `gorm:"index" json:"repository_id"`
	Level        string    `json:"level"`
	Phase        string    `json:"phase"`
	Operation    string    `json:"operation"`
	Message      string    `json:"message"`
	Details      *string   `json:"details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
