package models

import "time"

// RepositoryGitProperties holds the structural facts measured from a local
// clone. One row per repository, replaced wholesale on each analysis pass.
type RepositoryGitProperties struct {
	ID           int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	RepositoryID int64 `gorm:"uniqueIndex;not null" json:"-"`

	SizeBytes         int64  `json:"size_bytes"`
	CommitCount       int64  `json:"commit_count"`
	BranchCount       int    `json:"branch_count"`
	TagCount          int    `json:"tag_count"`
	DefaultBranch     string `json:"default_branch"`
	LargestCommitSize int64  `json:"largest_commit_size"`
	LargestCommitSHA  string `json:"largest_commit_sha"`
	LargestBlobSize   int64  `json:"largest_blob_size"`
	LargestBlobName   string `json:"largest_blob_name"`
	MaxTreeEntries    int64  `json:"max_tree_entries"`
	CheckoutFileCount int64  `json:"checkout_file_count"`
	HasLFS            bool   `json:"has_lfs"`
	HasSubmodules     bool   `json:"has_submodules"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// RepositoryFeatures holds the platform-level facts gathered through the
// source API. One row per repository, last write wins.
type RepositoryFeatures struct {
	ID           int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	RepositoryID int64 `gorm:"uniqueIndex;not null" json:"-"`

	IssueCount       int `json:"issue_count"`
	OpenIssueCount   int `json:"open_issue_count"`
	PullRequestCount int `json:"pull_request_count"`
	OpenPRCount      int `json:"open_pr_count"`
	WorkflowCount    int `json:"workflow_count"`
	ReleaseCount     int `json:"release_count"`

	HasWiki          bool `json:"has_wiki"`
	HasProjects      bool `json:"has_projects"`
	HasDiscussions   bool `json:"has_discussions"`
	HasPages         bool `json:"has_pages"`
	HasPackages      bool `json:"has_packages"`
	HasRulesets      bool `json:"has_rulesets"`
	HasReleaseAssets bool `json:"has_release_assets"`

	BranchProtectionCount int `json:"branch_protection_count"`
	EnvironmentCount      int `json:"environment_count"`
	SecretCount           int `json:"secret_count"`
	VariableCount         int `json:"variable_count"`
	WebhookCount          int `json:"webhook_count"`
	CollaboratorCount     int `json:"collaborator_count"`
	ContributorCount      int `json:"contributor_count"`

	InstalledAppCount int    `json:"installed_app_count"`
	InstalledAppNames string `json:"installed_app_names,omitempty"`

	HasSelfHostedRunners bool `json:"has_self_hosted_runners"`

	// ExternalActionRefs lists owner/repo references this repository's
	// workflows pull in from other repositories, comma separated. Useful
	// for keeping coupled repositories in the same wave.
	ExternalActionRefs string `json:"external_action_refs,omitempty"`

	HasCodeowners  bool   `json:"has_codeowners"`
	CodeownerTeams int    `json:"codeowner_teams"`
	CodeownerUsers int    `json:"codeowner_users"`
	CodeownersPath string `json:"codeowners_path,omitempty"`

	SecretScanningEnabled   bool `json:"secret_scanning_enabled"`
	CodeScanningEnabled     bool `json:"code_scanning_enabled"`
	DependabotAlertsEnabled bool `json:"dependabot_alerts_enabled"`

	TopContributors string `json:"top_contributors,omitempty"`

	// DegradedChecks lists sub-checks that could not complete; their fields
	// hold defaults, not measurements.
	DegradedChecks string `json:"degraded_checks,omitempty"`

	ProfiledAt time.Time `json:"profiled_at"`
}

// RepositoryADOProperties holds Azure DevOps specific facts. Only present for
// ADO-sourced repositories.
type RepositoryADOProperties struct {
	ID           int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	RepositoryID int64 `gorm:"uniqueIndex;not null" json:"-"`

	Organization string `json:"organization"`
	Project      string `json:"project"`
	ProjectID    string `json:"project_id"`
	ADORepoID    string `json:"ado_repo_id"`
	IsDisabled   bool   `json:"is_disabled"`
	IsFork       bool   `json:"is_fork"`
}

// RepositoryValidation holds the derived assessment: complexity, metadata
// size estimate, and structural warnings.
type RepositoryValidation struct {
	ID           int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	RepositoryID int64 `gorm:"uniqueIndex;not null" json:"-"`

	ComplexityScore     int                  `json:"complexity_score"`
	ComplexityTier      string               `json:"complexity_tier"`
	ComplexityBreakdown *ComplexityBreakdown `gorm:"serializer:json" json:"complexity_breakdown,omitempty"`

	EstimatedMetadataBytes int64         `json:"estimated_metadata_bytes"`
	MetadataEstimate       *SizeEstimate `gorm:"serializer:json" json:"metadata_estimate,omitempty"`
	Warnings               []string      `gorm:"serializer:json" json:"warnings,omitempty"`

	HasOversizedRepository bool `json:"has_oversized_repository"`

	ValidatedAt time.Time `json:"validated_at"`
}

// SizeEstimate is the advisory metadata export estimate.
type SizeEstimate struct {
	IssueBytes        int64 `json:"issue_bytes"`
	PullRequestBytes  int64 `json:"pull_request_bytes"`
	ReleaseAssetBytes int64 `json:"release_asset_bytes"`
	BaseBytes         int64 `json:"base_bytes"`
	TotalBytes        int64 `json:"total_bytes"`
	NearCeiling       bool  `json:"near_ceiling"`
}
