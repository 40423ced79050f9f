package discovery

import "github.com/kuhlman-labs/migration-planner/internal/models"

// CalculateComplexity maps a repository's accumulated facts to a score and
// an itemized breakdown. Pure function: no I/O, no side effects, and the
// breakdown always sums to the score. Missing component rows contribute
// nothing.
func CalculateComplexity(repo *models.Repository) (int, *models.ComplexityBreakdown) {
	breakdown := &models.ComplexityBreakdown{}

	git := repo.GitProperties
	if git == nil {
		git = &models.RepositoryGitProperties{}
	}
	feats := repo.Features
	if feats == nil {
		feats = &models.RepositoryFeatures{}
	}

	// Size tier: three points per step up.
	breakdown.Size = sizePoints(git.SizeBytes)

	// Large files block GitHub migrations outright.
	if git.LargestBlobSize > LargeFileThreshold {
		breakdown.LargeFiles = 4
	}

	// High-impact features: non-migrating or high-coordination.
	if feats.EnvironmentCount > 0 {
		breakdown.Environments = 3
	}
	if feats.SecretCount > 0 {
		breakdown.Secrets = 3
	}
	if feats.HasPackages {
		breakdown.Packages = 3
	}
	if feats.HasSelfHostedRunners {
		breakdown.SelfHostedRunners = 3
	}

	// Moderate impact.
	if feats.VariableCount > 0 {
		breakdown.Variables = 2
	}
	if feats.HasDiscussions {
		breakdown.Discussions = 2
	}
	if feats.ReleaseCount > 0 {
		breakdown.Releases = 2
	}
	if git.HasLFS {
		breakdown.LFS = 2
	}
	if git.HasSubmodules {
		breakdown.Submodules = 2
	}
	if feats.InstalledAppCount > 0 {
		breakdown.InstalledApps = 2
	}
	if feats.HasProjects {
		breakdown.Projects = 2
	}

	// Low impact.
	if feats.CodeScanningEnabled || feats.DependabotAlertsEnabled || feats.SecretScanningEnabled {
		breakdown.AdvancedSecurity = 1
	}
	if feats.WebhookCount > 0 {
		breakdown.Webhooks = 1
	}
	if feats.BranchProtectionCount > 0 {
		breakdown.BranchProtections = 1
	}
	if feats.HasRulesets {
		breakdown.Rulesets = 1
	}
	if repo.Visibility == models.VisibilityPublic || repo.Visibility == models.VisibilityInternal {
		breakdown.Visibility = 1
	}
	if feats.HasCodeowners {
		breakdown.Codeowners = 1
	}

	breakdown.Activity = activityPoints(git, feats)

	return breakdown.Total(), breakdown
}

// ScoreRepository computes the score, its tier, and the breakdown in one
// call.
func ScoreRepository(repo *models.Repository) (int, string, *models.ComplexityBreakdown) {
	score, breakdown := CalculateComplexity(repo)
	return score, models.TierForScore(score), breakdown
}

func sizePoints(sizeBytes int64) int {
	switch {
	case sizeBytes < models.SizeSmallMax:
		return 0
	case sizeBytes < models.SizeMediumMax:
		return 3
	case sizeBytes < models.SizeLargeMax:
		return 6
	default:
		return 9
	}
}

// activityPoints blends history depth with open work items. Issues and PRs
// weigh double: each one implies a stakeholder conversation that has to move
// with the repository.
func activityPoints(git *models.RepositoryGitProperties, feats *models.RepositoryFeatures) int {
	activity := git.CommitCount + int64(git.BranchCount) +
		2*int64(feats.OpenIssueCount+feats.OpenPRCount)

	switch {
	case activity > 1000:
		return 4
	case activity > 100:
		return 2
	default:
		return 0
	}
}
