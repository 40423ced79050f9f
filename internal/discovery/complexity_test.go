package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func TestCalculateComplexityEmptyRepository(t *testing.T) {
	repo := &models.Repository{FullName: "acme/empty"}

	score, breakdown := CalculateComplexity(repo)
	assert.Equal(t, 0, score)
	assert.Equal(t, 0, breakdown.Total())
}

func TestCalculateComplexitySizeTiers(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want int
	}{
		{"under 100MB", 50 * 1024 * 1024, 0},
		{"100MB to 1GB", 500 * 1024 * 1024, 3},
		{"1GB to 5GB", 2 * 1024 * 1024 * 1024, 6},
		{"over 5GB", 6 * 1024 * 1024 * 1024, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &models.Repository{
				GitProperties: &models.RepositoryGitProperties{SizeBytes: tt.size},
			}
			_, breakdown := CalculateComplexity(repo)
			assert.Equal(t, tt.want, breakdown.Size)
		})
	}
}

func TestCalculateComplexityFeaturePoints(t *testing.T) {
	repo := &models.Repository{
		Visibility: models.VisibilityPublic,
		GitProperties: &models.RepositoryGitProperties{
			SizeBytes:       500 * 1024 * 1024, // 3
			LargestBlobSize: 150 * 1024 * 1024, // 4
			HasLFS:          true,              // 2
			HasSubmodules:   true,              // 2
		},
		Features: &models.RepositoryFeatures{
			EnvironmentCount:      2,    // 3
			SecretCount:           1,    // 3
			HasPackages:           true, // 3
			HasSelfHostedRunners:  true, // 3
			VariableCount:         4,    // 2
			HasDiscussions:        true, // 2
			ReleaseCount:          3,    // 2
			InstalledAppCount:     1,    // 2
			HasProjects:           true, // 2
			CodeScanningEnabled:   true, // 1 (once for any security feature)
			SecretScanningEnabled: true,
			WebhookCount:          2,    // 1
			BranchProtectionCount: 1,    // 1
			HasRulesets:           true, // 1
			HasCodeowners:         true, // 1
		},
	}

	score, breakdown := CalculateComplexity(repo)
	// visibility adds 1, activity stays 0 for a quiet repo
	assert.Equal(t, 39, score)
	assert.Equal(t, models.TierVeryComplex, models.TierForScore(score))
	assert.Equal(t, 1, breakdown.AdvancedSecurity)
	assert.Equal(t, 1, breakdown.Visibility)
}

// The breakdown must sum exactly to the score for any input.
func TestComplexityBreakdownSumsToScore(t *testing.T) {
	repos := []*models.Repository{
		{FullName: "acme/empty"},
		{
			Visibility:    models.VisibilityInternal,
			GitProperties: &models.RepositoryGitProperties{SizeBytes: 2 << 30, HasLFS: true, CommitCount: 5000},
			Features:      &models.RepositoryFeatures{SecretCount: 3, OpenIssueCount: 200},
		},
		{
			Visibility: models.VisibilityPrivate,
			GitProperties: &models.RepositoryGitProperties{
				SizeBytes:       10 << 30,
				LargestBlobSize: 500 * 1024 * 1024,
				BranchCount:     400,
			},
			Features: &models.RepositoryFeatures{
				HasPackages:    true,
				ReleaseCount:   10,
				OpenPRCount:    600,
				OpenIssueCount: 900,
			},
		},
	}

	for _, repo := range repos {
		score, breakdown := CalculateComplexity(repo)
		assert.Equal(t, score, breakdown.Total(), "breakdown must sum to score for %s", repo.FullName)
	}
}

func TestActivityPoints(t *testing.T) {
	tests := []struct {
		name  string
		git   models.RepositoryGitProperties
		feats models.RepositoryFeatures
		want  int
	}{
		{"quiet", models.RepositoryGitProperties{CommitCount: 10}, models.RepositoryFeatures{}, 0},
		{"moderate", models.RepositoryGitProperties{CommitCount: 90, BranchCount: 20}, models.RepositoryFeatures{}, 2},
		{"busy", models.RepositoryGitProperties{CommitCount: 500}, models.RepositoryFeatures{OpenIssueCount: 200, OpenPRCount: 100}, 4},
		{"issues weigh double", models.RepositoryGitProperties{}, models.RepositoryFeatures{OpenIssueCount: 51}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, activityPoints(&tt.git, &tt.feats))
		})
	}
}

func TestScoreRepositoryTier(t *testing.T) {
	repo := &models.Repository{
		GitProperties: &models.RepositoryGitProperties{SizeBytes: 500 * 1024 * 1024, HasLFS: true},
	}
	score, tier, breakdown := ScoreRepository(repo)
	assert.Equal(t, 5, score)
	assert.Equal(t, models.TierSimple, tier)
	assert.Equal(t, score, breakdown.Total())
}
