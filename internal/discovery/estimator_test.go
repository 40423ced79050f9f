package discovery

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func TestEstimateFromCounts(t *testing.T) {
	e := NewEstimator(nil, slog.New(slog.DiscardHandler))

	feats := &models.RepositoryFeatures{
		IssueCount:       100,
		PullRequestCount: 50,
	}
	estimate := e.Estimate(context.Background(), "acme", "widgets", feats)

	assert.Equal(t, int64(100*models.EstimateBytesPerIssue), estimate.IssueBytes)
	assert.Equal(t, int64(50*models.EstimateBytesPerPR), estimate.PullRequestBytes)
	assert.Equal(t, int64(models.EstimateBaseBytes), estimate.BaseBytes)
	assert.Equal(t, int64(0), estimate.ReleaseAssetBytes)

	wantTotal := estimate.IssueBytes + estimate.PullRequestBytes + estimate.BaseBytes
	assert.Equal(t, wantTotal, estimate.TotalBytes)
	assert.False(t, estimate.NearCeiling)
}

func TestEstimateEmptyRepository(t *testing.T) {
	e := NewEstimator(nil, slog.New(slog.DiscardHandler))

	estimate := e.Estimate(context.Background(), "acme", "empty", &models.RepositoryFeatures{})
	assert.Equal(t, int64(models.EstimateBaseBytes), estimate.TotalBytes)
}

func TestNearCeiling(t *testing.T) {
	warnLine := int64(models.ExportSizeCeiling) / nearCeilingDenominator * nearCeilingNumerator

	assert.False(t, NearCeiling(warnLine-1))
	assert.True(t, NearCeiling(warnLine))
	assert.True(t, NearCeiling(models.ExportSizeCeiling))
}
