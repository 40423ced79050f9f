package discovery

import (
	"context"
	"log/slog"

	ghapi "github.com/google/go-github/v75/github"

	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// nearCeilingNumerator/Denominator set the advisory warning line at 80% of
// the importer's archive ceiling.
const (
	nearCeilingNumerator   = 4
	nearCeilingDenominator = 5
)

// Estimator derives an advisory metadata export size from profiled counts
// and measured release-asset totals. The estimate warns operators nearing
// the importer's archive ceiling; it never blocks anything.
type Estimator struct {
	client *github.Client
	logger *slog.Logger
}

// NewEstimator creates a metadata size estimator.
func NewEstimator(client *github.Client, logger *slog.Logger) *Estimator {
	return &Estimator{client: client, logger: logger}
}

// Estimate combines fixed per-item assumptions with the repository's
// measured release-asset bytes. A failed asset walk degrades to zero asset
// bytes rather than failing the estimate.
func (e *Estimator) Estimate(ctx context.Context, org, name string, feats *models.RepositoryFeatures) *models.SizeEstimate {
	estimate := &models.SizeEstimate{
		IssueBytes:       int64(feats.IssueCount) * models.EstimateBytesPerIssue,
		PullRequestBytes: int64(feats.PullRequestCount) * models.EstimateBytesPerPR,
		BaseBytes:        models.EstimateBaseBytes,
	}

	if feats.ReleaseCount > 0 {
		assetBytes, err := e.measureReleaseAssets(ctx, org, name)
		if err != nil {
			e.logger.Debug("Failed to measure release assets, estimate excludes them",
				"repo", org+"/"+name,
				"error", err)
		} else {
			estimate.ReleaseAssetBytes = assetBytes
		}
	}

	estimate.TotalBytes = estimate.IssueBytes + estimate.PullRequestBytes +
		estimate.ReleaseAssetBytes + estimate.BaseBytes
	estimate.NearCeiling = NearCeiling(estimate.TotalBytes)

	return estimate
}

// NearCeiling reports whether an estimated export size is close enough to
// the importer's ceiling to warrant an operator warning.
func NearCeiling(totalBytes int64) bool {
	return totalBytes >= models.ExportSizeCeiling/nearCeilingDenominator*nearCeilingNumerator
}

// measureReleaseAssets walks every release page and sums asset sizes.
func (e *Estimator) measureReleaseAssets(ctx context.Context, org, name string) (int64, error) {
	var total int64
	opts := &ghapi.ListOptions{PerPage: 100}

	for {
		releases, resp, err := e.client.REST().Repositories.ListReleases(ctx, org, name, opts)
		if err != nil {
			return 0, err
		}
		for _, release := range releases {
			for _, asset := range release.Assets {
				total += int64(asset.GetSize())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return total, nil
}
