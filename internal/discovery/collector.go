package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ghapi "github.com/google/go-github/v75/github"
	"github.com/google/uuid"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/source"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

const defaultWorkers = 5

// Collector runs the discovery pipeline: enumerate an organization's
// repositories, warm the org caches, then clone, analyze, profile, score,
// and save each repository. Repositories within an organization are
// processed independently once the caches are warm; a single repository's
// failure never aborts the run.
type Collector struct {
	client        *github.Client
	db            *storage.Database
	provider      source.Provider
	analyzer      *Analyzer
	logger        *slog.Logger
	workers       int
	tempDir       string
	cacheFallback string
	sourceKind    string
}

// NewCollector creates a collector wired from discovery configuration.
func NewCollector(client *github.Client, db *storage.Database, provider source.Provider, cfg config.DiscoveryConfig, logger *slog.Logger) *Collector {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Collector{
		client:        client,
		db:            db,
		provider:      provider,
		analyzer:      NewAnalyzer(cfg.GitSizerPath, logger),
		logger:        logger,
		workers:       workers,
		tempDir:       cfg.TempDir,
		cacheFallback: cfg.CacheFallback,
		sourceKind:    sourceKindFor(client),
	}
}

// SetWorkers overrides the worker pool size.
func (c *Collector) SetWorkers(workers int) {
	if workers > 0 {
		c.workers = workers
	}
}

// RunResult summarizes one discovery run.
type RunResult struct {
	RunID       string   `json:"run_id"`
	Total       int      `json:"total"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	FailedRepos []string `json:"failed_repos,omitempty"`
}

// DiscoverOrganization discovers every repository in an organization. The
// org caches are warmed before any repository is profiled; cache warming
// failures degrade the dependent checks but never block the run.
func (c *Collector) DiscoverOrganization(ctx context.Context, org string) (*RunResult, error) {
	runID := uuid.NewString()
	c.logger.Info("Starting repository discovery",
		"organization", org,
		"run_id", runID,
		"workers", c.workers)

	repos, err := c.client.ListOrgRepositories(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories for %s: %w", org, err)
	}
	c.logger.Info("Found repositories", "organization", org, "count", len(repos))

	// Warm barrier: every worker consults these read-only caches, so they
	// must be fully built before the first repository is profiled.
	caches := WarmOrgCaches(ctx, c.client, org, c.logger)

	profiler := NewProfiler(c.client, c.logger)
	profiler.SetCacheFallback(c.cacheFallback)
	estimator := NewEstimator(c.client, c.logger)

	result := &RunResult{RunID: runID, Total: len(repos)}

	jobs := make(chan *ghapi.Repository, len(repos))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ghRepo := range jobs {
				err := c.processRepository(ctx, runID, ghRepo, profiler, estimator, caches)
				mu.Lock()
				if err != nil {
					result.Failed++
					result.FailedRepos = append(result.FailedRepos, ghRepo.GetFullName())
					c.logger.Error("Failed to discover repository",
						"repo", ghRepo.GetFullName(),
						"run_id", runID,
						"error", err)
				} else {
					result.Succeeded++
				}
				mu.Unlock()
			}
		}()
	}

	for _, repo := range repos {
		jobs <- repo
	}
	close(jobs)
	wg.Wait()

	c.logger.Info("Repository discovery complete",
		"organization", org,
		"run_id", runID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed)

	return result, nil
}

// DiscoverEnterprise walks every organization in an enterprise. A failing
// organization is logged and skipped; its repositories count as failed.
func (c *Collector) DiscoverEnterprise(ctx context.Context, enterpriseSlug string) (*RunResult, error) {
	c.logger.Info("Starting enterprise discovery", "enterprise", enterpriseSlug)

	orgs, err := c.client.ListEnterpriseOrganizations(ctx, enterpriseSlug)
	if err != nil {
		return nil, fmt.Errorf("failed to list enterprise organizations: %w", err)
	}
	c.logger.Info("Found organizations", "enterprise", enterpriseSlug, "count", len(orgs))

	total := &RunResult{RunID: uuid.NewString()}
	for _, org := range orgs {
		result, err := c.DiscoverOrganization(ctx, org)
		if err != nil {
			c.logger.Error("Organization discovery failed",
				"enterprise", enterpriseSlug,
				"organization", org,
				"error", err)
			continue
		}
		total.Total += result.Total
		total.Succeeded += result.Succeeded
		total.Failed += result.Failed
		total.FailedRepos = append(total.FailedRepos, result.FailedRepos...)
	}

	c.logger.Info("Enterprise discovery complete",
		"enterprise", enterpriseSlug,
		"orgs", len(orgs),
		"total", total.Total,
		"succeeded", total.Succeeded,
		"failed", total.Failed)

	return total, nil
}

// processRepository runs the full pipeline for one repository: clone,
// structural analysis, feature profiling, scoring, estimation, save. A
// statistics-tool failure is fatal for the repository and nothing is
// written; a clone failure degrades to API-only structural facts.
func (c *Collector) processRepository(ctx context.Context, runID string, ghRepo *ghapi.Repository, profiler *Profiler, estimator *Estimator, caches *OrgCaches) error {
	fullName := ghRepo.GetFullName()
	c.logger.Debug("Discovering repository", "repo", fullName, "run_id", runID)

	repo, err := c.buildRepositoryRecord(ctx, ghRepo)
	if err != nil {
		return err
	}

	props, actionRefs, err := c.analyzeStructure(ctx, ghRepo, fullName)
	if err != nil {
		return err
	}
	if props.DefaultBranch == "" {
		props.DefaultBranch = ghRepo.GetDefaultBranch()
	}
	repo.GitProperties = props

	feats, err := profiler.ProfileFeatures(ctx, repo, caches)
	if err != nil {
		return err
	}
	feats.ExternalActionRefs = strings.Join(actionRefs, ",")
	repo.Features = feats

	repo.Validation = c.validate(ctx, repo, estimator)

	if err := c.db.SaveRepository(ctx, repo); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}

	c.logger.Info("Repository discovered",
		"repo", fullName,
		"run_id", runID,
		"size_bytes", props.SizeBytes,
		"commits", props.CommitCount,
		"complexity_score", repo.Validation.ComplexityScore,
		"complexity_tier", repo.Validation.ComplexityTier)

	return nil
}

// buildRepositoryRecord creates or refreshes the core repository row. An
// already tracked repository keeps its lifecycle fields; only the discovery
// identity facts are refreshed.
func (c *Collector) buildRepositoryRecord(ctx context.Context, ghRepo *ghapi.Repository) (*models.Repository, error) {
	fullName := ghRepo.GetFullName()
	now := time.Now()

	existing, err := c.db.GetRepository(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up repository: %w", err)
	}
	if existing != nil {
		existing.SourceURL = ghRepo.GetHTMLURL()
		existing.Visibility = ghRepo.GetVisibility()
		existing.DiscoveredAt = &now
		return existing, nil
	}

	return &models.Repository{
		FullName:     fullName,
		Source:       c.sourceKind,
		SourceURL:    ghRepo.GetHTMLURL(),
		Visibility:   ghRepo.GetVisibility(),
		Status:       models.StatusPending,
		DiscoveredAt: &now,
	}, nil
}

// analyzeStructure clones the repository, runs the structural analyzer, and
// scans the working tree for cross-repository workflow references. When the
// clone fails the repository degrades to API-reported size; when the
// statistics tool fails the error propagates and the repository is reported
// as failed.
func (c *Collector) analyzeStructure(ctx context.Context, ghRepo *ghapi.Repository, fullName string) (*models.RepositoryGitProperties, []string, error) {
	clonePath, err := c.cloneForAnalysis(ctx, ghRepo.GetCloneURL(), fullName)
	if err != nil {
		c.logger.Warn("Failed to clone repository, using API-reported size",
			"repo", fullName,
			"error", err)
		// The API reports size in KB.
		return &models.RepositoryGitProperties{
			SizeBytes:     int64(ghRepo.GetSize()) * 1024,
			DefaultBranch: ghRepo.GetDefaultBranch(),
			AnalyzedAt:    time.Now(),
		}, nil, nil
	}
	defer func() {
		if err := os.RemoveAll(clonePath); err != nil {
			c.logger.Warn("Failed to clean up temp directory", "path", clonePath, "error", err)
		}
	}()

	props, err := c.analyzer.Analyze(ctx, clonePath)
	if err != nil {
		return nil, nil, err
	}
	return props, ScanWorkflowDependencies(clonePath, fullName, c.logger), nil
}

// validate derives the assessment row: complexity, problem warnings, and the
// metadata export estimate.
func (c *Collector) validate(ctx context.Context, repo *models.Repository, estimator *Estimator) *models.RepositoryValidation {
	score, tier, breakdown := ScoreRepository(repo)
	warnings := CheckRepositoryProblems(repo.GitProperties)

	oversized := repo.GitProperties.SizeBytes > models.SizeHardLimit
	if oversized {
		warnings = append(warnings, fmt.Sprintf(
			"Repository exceeds the %d GiB migration limit and cannot be migrated as-is",
			models.SizeHardLimit/(1024*1024*1024)))
	}

	estimate := estimator.Estimate(ctx, repo.GetOrganization(), repo.GetRepoName(), repo.Features)
	if estimate.NearCeiling {
		warnings = append(warnings, fmt.Sprintf(
			"Estimated metadata export (%d MB) is near the importer's archive ceiling",
			estimate.TotalBytes/(1024*1024)))
	}

	return &models.RepositoryValidation{
		ComplexityScore:        score,
		ComplexityTier:         tier,
		ComplexityBreakdown:    breakdown,
		EstimatedMetadataBytes: estimate.TotalBytes,
		MetadataEstimate:       estimate,
		Warnings:               warnings,
		HasOversizedRepository: oversized,
		ValidatedAt:            time.Now(),
	}
}

// cloneForAnalysis performs a full clone into a per-repository temp
// directory. Full history is required for accurate commit counts and
// largest-object metrics.
func (c *Collector) cloneForAnalysis(ctx context.Context, cloneURL, fullName string) (string, error) {
	destPath, err := c.setupTempDir(fullName)
	if err != nil {
		return "", err
	}

	info := source.RepositoryInfo{
		FullName: fullName,
		CloneURL: cloneURL,
	}
	if err := c.provider.CloneRepository(ctx, info, destPath, source.DefaultCloneOptions()); err != nil {
		_ = os.RemoveAll(destPath)
		return "", err
	}
	return destPath, nil
}

func (c *Collector) setupTempDir(fullName string) (string, error) {
	base := c.tempDir
	if base == "" {
		base = os.TempDir()
	}
	base = filepath.Join(base, "migration-planner")
	// #nosec G301 -- scratch space for repository clones
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp base directory %s: %w", base, err)
	}

	// org1/repo and org2/repo must not collide.
	safeName := strings.ReplaceAll(fullName, "/", "_")
	destPath := filepath.Join(base, safeName)
	if err := os.RemoveAll(destPath); err != nil {
		return "", fmt.Errorf("failed to clean existing temp directory: %w", err)
	}
	return destPath, nil
}

func sourceKindFor(client *github.Client) string {
	baseURL := client.BaseURL()
	if baseURL == "" || strings.Contains(baseURL, "api.github.com") || baseURL == "https://github.com" {
		return models.SourceGitHub
	}
	return models.SourceGHES
}
