package ado

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/discovery"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/source"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

const defaultWorkers = 5

// Discoverer walks an Azure DevOps organization project by project and runs
// each Git repository through the structural analysis pipeline. Platform
// feature profiling is limited to what ADO exposes: pull request counts and
// branch statistics.
type Discoverer struct {
	client   *Client
	db       *storage.Database
	provider source.Provider
	analyzer *discovery.Analyzer
	logger   *slog.Logger
	workers  int
	tempDir  string
}

// NewDiscoverer creates a discoverer wired from discovery configuration.
func NewDiscoverer(client *Client, db *storage.Database, provider source.Provider, cfg config.DiscoveryConfig, logger *slog.Logger) *Discoverer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Discoverer{
		client:   client,
		db:       db,
		provider: provider,
		analyzer: discovery.NewAnalyzer(cfg.GitSizerPath, logger),
		logger:   logger,
		workers:  workers,
		tempDir:  cfg.TempDir,
	}
}

type repoJob struct {
	project core.TeamProjectReference
	repo    git.GitRepository
}

// DiscoverOrganization discovers every Git repository in every project of the
// client's organization. A failing project is logged and skipped; a failing
// repository never aborts the run.
func (d *Discoverer) DiscoverOrganization(ctx context.Context) (*discovery.RunResult, error) {
	org := d.client.Organization()
	runID := uuid.NewString()
	d.logger.Info("Starting Azure DevOps discovery",
		"organization", org,
		"run_id", runID,
		"workers", d.workers)

	projects, err := d.client.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects for %s: %w", org, err)
	}
	d.logger.Info("Found projects", "organization", org, "count", len(projects))

	var jobs []repoJob
	for _, project := range projects {
		if project.Name == nil {
			continue
		}
		repos, err := d.client.GetRepositories(ctx, *project.Name)
		if err != nil {
			d.logger.Error("Failed to list project repositories",
				"organization", org,
				"project", *project.Name,
				"error", err)
			continue
		}
		for _, repo := range repos {
			jobs = append(jobs, repoJob{project: project, repo: repo})
		}
	}

	result := &discovery.RunResult{RunID: runID, Total: len(jobs)}
	estimator := discovery.NewEstimator(nil, d.logger)

	jobCh := make(chan repoJob, len(jobs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				fullName := d.fullName(job)
				err := d.processRepository(ctx, runID, job, estimator)
				mu.Lock()
				if err != nil {
					result.Failed++
					result.FailedRepos = append(result.FailedRepos, fullName)
					d.logger.Error("Failed to discover repository",
						"repo", fullName,
						"run_id", runID,
						"error", err)
				} else {
					result.Succeeded++
				}
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	d.logger.Info("Azure DevOps discovery complete",
		"organization", org,
		"run_id", runID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed)

	return result, nil
}

func (d *Discoverer) fullName(job repoJob) string {
	project := ""
	if job.project.Name != nil {
		project = *job.project.Name
	}
	name := ""
	if job.repo.Name != nil {
		name = *job.repo.Name
	}
	return d.client.Organization() + "/" + project + "/" + name
}

// processRepository runs the pipeline for one ADO repository: record, clone
// and analyze, count pull requests, score, estimate, save. Disabled
// repositories cannot be cloned; they keep API-reported facts only.
func (d *Discoverer) processRepository(ctx context.Context, runID string, job repoJob, estimator *discovery.Estimator) error {
	fullName := d.fullName(job)
	if job.project.Name == nil || job.repo.Name == nil {
		return fmt.Errorf("repository %q is missing its project or name", fullName)
	}
	d.logger.Debug("Discovering repository", "repo", fullName, "run_id", runID)

	repo, err := d.buildRepositoryRecord(ctx, fullName, job)
	if err != nil {
		return err
	}

	props, err := d.analyzeStructure(ctx, job, fullName)
	if err != nil {
		return err
	}
	if props.DefaultBranch == "" && job.repo.DefaultBranch != nil {
		props.DefaultBranch = trimRefPrefix(*job.repo.DefaultBranch)
	}
	repo.GitProperties = props

	repo.Features = d.profileFeatures(ctx, job, props)

	repo.Validation = d.validate(ctx, repo, estimator)

	if err := d.db.SaveRepository(ctx, repo); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}

	d.logger.Info("Repository discovered",
		"repo", fullName,
		"run_id", runID,
		"size_bytes", props.SizeBytes,
		"complexity_score", repo.Validation.ComplexityScore,
		"complexity_tier", repo.Validation.ComplexityTier)

	return nil
}

// buildRepositoryRecord creates or refreshes the core row plus the ADO
// component row. An already tracked repository keeps its lifecycle fields.
func (d *Discoverer) buildRepositoryRecord(ctx context.Context, fullName string, job repoJob) (*models.Repository, error) {
	now := time.Now()

	repo, err := d.db.GetRepository(ctx, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up repository: %w", err)
	}
	if repo == nil {
		repo = &models.Repository{
			FullName: fullName,
			Source:   models.SourceAzureDevOps,
			Status:   models.StatusPending,
		}
	}

	if job.repo.WebUrl != nil {
		repo.SourceURL = *job.repo.WebUrl
	}
	repo.Visibility = projectVisibility(job.project.Visibility)
	repo.DiscoveredAt = &now

	adoProps := &models.RepositoryADOProperties{
		Organization: d.client.Organization(),
		Project:      *job.project.Name,
	}
	if job.project.Id != nil {
		adoProps.ProjectID = job.project.Id.String()
	}
	if job.repo.Id != nil {
		adoProps.ADORepoID = job.repo.Id.String()
	}
	if job.repo.IsDisabled != nil {
		adoProps.IsDisabled = *job.repo.IsDisabled
	}
	if job.repo.IsFork != nil {
		adoProps.IsFork = *job.repo.IsFork
	}
	repo.ADOProperties = adoProps

	return repo, nil
}

// analyzeStructure clones the repository and runs the structural analyzer.
// Disabled repositories and failed clones degrade to the API-reported size;
// a statistics-tool failure propagates and nothing is written.
func (d *Discoverer) analyzeStructure(ctx context.Context, job repoJob, fullName string) (*models.RepositoryGitProperties, error) {
	disabled := job.repo.IsDisabled != nil && *job.repo.IsDisabled
	if disabled || job.repo.RemoteUrl == nil {
		return d.apiOnlyProperties(job), nil
	}

	clonePath, err := d.cloneForAnalysis(ctx, *job.repo.RemoteUrl, fullName)
	if err != nil {
		d.logger.Warn("Failed to clone repository, using API-reported size",
			"repo", fullName,
			"error", err)
		return d.apiOnlyProperties(job), nil
	}
	defer func() {
		if err := os.RemoveAll(clonePath); err != nil {
			d.logger.Warn("Failed to clean up temp directory", "path", clonePath, "error", err)
		}
	}()

	return d.analyzer.Analyze(ctx, clonePath)
}

func (d *Discoverer) apiOnlyProperties(job repoJob) *models.RepositoryGitProperties {
	props := &models.RepositoryGitProperties{AnalyzedAt: time.Now()}
	// ADO reports repository size in bytes.
	if job.repo.Size != nil {
		props.SizeBytes = int64(*job.repo.Size)
	}
	if job.repo.DefaultBranch != nil {
		props.DefaultBranch = trimRefPrefix(*job.repo.DefaultBranch)
	}
	return props
}

// profileFeatures gathers the platform facts ADO exposes: pull request
// counts, and branch statistics when the clone-based count is unavailable.
// Failures degrade the fields rather than failing the repository.
func (d *Discoverer) profileFeatures(ctx context.Context, job repoJob, props *models.RepositoryGitProperties) *models.RepositoryFeatures {
	feats := &models.RepositoryFeatures{ProfiledAt: time.Now()}
	var degraded []string

	repoID := *job.repo.Name
	if job.repo.Id != nil {
		repoID = job.repo.Id.String()
	}

	prs, err := d.client.GetPullRequests(ctx, *job.project.Name, repoID)
	if err != nil {
		degraded = append(degraded, "pull_requests")
		d.logger.Debug("Pull request check degraded", "repo", d.fullName(job), "error", err)
	} else {
		feats.PullRequestCount = len(prs)
		for _, pr := range prs {
			if pr.Status != nil && *pr.Status == git.PullRequestStatusValues.Active {
				feats.OpenPRCount++
			}
		}
	}

	if props.BranchCount == 0 {
		branches, err := d.client.GetBranches(ctx, *job.project.Name, *job.repo.Name)
		if err != nil {
			degraded = append(degraded, "branches")
			d.logger.Debug("Branch check degraded", "repo", d.fullName(job), "error", err)
		} else {
			props.BranchCount = len(branches)
		}
	}

	feats.DegradedChecks = strings.Join(degraded, ",")
	return feats
}

// validate derives the assessment row from the structural facts. The
// metadata estimate covers pull requests only; ADO has no issues or release
// assets to measure.
func (d *Discoverer) validate(ctx context.Context, repo *models.Repository, estimator *discovery.Estimator) *models.RepositoryValidation {
	score, tier, breakdown := discovery.ScoreRepository(repo)
	warnings := discovery.CheckRepositoryProblems(repo.GitProperties)

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

func (d *Discoverer) cloneForAnalysis(ctx context.Context, cloneURL, fullName string) (string, error) {
	destPath, err := d.setupTempDir(fullName)
	if err != nil {
		return "", err
	}

	info := source.RepositoryInfo{
		FullName: fullName,
		CloneURL: cloneURL,
	}
	if err := d.provider.CloneRepository(ctx, info, destPath, source.DefaultCloneOptions()); err != nil {
		_ = os.RemoveAll(destPath)
		return "", err
	}
	return destPath, nil
}

func (d *Discoverer) setupTempDir(fullName string) (string, error) {
	base := d.tempDir
	if base == "" {
		base = os.TempDir()
	}
	base = filepath.Join(base, "migration-planner")
	// #nosec G301 -- scratch space for repository clones
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp base directory %s: %w", base, err)
	}

	safeName := strings.ReplaceAll(fullName, "/", "_")
	destPath := filepath.Join(base, safeName)
	if err := os.RemoveAll(destPath); err != nil {
		return "", fmt.Errorf("failed to clean existing temp directory: %w", err)
	}
	return destPath, nil
}

func trimRefPrefix(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}

func projectVisibility(v *core.ProjectVisibility) string {
	if v != nil && *v == core.ProjectVisibilityValues.Public {
		return models.VisibilityPublic
	}
	return models.VisibilityPrivate
}
