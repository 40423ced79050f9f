package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	ghapi "github.com/google/go-github/v75/github"

	"github.com/kuhlman-labs/migration-planner/internal/github"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// CacheFallback modes govern profiling a repository whose org caches were
// never warmed (single-repository profiling without a prior org pass).
const (
	// CacheFallbackAbsent reports cache-dependent features as absent.
	CacheFallbackAbsent = "absent"
	// CacheFallbackDirect issues a just-in-time per-repository query.
	CacheFallbackDirect = "direct"
)

// hostedRunnerNameFragments mark runners that are platform-hosted despite
// appearing in the repository runner list. Matched case-insensitively.
var hostedRunnerNameFragments = []string{"github actions", "github-hosted", "hosted agent"}

// Profiler gathers per-repository platform features through the source API.
// Sub-checks are independent: a failure in one defaults its fields and is
// recorded in DegradedChecks, never aborting the pass.
type Profiler struct {
	client        *github.Client
	logger        *slog.Logger
	token         string
	cacheFallback string
}

// NewProfiler creates a feature profiler.
func NewProfiler(client *github.Client, logger *slog.Logger) *Profiler {
	return &Profiler{
		client:        client,
		logger:        logger,
		token:         client.Token(),
		cacheFallback: CacheFallbackDirect,
	}
}

// SetCacheFallback selects the behavior when an org cache is missing.
func (p *Profiler) SetCacheFallback(mode string) {
	if mode == CacheFallbackAbsent || mode == CacheFallbackDirect {
		p.cacheFallback = mode
	}
}

// subCheck is one independent profiling probe.
type subCheck struct {
	name string
	run  func(ctx context.Context) error
}

// ProfileFeatures runs every sub-check against the repository and returns a
// fully populated features row. Failed checks leave their fields at the
// "feature absent" default and are listed in DegradedChecks. The only hard
// error is a malformed repository name.
func (p *Profiler) ProfileFeatures(ctx context.Context, repo *models.Repository, caches *OrgCaches) (*models.RepositoryFeatures, error) {
	parts := strings.SplitN(repo.FullName, "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid full_name format: %s (expected: org/repo)", repo.FullName)
	}
	org, name := parts[0], parts[1]

	p.logger.Debug("Profiling repository features", "repo", repo.FullName)

	feats := &models.RepositoryFeatures{}

	checks := []subCheck{
		{"repository_flags", func(ctx context.Context) error {
			return p.checkRepositoryFlags(ctx, org, name, feats)
		}},
		{"workflows", func(ctx context.Context) error {
			return p.checkWorkflows(ctx, org, name, feats)
		}},
		{"branch_protections", func(ctx context.Context) error {
			return p.checkBranchProtections(ctx, org, name, feats)
		}},
		{"rulesets", func(ctx context.Context) error {
			return p.checkRulesets(ctx, org, name, feats)
		}},
		{"environments", func(ctx context.Context) error {
			return p.checkEnvironments(ctx, org, name, feats)
		}},
		{"secrets", func(ctx context.Context) error {
			return p.checkSecrets(ctx, org, name, feats)
		}},
		{"variables", func(ctx context.Context) error {
			return p.checkVariables(ctx, org, name, feats)
		}},
		{"webhooks", func(ctx context.Context) error {
			return p.checkWebhooks(ctx, org, name, feats)
		}},
		{"collaborators", func(ctx context.Context) error {
			return p.checkCollaborators(ctx, org, name, feats)
		}},
		{"contributors", func(ctx context.Context) error {
			return p.checkContributors(ctx, org, name, feats)
		}},
		{"issues_and_prs", func(ctx context.Context) error {
			return p.checkIssuesAndPRs(ctx, org, name, feats)
		}},
		{"releases", func(ctx context.Context) error {
			return p.checkReleases(ctx, org, name, feats)
		}},
		{"security_features", func(ctx context.Context) error {
			return p.checkSecurityFeatures(ctx, org, name, feats)
		}},
		{"codeowners", func(ctx context.Context) error {
			return p.checkCodeowners(ctx, org, name, feats)
		}},
		{"runners", func(ctx context.Context) error {
			return p.checkRunners(ctx, org, name, feats)
		}},
		{"packages", func(ctx context.Context) error {
			return p.checkPackages(ctx, org, name, caches, feats)
		}},
		{"installed_apps", func(_ context.Context) error {
			return p.checkInstalledApps(repo.FullName, caches, feats)
		}},
	}

	var degraded []string
	for _, check := range checks {
		if err := check.run(ctx); err != nil {
			degraded = append(degraded, check.name)
			p.logger.Debug("Profiling sub-check degraded",
				"repo", repo.FullName,
				"check", check.name,
				"error", err)
		}
	}

	// Projects blend the repository flag with the org-level board linkage.
	if caches != nil && caches.Projects != nil && caches.Projects.HasProject(repo.FullName) {
		feats.HasProjects = true
	}

	// An enabled wiki only counts when it has content.
	if feats.HasWiki {
		p.verifyWikiContent(ctx, repo, feats)
	}

	feats.DegradedChecks = strings.Join(degraded, ",")
	feats.ProfiledAt = time.Now()

	p.logger.Info("Repository features profiled",
		"repo", repo.FullName,
		"workflows", feats.WorkflowCount,
		"has_wiki", feats.HasWiki,
		"has_packages", feats.HasPackages,
		"issues", feats.IssueCount,
		"prs", feats.PullRequestCount,
		"degraded_checks", len(degraded))

	return feats, nil
}

func (p *Profiler) checkRepositoryFlags(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	ghRepo, _, err := p.client.REST().Repositories.Get(ctx, org, name)
	if err != nil {
		return err
	}
	feats.HasWiki = ghRepo.GetHasWiki()
	feats.HasPages = ghRepo.GetHasPages()
	feats.HasDiscussions = ghRepo.GetHasDiscussions()
	feats.HasProjects = ghRepo.GetHasProjects()
	return nil
}

func (p *Profiler) checkWorkflows(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	workflows, _, err := p.client.REST().Actions.ListWorkflows(ctx, org, name, nil)
	if err != nil {
		return err
	}
	feats.WorkflowCount = workflows.GetTotalCount()
	return nil
}

func (p *Profiler) checkBranchProtections(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.BranchListOptions{
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	protected := 0
	for {
		branches, resp, err := p.client.REST().Repositories.ListBranches(ctx, org, name, opts)
		if err != nil {
			return err
		}
		for _, branch := range branches {
			if branch.GetProtected() {
				protected++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	feats.BranchProtectionCount = protected
	return nil
}

func (p *Profiler) checkRulesets(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	req, err := p.client.REST().NewRequest("GET", fmt.Sprintf("repos/%s/%s/rulesets?per_page=1", org, name), nil)
	if err != nil {
		return err
	}
	var rulesets []json.RawMessage
	if _, err := p.client.REST().Do(ctx, req, &rulesets); err != nil {
		if github.IsNotFoundError(err) {
			feats.HasRulesets = false
			return nil
		}
		return err
	}
	feats.HasRulesets = len(rulesets) > 0
	return nil
}

func (p *Profiler) checkEnvironments(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	environments, _, err := p.client.REST().Repositories.ListEnvironments(ctx, org, name, nil)
	if err != nil {
		return err
	}
	feats.EnvironmentCount = environments.GetTotalCount()
	return nil
}

func (p *Profiler) checkSecrets(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	secrets, _, err := p.client.REST().Actions.ListRepoSecrets(ctx, org, name, nil)
	if err != nil {
		return err
	}
	feats.SecretCount = secrets.TotalCount
	return nil
}

func (p *Profiler) checkVariables(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	variables, _, err := p.client.REST().Actions.ListRepoVariables(ctx, org, name, nil)
	if err != nil {
		return err
	}
	feats.VariableCount = variables.TotalCount
	return nil
}

func (p *Profiler) checkWebhooks(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.ListOptions{PerPage: 100}
	count := 0
	for {
		hooks, resp, err := p.client.REST().Repositories.ListHooks(ctx, org, name, opts)
		if err != nil {
			return err
		}
		count += len(hooks)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	feats.WebhookCount = count
	return nil
}

func (p *Profiler) checkCollaborators(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.ListCollaboratorsOptions{
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	count := 0
	for {
		collaborators, resp, err := p.client.REST().Repositories.ListCollaborators(ctx, org, name, opts)
		if err != nil {
			return err
		}
		count += len(collaborators)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	feats.CollaboratorCount = count
	return nil
}

func (p *Profiler) checkContributors(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.ListContributorsOptions{
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	var top []string
	count := 0
	for {
		contributors, resp, err := p.client.REST().Repositories.ListContributors(ctx, org, name, opts)
		if err != nil {
			return err
		}
		for _, contributor := range contributors {
			if len(top) < 5 {
				top = append(top, contributor.GetLogin())
			}
			count++
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	feats.ContributorCount = count
	feats.TopContributors = strings.Join(top, ",")
	return nil
}

// checkIssuesAndPRs counts issues and pull requests separately. The issues
// endpoint also returns pull requests; items carrying a pull-request linkage
// count only toward the PR totals.
func (p *Profiler) checkIssuesAndPRs(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	issueOpts := &ghapi.IssueListByRepoOptions{
		State:       "all",
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	totalIssues, openIssues := 0, 0
	for {
		issues, resp, err := p.client.REST().Issues.ListByRepo(ctx, org, name, issueOpts)
		if err != nil {
			return err
		}
		for _, issue := range issues {
			if issue.PullRequestLinks != nil {
				continue
			}
			totalIssues++
			if issue.GetState() == "open" {
				openIssues++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		issueOpts.ListOptions.Page = resp.NextPage
	}
	feats.IssueCount = totalIssues
	feats.OpenIssueCount = openIssues

	prOpts := &ghapi.PullRequestListOptions{
		State:       "all",
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	totalPRs, openPRs := 0, 0
	for {
		prs, resp, err := p.client.REST().PullRequests.List(ctx, org, name, prOpts)
		if err != nil {
			return err
		}
		totalPRs += len(prs)
		for _, pr := range prs {
			if pr.GetState() == "open" {
				openPRs++
			}
		}
		if resp.NextPage == 0 {
			break
		}
		prOpts.Page = resp.NextPage
	}
	feats.PullRequestCount = totalPRs
	feats.OpenPRCount = openPRs
	return nil
}

func (p *Profiler) checkReleases(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.ListOptions{PerPage: 100}
	count := 0
	hasAssets := false
	for {
		releases, resp, err := p.client.REST().Repositories.ListReleases(ctx, org, name, opts)
		if err != nil {
			return err
		}
		count += len(releases)
		for _, release := range releases {
			if len(release.Assets) > 0 {
				hasAssets = true
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	feats.ReleaseCount = count
	feats.HasReleaseAssets = hasAssets
	return nil
}

// checkSecurityFeatures infers enablement from endpoint reachability: a
// non-404 response means the feature is on, whether or not alerts exist.
func (p *Profiler) checkSecurityFeatures(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	_, _, err := p.client.REST().CodeScanning.ListAlertsForRepo(ctx, org, name, nil)
	feats.CodeScanningEnabled = !github.IsNotFoundError(err)

	_, _, err = p.client.REST().Dependabot.ListRepoAlerts(ctx, org, name, nil)
	feats.DependabotAlertsEnabled = !github.IsNotFoundError(err)

	_, _, err = p.client.REST().SecretScanning.ListAlertsForRepo(ctx, org, name, nil)
	feats.SecretScanningEnabled = !github.IsNotFoundError(err)

	return nil
}

// checkCodeowners probes the candidate paths in order and parses the first
// that resolves to a file.
func (p *Profiler) checkCodeowners(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	for _, path := range codeownersPaths {
		fileContent, _, _, err := p.client.REST().Repositories.GetContents(ctx, org, name, path, nil)
		if err != nil || fileContent == nil {
			// Missing path, or the path resolved to a directory.
			continue
		}
		content, err := fileContent.GetContent()
		if err != nil {
			return err
		}

		teams, users := parseCodeowners(content)
		feats.HasCodeowners = true
		feats.CodeownersPath = path
		feats.CodeownerTeams = len(teams)
		feats.CodeownerUsers = len(users)
		return nil
	}
	return nil
}

// checkRunners looks for at least one self-hosted runner. Runners whose
// names carry a known hosted fragment do not count.
func (p *Profiler) checkRunners(ctx context.Context, org, name string, feats *models.RepositoryFeatures) error {
	opts := &ghapi.ListRunnersOptions{
		ListOptions: ghapi.ListOptions{PerPage: 100},
	}
	for {
		runners, resp, err := p.client.REST().Actions.ListRunners(ctx, org, name, opts)
		if err != nil {
			return err
		}
		for _, runner := range runners.Runners {
			if !isHostedRunnerName(runner.GetName()) {
				feats.HasSelfHostedRunners = true
				return nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}

func isHostedRunnerName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range hostedRunnerNameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// checkPackages consults the warmed package cache; without one it follows
// the configured fallback.
func (p *Profiler) checkPackages(ctx context.Context, org, name string, caches *OrgCaches, feats *models.RepositoryFeatures) error {
	if caches != nil && caches.Packages != nil {
		feats.HasPackages = caches.Packages.HasPackages(name)
		return nil
	}

	if p.cacheFallback == CacheFallbackAbsent {
		feats.HasPackages = false
		return nil
	}

	// Just-in-time query for single-repository profiling.
	cache, err := LoadPackageCache(ctx, p.client, org)
	if err != nil {
		return err
	}
	feats.HasPackages = cache.HasPackages(name)
	return nil
}

// checkInstalledApps attributes app installations from the warmed cache.
// There is no per-repository installation listing available to a PAT, so a
// missing cache always reports zero apps.
func (p *Profiler) checkInstalledApps(fullName string, caches *OrgCaches, feats *models.RepositoryFeatures) error {
	if caches == nil || caches.Installations == nil {
		return nil
	}
	apps := caches.Installations.AppsForRepo(fullName)
	feats.InstalledAppCount = len(apps)
	feats.InstalledAppNames = strings.Join(apps, ",")
	return nil
}

// verifyWikiContent downgrades HasWiki when the enabled wiki is empty.
// Wikis are separate git repositories reachable at <repo>.wiki.git; a
// lightweight remote-ref listing shows whether any content exists.
func (p *Profiler) verifyWikiContent(ctx context.Context, repo *models.Repository, feats *models.RepositoryFeatures) {
	wikiURL := strings.TrimSuffix(repo.SourceURL, ".git") + ".wiki.git"

	hasContent, err := p.wikiHasContent(ctx, wikiURL)
	if err != nil {
		p.logger.Debug("Failed to check wiki content, assuming empty",
			"repo", repo.FullName,
			"error", err)
		feats.HasWiki = false
		return
	}
	feats.HasWiki = hasContent
	if !hasContent {
		p.logger.Debug("Wiki enabled but empty", "repo", repo.FullName)
	}
}

func (p *Profiler) wikiHasContent(ctx context.Context, wikiURL string) (bool, error) {
	authenticatedURL := injectToken(wikiURL, p.token)

	// #nosec G204 -- wikiURL derives from controlled repository data
	cmd := exec.CommandContext(ctx, "git", "ls-remote", authenticatedURL)
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	// ls-remote failing means the wiki repo was never initialized; that is
	// an empty wiki, not an error.
	if err := cmd.Run(); err != nil {
		return false, nil
	}
	return strings.TrimSpace(stdout.String()) != "", nil
}

// injectToken embeds a credential into an http(s) URL for subprocess use.
func injectToken(rawURL, token string) string {
	if token == "" {
		return rawURL
	}
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(rawURL, scheme) {
			return scheme + token + "@" + strings.TrimPrefix(rawURL, scheme)
		}
	}
	return rawURL
}
