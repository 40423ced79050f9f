package discovery

import (
	"context"
	"fmt"
	"log/slog"

	ghapi "github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"

	"github.com/kuhlman-labs/migration-planner/internal/github"
)

// OrgCaches carries the three per-organization lookup tables consumed by the
// profiler. Each cache is built by one bulk query pass, is immutable once
// warmed, and lives only for the discovery run. A nil cache means warming
// failed or was skipped; dependent checks then follow the configured
// fallback.
type OrgCaches struct {
	Org           string
	Packages      *PackageCache
	Projects      *ProjectsCache
	Installations *InstallationCache
}

// PackageCache records which repositories in an organization publish
// packages.
type PackageCache struct {
	repoNames map[string]bool
}

// HasPackages reports whether the named repository (bare name, not org/name)
// publishes at least one package.
func (c *PackageCache) HasPackages(repoName string) bool {
	return c.repoNames[repoName]
}

// ProjectsCache records which repositories are linked to an org-level
// project board.
type ProjectsCache struct {
	linkedRepos map[string]bool
	count       int
}

// HasProject reports whether the repository (org/name) is linked to any
// org-level project.
func (c *ProjectsCache) HasProject(fullName string) bool {
	return c.linkedRepos[fullName]
}

// Count returns the number of org-level projects found during warming.
func (c *ProjectsCache) Count() int {
	return c.count
}

// appInstallation is one app installed on the organization. For "selected"
// installations repos holds the resolved repository list; for "all" it is
// unused.
type appInstallation struct {
	appSlug   string
	selection string
	repos     map[string]bool
}

// InstallationCache records the organization's app installations and, for
// selection mode "selected", each installation's resolved repository list.
type InstallationCache struct {
	installations []appInstallation
}

// AppsForRepo returns the slugs of apps with access to the repository. An
// app qualifies when its selection mode is "all", or it is "selected" and
// the repository appears in its resolved list.
func (c *InstallationCache) AppsForRepo(fullName string) []string {
	var apps []string
	for _, inst := range c.installations {
		if inst.selection == "all" || inst.repos[fullName] {
			apps = append(apps, inst.appSlug)
		}
	}
	return apps
}

// packageTypes are the registry types probed during package cache warming.
// The org packages endpoint requires an explicit type per request.
var packageTypes = []string{"npm", "maven", "rubygems", "docker", "nuget", "container"}

// WarmOrgCaches builds all three caches for an organization. Individual
// warm failures degrade to a nil cache and a warning; discovery proceeds
// with the configured fallback for the affected checks.
func WarmOrgCaches(ctx context.Context, client *github.Client, org string, logger *slog.Logger) *OrgCaches {
	caches := &OrgCaches{Org: org}

	packages, err := LoadPackageCache(ctx, client, org)
	if err != nil {
		logger.Warn("Failed to load package cache", "org", org, "error", err)
	} else {
		caches.Packages = packages
	}

	projects, err := LoadProjectsCache(ctx, client, org)
	if err != nil {
		logger.Warn("Failed to load projects cache", "org", org, "error", err)
	} else {
		caches.Projects = projects
	}

	installations, err := LoadInstallationCache(ctx, client, org, logger)
	if err != nil {
		logger.Warn("Failed to load installation cache", "org", org, "error", err)
	} else {
		caches.Installations = installations
	}

	return caches
}

// LoadPackageCache walks the organization's packages across all registry
// types and records which repositories publish them.
func LoadPackageCache(ctx context.Context, client *github.Client, org string) (*PackageCache, error) {
	cache := &PackageCache{repoNames: make(map[string]bool)}

	for _, pkgType := range packageTypes {
		pkgType := pkgType
		opts := &ghapi.PackageListOptions{
			PackageType: &pkgType,
			ListOptions: ghapi.ListOptions{PerPage: 100},
		}
		for {
			packages, resp, err := client.REST().Organizations.ListPackages(ctx, org, opts)
			if err != nil {
				// Some registries are disabled per instance; a 404 for one
				// type does not invalidate the others.
				if github.IsNotFoundError(err) {
					break
				}
				return nil, fmt.Errorf("failed to list %s packages: %w", pkgType, err)
			}
			for _, pkg := range packages {
				if pkg.Repository != nil {
					cache.repoNames[pkg.Repository.GetName()] = true
				}
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	return cache, nil
}

// LoadProjectsCache walks the organization's ProjectsV2 boards via GraphQL
// and records which repositories are linked to one.
func LoadProjectsCache(ctx context.Context, client *github.Client, org string) (*ProjectsCache, error) {
	cache := &ProjectsCache{linkedRepos: make(map[string]bool)}

	var query struct {
		Organization struct {
			ProjectsV2 struct {
				Nodes []struct {
					Repositories struct {
						Nodes []struct {
							NameWithOwner githubv4.String
						}
					} `graphql:"repositories(first: 100)"`
				}
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
			} `graphql:"projectsV2(first: 50, after: $cursor)"`
		} `graphql:"organization(login: $org)"`
	}

	variables := map[string]any{
		"org":    githubv4.String(org),
		"cursor": (*githubv4.String)(nil),
	}

	for {
		if err := client.QueryWithRetry(ctx, "list org projects", &query, variables); err != nil {
			return nil, fmt.Errorf("failed to list org projects: %w", err)
		}
		for _, project := range query.Organization.ProjectsV2.Nodes {
			cache.count++
			for _, repo := range project.Repositories.Nodes {
				cache.linkedRepos[string(repo.NameWithOwner)] = true
			}
		}
		if !query.Organization.ProjectsV2.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(query.Organization.ProjectsV2.PageInfo.EndCursor)
	}
	return cache, nil
}

// LoadInstallationCache lists the organization's app installations and
// resolves the repository list of each "selected" installation. A
// permission-denied repository list is tolerated and leaves that
// installation with an empty list.
func LoadInstallationCache(ctx context.Context, client *github.Client, org string, logger *slog.Logger) (*InstallationCache, error) {
	cache := &InstallationCache{}

	opts := &ghapi.ListOptions{PerPage: 100}
	for {
		result, resp, err := client.REST().Organizations.ListInstallations(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list org installations: %w", err)
		}
		for _, inst := range result.Installations {
			entry := appInstallation{
				appSlug:   inst.GetAppSlug(),
				selection: inst.GetRepositorySelection(),
				repos:     make(map[string]bool),
			}
			if entry.selection == "selected" {
				if err := loadInstallationRepos(ctx, client, inst.GetID(), entry.repos); err != nil {
					logger.Debug("Could not resolve installation repositories",
						"org", org,
						"app", entry.appSlug,
						"error", err)
				}
			}
			cache.installations = append(cache.installations, entry)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return cache, nil
}

func loadInstallationRepos(ctx context.Context, client *github.Client, installationID int64, repos map[string]bool) error {
	opts := &ghapi.ListOptions{PerPage: 100}
	for {
		result, resp, err := client.REST().Apps.ListUserRepos(ctx, installationID, opts)
		if err != nil {
			return err
		}
		for _, repo := range result.Repositories {
			repos[repo.GetFullName()] = true
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil
}
