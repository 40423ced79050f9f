// Package ado provides the Azure DevOps source client and discovery pipeline.
// ADO repositories are project-scoped, so discovery walks organization ->
// project -> repository and records the project alongside the repository.
package ado

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"

	"github.com/kuhlman-labs/migration-planner/internal/source"
)

// Client wraps the Azure DevOps service clients needed for discovery.
type Client struct {
	connection   *azuredevops.Connection
	coreClient   core.Client
	gitClient    git.Client
	orgURL       string
	organization string
	token        string
	logger       *slog.Logger
}

// ClientConfig contains configuration for creating an ADO client.
type ClientConfig struct {
	// OrganizationURL is the org root, e.g. https://dev.azure.com/acme.
	OrganizationURL     string
	PersonalAccessToken string
	Logger              *slog.Logger
}

// Validate checks if the configuration is valid.
func (c ClientConfig) Validate() error {
	if c.OrganizationURL == "" {
		return fmt.Errorf("organization URL is required")
	}
	if c.PersonalAccessToken == "" {
		return fmt.Errorf("personal access token is required")
	}
	return nil
}

// NewClient creates an Azure DevOps client for one organization.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	organization, err := source.OrganizationFromURL(cfg.OrganizationURL)
	if err != nil {
		return nil, err
	}

	connection := azuredevops.NewPatConnection(cfg.OrganizationURL, cfg.PersonalAccessToken)

	coreClient, err := core.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create core client: %w", err)
	}

	gitClient, err := git.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create git client: %w", err)
	}

	return &Client{
		connection:   connection,
		coreClient:   coreClient,
		gitClient:    gitClient,
		orgURL:       cfg.OrganizationURL,
		organization: organization,
		token:        cfg.PersonalAccessToken,
		logger:       logger,
	}, nil
}

// Organization returns the organization name parsed from the org URL.
func (c *Client) Organization() string {
	return c.organization
}

// Token returns the PAT. Providers use it to build authenticated clone URLs.
func (c *Client) Token() string {
	return c.token
}

// GetProjects returns all projects in the organization.
func (c *Client) GetProjects(ctx context.Context) ([]core.TeamProjectReference, error) {
	projects, err := c.coreClient.GetProjects(ctx, core.GetProjectsArgs{})
	if err != nil {
		return nil, fmt.Errorf("failed to get projects: %w", err)
	}
	if projects == nil || projects.Value == nil {
		return []core.TeamProjectReference{}, nil
	}
	return projects.Value, nil
}

// GetRepositories returns all Git repositories in a project.
func (c *Client) GetRepositories(ctx context.Context, projectName string) ([]git.GitRepository, error) {
	repos, err := c.gitClient.GetRepositories(ctx, git.GetRepositoriesArgs{
		Project: &projectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repositories for %s: %w", projectName, err)
	}
	if repos == nil {
		return []git.GitRepository{}, nil
	}
	return *repos, nil
}

// GetRepository returns a single repository by project and name.
func (c *Client) GetRepository(ctx context.Context, projectName, repoName string) (*git.GitRepository, error) {
	repo, err := c.gitClient.GetRepository(ctx, git.GetRepositoryArgs{
		RepositoryId: &repoName,
		Project:      &projectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", projectName, repoName, err)
	}
	return repo, nil
}

// GetBranches returns branch statistics for a repository.
func (c *Client) GetBranches(ctx context.Context, projectName, repoName string) ([]git.GitBranchStats, error) {
	branches, err := c.gitClient.GetBranches(ctx, git.GetBranchesArgs{
		RepositoryId: &repoName,
		Project:      &projectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get branches: %w", err)
	}
	if branches == nil {
		return []git.GitBranchStats{}, nil
	}
	return *branches, nil
}

// GetPullRequests returns pull requests in all states for a repository.
func (c *Client) GetPullRequests(ctx context.Context, projectName, repoID string) ([]git.GitPullRequest, error) {
	searchCriteria := git.GitPullRequestSearchCriteria{
		Status: &git.PullRequestStatusValues.All,
	}
	prs, err := c.gitClient.GetPullRequests(ctx, git.GetPullRequestsArgs{
		RepositoryId:   &repoID,
		Project:        &projectName,
		SearchCriteria: &searchCriteria,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pull requests: %w", err)
	}
	if prs == nil {
		return []git.GitPullRequest{}, nil
	}
	return *prs, nil
}

// ValidateCredentials validates the PAT by listing projects.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	if _, err := c.GetProjects(ctx); err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	return nil
}
