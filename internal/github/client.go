package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/google/go-github/v75/github"
	githubauth "github.com/jferrl/go-githubauth"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client wraps the GitHub REST and GraphQL clients with rate limiting, retry,
// and circuit breaking.
type Client struct {
	rest           *github.Client
	graphql        *githubv4.Client
	baseURL        string
	token          string
	rateLimiter    *RateLimiter
	retryer        *Retryer
	circuitBreaker *CircuitBreaker
	logger         *slog.Logger
}

// AppConfig holds GitHub App installation credentials. When present they are
// used instead of a PAT.
type AppConfig struct {
	AppID          int64
	PrivateKey     string
	InstallationID int64
}

// ClientConfig configures the GitHub client.
type ClientConfig struct {
	BaseURL     string
	Token       string
	App         *AppConfig
	Timeout     time.Duration
	RetryConfig RetryConfig
	Logger      *slog.Logger
}

// InstanceType represents the kind of GitHub instance behind a base URL.
type InstanceType int

const (
	// InstanceTypeGitHub is github.com.
	InstanceTypeGitHub InstanceType = iota
	// InstanceTypeGHEC is GitHub Enterprise Cloud with data residency.
	InstanceTypeGHEC
	// InstanceTypeGHES is GitHub Enterprise Server.
	InstanceTypeGHES
)

// GitHubAPIURL is the api endpoint for github.com.
const GitHubAPIURL = "https://api.github.com"

func detectInstanceType(baseURL string) InstanceType {
	if baseURL == "" || baseURL == GitHubAPIURL || baseURL == "https://github.com" {
		return InstanceTypeGitHub
	}
	// Data residency tenants live under .ghe.com.
	if strings.Contains(baseURL, ".ghe.com") {
		return InstanceTypeGHEC
	}
	return InstanceTypeGHES
}

// buildGraphQLURL derives the GraphQL endpoint for the instance type.
func buildGraphQLURL(baseURL string) string {
	switch detectInstanceType(baseURL) {
	case InstanceTypeGitHub:
		return GitHubAPIURL + "/graphql"

	case InstanceTypeGHEC:
		// octocorp.ghe.com -> https://api.octocorp.ghe.com/graphql
		domain := strings.TrimPrefix(baseURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimPrefix(domain, "api.")
		domain = strings.TrimSuffix(domain, "/")
		return fmt.Sprintf("https://api.%s/graphql", domain)

	default:
		// GHES serves GraphQL at /api/graphql. Strip any /api/v3 suffix the
		// REST config may carry.
		url := strings.TrimSuffix(baseURL, "/")
		url = strings.TrimSuffix(url, "/api/v3")
		url = strings.TrimSuffix(url, "/api")
		return url + "/api/graphql"
	}
}

// buildTokenSource returns the oauth2 token source for the configured
// credentials: an App installation token source when App credentials are set,
// a static PAT source otherwise.
func buildTokenSource(cfg ClientConfig) (oauth2.TokenSource, error) {
	if cfg.App == nil {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}), nil
	}

	// Fail early on malformed keys instead of at the first request.
	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.App.PrivateKey)); err != nil {
		return nil, fmt.Errorf("invalid app private key: %w", err)
	}

	appSource, err := githubauth.NewApplicationTokenSource(cfg.App.AppID, []byte(cfg.App.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create app token source: %w", err)
	}
	return githubauth.NewInstallationTokenSource(cfg.App.InstallationID, appSource), nil
}

// NewClient creates a new GitHub client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}

	ts, err := buildTokenSource(cfg)
	if err != nil {
		return nil, err
	}
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	var restClient *github.Client
	if detectInstanceType(cfg.BaseURL) == InstanceTypeGitHub {
		restClient = github.NewClient(httpClient)
	} else {
		restClient, err = github.NewClient(httpClient).WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, WrapError(err, "NewClient", cfg.BaseURL)
		}
	}

	graphqlURL := buildGraphQLURL(cfg.BaseURL)
	var graphqlClient *githubv4.Client
	if detectInstanceType(cfg.BaseURL) == InstanceTypeGitHub {
		graphqlClient = githubv4.NewClient(httpClient)
	} else {
		graphqlClient = githubv4.NewEnterpriseClient(graphqlURL, httpClient)
	}

	cfg.Logger.Debug("GitHub client configured",
		"base_url", cfg.BaseURL,
		"graphql_url", graphqlURL,
		"app_auth", cfg.App != nil)

	rateLimiter := NewRateLimiter(cfg.Logger)

	client := &Client{
		rest:           restClient,
		graphql:        graphqlClient,
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		rateLimiter:    rateLimiter,
		retryer:        NewRetryer(cfg.RetryConfig, rateLimiter, cfg.Logger),
		circuitBreaker: NewCircuitBreaker(5, 1*time.Minute, cfg.Logger),
		logger:         cfg.Logger,
	}
	return client, nil
}

// REST returns the underlying GitHub REST client.
func (c *Client) REST() *github.Client {
	return c.rest
}

// GraphQL returns the underlying GitHub GraphQL client.
func (c *Client) GraphQL() *githubv4.Client {
	return c.graphql
}

// BaseURL returns the base URL of the GitHub instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the authentication token. The analyzer uses it to build
// authenticated clone URLs.
func (c *Client) Token() string {
	return c.token
}

// GetRetryer returns the retryer for callers composing their own calls.
func (c *Client) GetRetryer() *Retryer {
	return c.retryer
}

// DoWithRetry executes a REST call with circuit breaking and retry, updating
// rate limit state from the response.
func (c *Client) DoWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) (*github.Response, error)) (*github.Response, error) {
	if !c.circuitBreaker.AllowRequest() {
		return nil, ErrCircuitOpen
	}

	var resp *github.Response
	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		start := time.Now()
		var err error
		resp, err = fn(ctx)
		duration := time.Since(start)

		if err != nil {
			wrapped := WrapError(err, operation, c.baseURL)
			c.logger.Debug("GitHub API call failed",
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", wrapped)
			return wrapped
		}

		if resp != nil && resp.Rate.Limit > 0 {
			c.rateLimiter.UpdateLimits(resp.Rate.Remaining, resp.Rate.Limit, resp.Rate.Reset.Time)
		}
		c.logger.Debug("GitHub API call completed",
			"operation", operation,
			"duration_ms", duration.Milliseconds())
		return nil
	})

	if err != nil {
		c.circuitBreaker.RecordFailure()
		return resp, err
	}
	c.circuitBreaker.RecordSuccess()
	return resp, nil
}

// QueryWithRetry executes a GraphQL query with circuit breaking and retry.
func (c *Client) QueryWithRetry(ctx context.Context, operation string, query any, variables map[string]any) error {
	if !c.circuitBreaker.AllowRequest() {
		return ErrCircuitOpen
	}

	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		if err := c.graphql.Query(ctx, query, variables); err != nil {
			return WrapError(err, operation, c.baseURL)
		}
		return nil
	})

	if err != nil {
		c.circuitBreaker.RecordFailure()
		return err
	}
	c.circuitBreaker.RecordSuccess()
	return nil
}

// MutateWithRetry executes a GraphQL mutation with circuit breaking and retry.
func (c *Client) MutateWithRetry(ctx context.Context, operation string, mutation any, input githubv4.Input, variables map[string]any) error {
	if !c.circuitBreaker.AllowRequest() {
		return ErrCircuitOpen
	}

	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		if err := c.graphql.Mutate(ctx, mutation, input, variables); err != nil {
			return WrapError(err, operation, c.baseURL)
		}
		return nil
	})

	if err != nil {
		c.circuitBreaker.RecordFailure()
		return err
	}
	c.circuitBreaker.RecordSuccess()
	return nil
}

// TestAuthentication verifies the credentials by fetching the current user.
func (c *Client) TestAuthentication(ctx context.Context) error {
	var user *github.User
	_, err := c.DoWithRetry(ctx, "TestAuthentication", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = c.rest.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return err
	}
	c.logger.Info("Authentication successful", "user", user.GetLogin(), "type", user.GetType())
	return nil
}

// GetRepository gets a single repository by owner and name.
func (c *Client) GetRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	var repository *github.Repository
	_, err := c.DoWithRetry(ctx, "GetRepository", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		repository, resp, err = c.rest.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return repository, nil
}

// ListOrgRepositories lists all repositories in an organization.
func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]*github.Repository, error) {
	var allRepos []*github.Repository
	opt := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	c.logger.Info("Listing repositories", "org", org)
	for {
		var repos []*github.Repository
		resp, err := c.DoWithRetry(ctx, "ListOrgRepositories", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			repos, resp, err = c.rest.Repositories.ListByOrg(ctx, org, opt)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		allRepos = append(allRepos, repos...)
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	c.logger.Info("Repository listing complete", "org", org, "total_repos", len(allRepos))
	return allRepos, nil
}

// ListEnterpriseOrganizations lists all organizations in an enterprise.
func (c *Client) ListEnterpriseOrganizations(ctx context.Context, enterpriseSlug string) ([]string, error) {
	var allOrgs []string
	var endCursor *githubv4.String

	var query struct {
		Enterprise struct {
			Organizations struct {
				Nodes []struct {
					Login githubv4.String
				}
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
			} `graphql:"organizations(first: 100, after: $cursor)"`
		} `graphql:"enterprise(slug: $slug)"`
	}

	for {
		variables := map[string]any{
			"slug":   githubv4.String(enterpriseSlug),
			"cursor": endCursor,
		}
		if err := c.QueryWithRetry(ctx, "ListEnterpriseOrganizations", &query, variables); err != nil {
			return nil, fmt.Errorf("failed to list enterprise organizations: %w", err)
		}

		for _, org := range query.Enterprise.Organizations.Nodes {
			allOrgs = append(allOrgs, string(org.Login))
		}
		if !query.Enterprise.Organizations.PageInfo.HasNextPage {
			break
		}
		endCursor = &query.Enterprise.Organizations.PageInfo.EndCursor
	}

	c.logger.Info("Enterprise organizations listed",
		"enterprise", enterpriseSlug,
		"total_orgs", len(allOrgs))
	return allOrgs, nil
}
