package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// GitHubProvider implements Provider for GitHub.com and GHES.
type GitHubProvider struct {
	baseURL string
	token   string
	client  *github.Client
	name    string
}

// NewGitHubProvider creates a GitHub provider. baseURL is empty or
// "https://api.github.com" for github.com, otherwise the GHES API base.
func NewGitHubProvider(baseURL, token string) (*GitHubProvider, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	var client *github.Client
	var err error
	if baseURL == "" || baseURL == "https://api.github.com" || baseURL == "https://github.com" {
		client = github.NewClient(tc)
	} else {
		client, err = github.NewClient(tc).WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create GitHub client: %w", err)
		}
	}

	name := "GitHub.com"
	if baseURL != "" && baseURL != "https://api.github.com" && baseURL != "https://github.com" {
		if parsedURL, err := url.Parse(baseURL); err == nil {
			name = fmt.Sprintf("GHES (%s)", parsedURL.Host)
		}
	}

	return &GitHubProvider{
		baseURL: baseURL,
		token:   token,
		client:  client,
		name:    name,
	}, nil
}

func (p *GitHubProvider) Type() ProviderType {
	return ProviderGitHub
}

func (p *GitHubProvider) Name() string {
	return p.name
}

// CloneRepository clones a repository into destPath.
func (p *GitHubProvider) CloneRepository(ctx context.Context, info RepositoryInfo, destPath string, opts CloneOptions) error {
	authURL, err := p.GetAuthenticatedCloneURL(info.CloneURL)
	if err != nil {
		return fmt.Errorf("failed to get authenticated URL: %w", err)
	}
	return runGitClone(ctx, authURL, destPath, p.token, opts)
}

// GetAuthenticatedCloneURL embeds the token into the clone URL, the
// https://TOKEN@host/org/repo.git form git expects.
func (p *GitHubProvider) GetAuthenticatedCloneURL(cloneURL string) (string, error) {
	if err := ValidateCloneURL(cloneURL); err != nil {
		return "", fmt.Errorf("invalid clone URL: %w", err)
	}
	parsedURL, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("invalid clone URL: %w", err)
	}
	parsedURL.User = url.User(p.token)
	return parsedURL.String(), nil
}

// ValidateCredentials checks the token by fetching the authenticated user.
func (p *GitHubProvider) ValidateCredentials(ctx context.Context) error {
	_, resp, err := p.client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && resp.StatusCode == 401 {
			return fmt.Errorf("%w: invalid token", ErrAuthenticationFailed)
		}
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	return nil
}
