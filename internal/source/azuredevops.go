package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// AzureDevOpsProvider implements Provider for Azure DevOps Services.
type AzureDevOpsProvider struct {
	organization string
	token        string
	name         string
}

// NewAzureDevOpsProvider creates an Azure DevOps provider for one
// organization.
func NewAzureDevOpsProvider(organization, token string) (*AzureDevOpsProvider, error) {
	if organization == "" {
		return nil, fmt.Errorf("organization is required")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	return &AzureDevOpsProvider{
		organization: organization,
		token:        token,
		name:         fmt.Sprintf("Azure DevOps (%s)", organization),
	}, nil
}

func (p *AzureDevOpsProvider) Type() ProviderType {
	return ProviderAzureDevOps
}

func (p *AzureDevOpsProvider) Name() string {
	return p.name
}

// CloneRepository clones a repository into destPath.
func (p *AzureDevOpsProvider) CloneRepository(ctx context.Context, info RepositoryInfo, destPath string, opts CloneOptions) error {
	authURL, err := p.GetAuthenticatedCloneURL(info.CloneURL)
	if err != nil {
		return fmt.Errorf("failed to get authenticated URL: %w", err)
	}
	return runGitClone(ctx, authURL, destPath, p.token, opts)
}

// GetAuthenticatedCloneURL embeds the PAT into the clone URL. The PAT goes in
// the username field, which works for both dev.azure.com and legacy hosts.
func (p *AzureDevOpsProvider) GetAuthenticatedCloneURL(cloneURL string) (string, error) {
	if err := ValidateCloneURL(cloneURL); err != nil {
		return "", fmt.Errorf("invalid clone URL: %w", err)
	}
	parsedURL, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse clone URL: %w", err)
	}
	parsedURL.User = url.User(p.token)
	return parsedURL.String(), nil
}

// ValidateCredentials checks the PAT against the projects endpoint.
func (p *AzureDevOpsProvider) ValidateCredentials(ctx context.Context) error {
	apiURL := fmt.Sprintf("https://dev.azure.com/%s/_apis/projects?api-version=7.1&$top=1", p.organization)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("", p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: invalid credentials", ErrAuthenticationFailed)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("failed to validate credentials: status %d", resp.StatusCode)
	}
	return nil
}

// NormalizeRepoURL rewrites legacy org.visualstudio.com URLs into the
// dev.azure.com form.
func (p *AzureDevOpsProvider) NormalizeRepoURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if strings.Contains(parsedURL.Host, "visualstudio.com") {
		parts := strings.Split(parsedURL.Host, ".")
		if len(parts) > 0 {
			org := parts[0]
			parsedURL.Host = "dev.azure.com"
			parsedURL.Path = "/" + org + parsedURL.Path
		}
	}
	return parsedURL.String(), nil
}
