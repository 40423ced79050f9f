package source

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kuhlman-labs/migration-planner/internal/config"
)

// NewProviderFromConfig creates a source provider from configuration.
func NewProviderFromConfig(cfg config.SourceConfig) (Provider, error) {
	switch strings.ToLower(cfg.Type) {
	case "github", "ghes":
		return NewGitHubProvider(cfg.BaseURL, cfg.Token)

	case "azuredevops", "ado":
		if len(cfg.ADOOrganizations) == 0 {
			return nil, fmt.Errorf("at least one ADO organization is required")
		}
		org, err := OrganizationFromURL(cfg.ADOOrganizations[0])
		if err != nil {
			return nil, err
		}
		return NewAzureDevOpsProvider(org, cfg.Token)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s (supported: github, ghes, azuredevops)", cfg.Type)
	}
}

// OrganizationFromURL extracts the organization name from an ADO org URL such
// as https://dev.azure.com/acme.
func OrganizationFromURL(orgURL string) (string, error) {
	parsed, err := url.Parse(orgURL)
	if err != nil {
		return "", fmt.Errorf("invalid organization URL %q: %w", orgURL, err)
	}

	// Legacy form: https://acme.visualstudio.com
	if strings.HasSuffix(parsed.Host, ".visualstudio.com") {
		return strings.TrimSuffix(parsed.Host, ".visualstudio.com"), nil
	}

	trimmed := strings.Trim(parsed.Path, "/")
	if trimmed == "" {
		return "", fmt.Errorf("organization URL %q has no organization segment", orgURL)
	}
	return strings.Split(trimmed, "/")[0], nil
}
