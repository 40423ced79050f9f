package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/config"
)

func TestValidateCloneURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https url", "https://github.com/acme/widgets.git", false},
		{"ghes url", "https://github.example.com/acme/widgets.git", false},
		{"ado url", "https://dev.azure.com/acme/Tools/_git/widgets", false},
		{"empty", "", true},
		{"no host", "https://", true},
		{"bad scheme", "file:///etc/passwd", true},
		{"shell metacharacter", "https://github.com/acme/widgets.git;rm -rf /", true},
		{"backtick", "https://github.com/acme/`id`.git", true},
		{"newline", "https://github.com/acme/widgets.git\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCloneURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDestPath(t *testing.T) {
	assert.NoError(t, ValidateDestPath("/tmp/discovery/acme-widgets"))
	assert.Error(t, ValidateDestPath(""))
	assert.Error(t, ValidateDestPath("../escape"))
	assert.Error(t, ValidateDestPath("/tmp/x;rm -rf /"))
}

func TestSanitizeGitError(t *testing.T) {
	msg := "fatal: could not read from https://ghp_secret@github.com/acme/widgets.git"
	got := sanitizeGitError(msg, "ghp_secret")
	assert.NotContains(t, got, "ghp_secret")
	assert.Contains(t, got, "[REDACTED]")

	// Empty token leaves the message alone.
	assert.Equal(t, msg, sanitizeGitError(msg, ""))
}

func TestGitHubProviderAuthenticatedCloneURL(t *testing.T) {
	p, err := NewGitHubProvider("", "ghp_token")
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, p.Type())
	assert.Equal(t, "GitHub.com", p.Name())

	authURL, err := p.GetAuthenticatedCloneURL("https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(authURL, "https://ghp_token@github.com/"))

	_, err = p.GetAuthenticatedCloneURL("not a url;")
	assert.Error(t, err)
}

func TestGitHubProviderGHESName(t *testing.T) {
	p, err := NewGitHubProvider("https://github.example.com/api/v3", "token")
	require.NoError(t, err)
	assert.Contains(t, p.Name(), "github.example.com")
}

func TestAzureDevOpsProvider(t *testing.T) {
	_, err := NewAzureDevOpsProvider("", "pat")
	assert.Error(t, err)
	_, err = NewAzureDevOpsProvider("acme", "")
	assert.Error(t, err)

	p, err := NewAzureDevOpsProvider("acme", "ado_pat")
	require.NoError(t, err)
	assert.Equal(t, ProviderAzureDevOps, p.Type())

	authURL, err := p.GetAuthenticatedCloneURL("https://dev.azure.com/acme/Tools/_git/widgets")
	require.NoError(t, err)
	assert.Contains(t, authURL, "ado_pat@dev.azure.com")

	normalized, err := p.NormalizeRepoURL("https://acme.visualstudio.com/Tools/_git/widgets")
	require.NoError(t, err)
	assert.Equal(t, "https://dev.azure.com/acme/Tools/_git/widgets", normalized)
}

func TestOrganizationFromURL(t *testing.T) {
	org, err := OrganizationFromURL("https://dev.azure.com/acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", org)

	org, err = OrganizationFromURL("https://acme.visualstudio.com")
	require.NoError(t, err)
	assert.Equal(t, "acme", org)

	_, err = OrganizationFromURL("https://dev.azure.com/")
	assert.Error(t, err)
}

func TestNewProviderFromConfig(t *testing.T) {
	p, err := NewProviderFromConfig(config.SourceConfig{Type: "ghes", BaseURL: "https://github.example.com", Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, p.Type())

	p, err = NewProviderFromConfig(config.SourceConfig{
		Type:             "azuredevops",
		Token:            "t",
		ADOOrganizations: []string{"https://dev.azure.com/acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderAzureDevOps, p.Type())

	_, err = NewProviderFromConfig(config.SourceConfig{Type: "svn", Token: "t"})
	assert.Error(t, err)
}
