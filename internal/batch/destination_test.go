package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func strptr(s string) *string { return &s }

func TestResolveDestination(t *testing.T) {
	githubRepo := func() *models.Repository {
		return &models.Repository{FullName: "acme/widgets", Source: models.SourceGitHub}
	}
	adoRepo := func() *models.Repository {
		return &models.Repository{
			FullName: "acme/Platform/widgets",
			Source:   models.SourceAzureDevOps,
			ADOProperties: &models.RepositoryADOProperties{
				Organization: "acme",
				Project:      "Platform",
			},
		}
	}

	t.Run("no batch falls back to source name", func(t *testing.T) {
		d := ResolveDestination(githubRepo(), nil)
		assert.Equal(t, Destination{Org: "acme", Name: "widgets", Kind: DestinationSourceName}, d)
	})

	t.Run("batch default uses bare name", func(t *testing.T) {
		d := ResolveDestination(githubRepo(), &models.Batch{DestinationOrg: "new-org"})
		assert.Equal(t, Destination{Org: "new-org", Name: "widgets", Kind: DestinationBatchDefault}, d)
		assert.Equal(t, "new-org/widgets", d.FullName())
	})

	t.Run("ado batch default joins project and name", func(t *testing.T) {
		d := ResolveDestination(adoRepo(), &models.Batch{DestinationOrg: "new-org"})
		assert.Equal(t, "Platform-widgets", d.Name)
		assert.Equal(t, DestinationBatchDefault, d.Kind)
	})

	t.Run("explicit override wins", func(t *testing.T) {
		repo := githubRepo()
		repo.DestinationOverride = strptr("other-org/renamed")
		d := ResolveDestination(repo, &models.Batch{DestinationOrg: "new-org"})
		assert.Equal(t, Destination{Org: "other-org", Name: "renamed", Kind: DestinationCustom}, d)
	})

	t.Run("override equal to batch default stays batch default", func(t *testing.T) {
		repo := githubRepo()
		repo.DestinationOverride = strptr("new-org/widgets")
		d := ResolveDestination(repo, &models.Batch{DestinationOrg: "new-org"})
		assert.Equal(t, DestinationBatchDefault, d.Kind)
	})

	t.Run("batch without destination org falls back to source name", func(t *testing.T) {
		d := ResolveDestination(githubRepo(), &models.Batch{})
		assert.Equal(t, DestinationSourceName, d.Kind)
	})
}

func TestADOProjectFallsBackToSourceURL(t *testing.T) {
	repo := &models.Repository{
		FullName:  "acme/Platform/widgets",
		Source:    models.SourceAzureDevOps,
		SourceURL: "https://dev.azure.com/acme/Platform/_git/widgets",
	}
	d := ResolveDestination(repo, &models.Batch{DestinationOrg: "new-org"})
	assert.Equal(t, "Platform-widgets", d.Name)

	// Without a source URL the project comes out of the full name.
	repo.SourceURL = ""
	d = ResolveDestination(repo, &models.Batch{DestinationOrg: "new-org"})
	assert.Equal(t, "Platform-widgets", d.Name)
}
