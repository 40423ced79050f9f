package ado

import (
	"testing"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/stretchr/testify/assert"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func TestDiscovererFullName(t *testing.T) {
	d := &Discoverer{client: &Client{organization: "acme"}}

	project := "Platform"
	name := "widgets"
	job := repoJob{
		project: core.TeamProjectReference{Name: &project},
		repo:    git.GitRepository{Name: &name},
	}
	assert.Equal(t, "acme/Platform/widgets", d.fullName(job))

	// The planner's org/name split must place org/project on the org side.
	repo := &models.Repository{FullName: d.fullName(job)}
	assert.Equal(t, "acme/Platform", repo.GetOrganization())
	assert.Equal(t, "widgets", repo.GetRepoName())
}

func TestTrimRefPrefix(t *testing.T) {
	assert.Equal(t, "main", trimRefPrefix("refs/heads/main"))
	assert.Equal(t, "main", trimRefPrefix("main"))
}

func TestProjectVisibility(t *testing.T) {
	assert.Equal(t, models.VisibilityPublic, projectVisibility(&core.ProjectVisibilityValues.Public))
	assert.Equal(t, models.VisibilityPrivate, projectVisibility(&core.ProjectVisibilityValues.Private))
	assert.Equal(t, models.VisibilityPrivate, projectVisibility(nil))
}

func TestAPIOnlyProperties(t *testing.T) {
	size := uint64(2048)
	branch := "refs/heads/develop"
	job := repoJob{repo: git.GitRepository{Size: &size, DefaultBranch: &branch}}

	props := (&Discoverer{}).apiOnlyProperties(job)
	assert.Equal(t, int64(2048), props.SizeBytes)
	assert.Equal(t, "develop", props.DefaultBranch)
	assert.False(t, props.AnalyzedAt.IsZero())
}
