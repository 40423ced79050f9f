// Package batch implements the batch lifecycle: destination resolution,
// aggregate status, periodic reconciliation, and scheduled starts.
package batch

import (
	"strings"

	"github.com/kuhlman-labs/migration-planner/internal/ado"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// DestinationKind says where a resolved destination came from.
type DestinationKind string

const (
	// DestinationCustom is an explicit per-repository override.
	DestinationCustom DestinationKind = "custom"
	// DestinationBatchDefault is the batch destination org plus the computed
	// repository name.
	DestinationBatchDefault DestinationKind = "batch_default"
	// DestinationSourceName mirrors the source full name; used when the
	// repository has no batch or the batch has no destination org.
	DestinationSourceName DestinationKind = "source"
)

// Destination is where a repository migrates to.
type Destination struct {
	Org  string          `json:"org"`
	Name string          `json:"name"`
	Kind DestinationKind `json:"kind"`
}

// FullName returns the destination as org/name.
func (d Destination) FullName() string {
	return d.Org + "/" + d.Name
}

// ResolveDestination applies the precedence rules: an explicit repository
// override wins, then the batch destination org with the computed name, then
// the source full name. An override spelled exactly like the batch default is
// still reported as the batch default.
func ResolveDestination(repo *models.Repository, b *models.Batch) Destination {
	var batchDefault *Destination
	if b != nil && b.DestinationOrg != "" {
		batchDefault = &Destination{
			Org:  b.DestinationOrg,
			Name: destinationName(repo),
			Kind: DestinationBatchDefault,
		}
	}

	if repo.DestinationOverride != nil && *repo.DestinationOverride != "" {
		override := parseDestination(*repo.DestinationOverride)
		if batchDefault != nil && override.Org == batchDefault.Org && override.Name == batchDefault.Name {
			return *batchDefault
		}
		override.Kind = DestinationCustom
		return override
	}

	if batchDefault != nil {
		return *batchDefault
	}

	return Destination{
		Org:  repo.GetOrganization(),
		Name: repo.GetRepoName(),
		Kind: DestinationSourceName,
	}
}

// destinationName computes the default destination repository name. ADO
// repositories are project-scoped, so the project joins the name to keep it
// unique inside one destination org.
func destinationName(repo *models.Repository) string {
	if !repo.IsADOSource() {
		return repo.GetRepoName()
	}
	if project := adoProject(repo); project != "" {
		return project + "-" + repo.GetRepoName()
	}
	return repo.GetRepoName()
}

// adoProject finds the project for an ADO repository: the recorded component
// row first, then the source URL, then the org/project/repo full name.
func adoProject(repo *models.Repository) string {
	if repo.ADOProperties != nil && repo.ADOProperties.Project != "" {
		return repo.ADOProperties.Project
	}
	if parsed := ado.ParseRepoURL(repo.SourceURL); parsed != nil {
		return parsed.Project
	}
	parts := strings.Split(repo.FullName, "/")
	if len(parts) == 3 {
		return parts[1]
	}
	return ""
}

func parseDestination(s string) Destination {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return Destination{Name: s}
	}
	return Destination{Org: s[:idx], Name: s[idx+1:]}
}
