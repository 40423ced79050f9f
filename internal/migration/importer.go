// Package migration executes repository migrations against the destination's
// GraphQL migration API and records every attempt in migration history.
//
// A dry run exercises the validation half of the pipeline without starting an
// import: it confirms the destination is resolvable and free, and that the
// repository is within size limits. A real run drives the repository through
// the full status progression and records the outcome.
package migration

import (
	"context"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// Importer runs a single repository migration or dry run. The batch may be
// nil for repositories migrated outside a batch.
type Importer interface {
	ExecuteMigration(ctx context.Context, repo *models.Repository, b *models.Batch, dryRun bool) error
}
