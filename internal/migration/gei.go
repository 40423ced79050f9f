package migration

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shurcooL/githubv4"

	"github.com/kuhlman-labs/migration-planner/internal/github"
)

// migrationSourceTypeADO is not exposed as a typed constant by githubv4, so
// the raw enum value is used directly.
const migrationSourceTypeADO = githubv4.MigrationSourceType("AZURE_DEVOPS")

// startMigrationInput carries everything needed to start one repository
// import on the destination.
type startMigrationInput struct {
	SourceID            string
	OwnerID             string
	SourceRepositoryURL string
	RepositoryName      string
	TargetVisibility    string
	SkipReleases        bool
	SourceToken         string
	DestToken           string
}

// migrationState is a snapshot of one in-flight migration on the destination.
type migrationState struct {
	State         string
	FailureReason string
}

// Destination migration states reported by the GraphQL API.
const (
	stateQueued            = "QUEUED"
	statePendingValidation = "PENDING_VALIDATION"
	stateInProgress        = "IN_PROGRESS"
	stateSucceeded         = "SUCCEEDED"
	stateFailed            = "FAILED"
	stateFailedValidation  = "FAILED_VALIDATION"
)

// migrationAPI is the destination surface the executor drives. It is an
// interface so tests can substitute a scripted implementation.
type migrationAPI interface {
	OrganizationID(ctx context.Context, org string) (string, error)
	CreateMigrationSource(ctx context.Context, ownerID, sourceURL string, ado bool) (string, error)
	StartMigration(ctx context.Context, input startMigrationInput) (string, error)
	MigrationState(ctx context.Context, migrationID string) (*migrationState, error)
	RepositoryExists(ctx context.Context, org, name string) (bool, error)
}

// geiClient implements migrationAPI against a destination github.Client.
type geiClient struct {
	dest *github.Client
}

func newGEIClient(dest *github.Client) *geiClient {
	return &geiClient{dest: dest}
}

func (g *geiClient) OrganizationID(ctx context.Context, org string) (string, error) {
	var query struct {
		Organization struct {
			ID string
		} `graphql:"organization(login: $login)"`
	}
	variables := map[string]any{
		"login": githubv4.String(org),
	}
	if err := g.dest.QueryWithRetry(ctx, "GetOrganizationID", &query, variables); err != nil {
		return "", fmt.Errorf("failed to fetch organization ID for %s: %w", org, err)
	}
	return query.Organization.ID, nil
}

func (g *geiClient) CreateMigrationSource(ctx context.Context, ownerID, sourceURL string, ado bool) (string, error) {
	var mutation struct {
		CreateMigrationSource struct {
			MigrationSource struct {
				ID   githubv4.String
				Name githubv4.String
			}
		} `graphql:"createMigrationSource(input: $input)"`
	}

	sourceType := githubv4.MigrationSourceTypeGitHubArchive
	if ado {
		sourceType = migrationSourceTypeADO
	}

	urlPtr := githubv4.String(sourceURL)
	input := githubv4.CreateMigrationSourceInput{
		Name:    githubv4.String(fmt.Sprintf("Migration from %s", sourceURL)),
		URL:     &urlPtr,
		OwnerID: githubv4.ID(ownerID),
		Type:    sourceType,
	}

	if err := g.dest.MutateWithRetry(ctx, "CreateMigrationSource", &mutation, input, nil); err != nil {
		return "", fmt.Errorf("failed to create migration source: %w", err)
	}
	return string(mutation.CreateMigrationSource.MigrationSource.ID), nil
}

func (g *geiClient) StartMigration(ctx context.Context, in startMigrationInput) (string, error) {
	var mutation struct {
		StartRepositoryMigration struct {
			RepositoryMigration struct {
				ID    githubv4.String
				State githubv4.String
			}
		} `graphql:"startRepositoryMigration(input: $input)"`
	}

	parsedURL, err := url.Parse(in.SourceRepositoryURL)
	if err != nil {
		return "", fmt.Errorf("invalid source repository URL: %w", err)
	}

	continueOnError := githubv4.Boolean(true)
	targetVisibility := githubv4.String(in.TargetVisibility)
	sourceToken := githubv4.String(in.SourceToken)
	destToken := githubv4.String(in.DestToken)

	input := githubv4.StartRepositoryMigrationInput{
		SourceID:             githubv4.ID(in.SourceID),
		OwnerID:              githubv4.ID(in.OwnerID),
		RepositoryName:       githubv4.String(in.RepositoryName),
		ContinueOnError:      &continueOnError,
		TargetRepoVisibility: &targetVisibility,
		SourceRepositoryURL:  githubv4.URI{URL: parsedURL},
		AccessToken:          &sourceToken,
		GitHubPat:            &destToken,
	}
	if in.SkipReleases {
		skipReleases := githubv4.Boolean(true)
		input.SkipReleases = &skipReleases
	}

	if err := g.dest.MutateWithRetry(ctx, "StartRepositoryMigration", &mutation, input, nil); err != nil {
		return "", fmt.Errorf("failed to start migration: %w", err)
	}
	return string(mutation.StartRepositoryMigration.RepositoryMigration.ID), nil
}

func (g *geiClient) MigrationState(ctx context.Context, migrationID string) (*migrationState, error) {
	var query struct {
		Node struct {
			Migration struct {
				ID            githubv4.String
				State         githubv4.String
				FailureReason githubv4.String
			} `graphql:"... on Migration"`
		} `graphql:"node(id: $id)"`
	}
	variables := map[string]any{
		"id": githubv4.ID(migrationID),
	}
	if err := g.dest.QueryWithRetry(ctx, "GetMigrationStatus", &query, variables); err != nil {
		return nil, fmt.Errorf("failed to query migration status: %w", err)
	}
	return &migrationState{
		State:         string(query.Node.Migration.State),
		FailureReason: string(query.Node.Migration.FailureReason),
	}, nil
}

func (g *geiClient) RepositoryExists(ctx context.Context, org, name string) (bool, error) {
	_, err := g.dest.GetRepository(ctx, org, name)
	if err != nil {
		if github.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
