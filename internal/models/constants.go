package models

// Repository visibility values.
const (
	VisibilityPublic   = "public"
	VisibilityInternal = "internal"
	VisibilityPrivate  = "private"
)

// Source platform identifiers.
const (
	SourceGitHub      = "github"
	SourceGHES        = "ghes"
	SourceAzureDevOps = "azuredevops"
)

// Complexity tiers derived from the complexity score.
const (
	TierSimple      = "simple"
	TierMedium      = "medium"
	TierComplex     = "complex"
	TierVeryComplex = "very_complex"
)

// Tier boundaries (inclusive upper bounds).
const (
	TierSimpleMax  = 5
	TierMediumMax  = 10
	TierComplexMax = 17
)

// Repository size bands used by the complexity scorer, in bytes.
const (
	SizeSmallMax  = 100 * 1024 * 1024       // 100 MB
	SizeMediumMax = 1024 * 1024 * 1024      // 1 GB
	SizeLargeMax  = 5 * 1024 * 1024 * 1024  // 5 GB
	SizeHardLimit = 40 * 1024 * 1024 * 1024 // GitHub's hard repository limit
)

// Structural problem thresholds. Repositories crossing these get advisory
// warnings during discovery.
const (
	ProblemCommitSizeBytes   = 100 * 1024 * 1024
	ProblemBlobSizeBytes     = 50 * 1024 * 1024
	ProblemRepoSizeBytes     = 5 * 1024 * 1024 * 1024
	ProblemCommitCount       = 100_000
	ProblemTreeEntries       = 10_000
	ProblemCheckoutFileCount = 100_000
)

// Metadata export estimate assumptions.
const (
	EstimateBytesPerIssue = 50 * 1024
	EstimateBytesPerPR    = 100 * 1024
	EstimateBaseBytes     = 1024 * 1024
	ExportSizeCeiling     = 20 * 1024 * 1024 * 1024 // importer archive ceiling
)

// Batch migration API selectors.
const (
	MigrationAPIGEI = "gei"
)

// TierForScore maps a complexity score onto its tier.
func TierForScore(score int) string {
	switch {
	case score <= TierSimpleMax:
		return TierSimple
	case score <= TierMediumMax:
		return TierMedium
	case score <= TierComplexMax:
		return TierComplex
	default:
		return TierVeryComplex
	}
}
