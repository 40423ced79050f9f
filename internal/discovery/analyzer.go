package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// LargeFileThreshold is the blob size above which a repository is considered
// to carry large files. GitHub rejects pushes of files over 100MB.
const LargeFileThreshold = 100 * 1024 * 1024

// Repository analysis strategy:
//  1. `git count-objects -vH` measures real on-disk size (loose + packed),
//     which includes overhead git-sizer's object sums miss.
//  2. `git-sizer --json` provides commit counts, largest objects, tree and
//     checkout extremes used for problem detection.

// Analyzer measures Git repository structure from a local clone.
type Analyzer struct {
	gitSizerPath string
	logger       *slog.Logger
}

// NewAnalyzer creates an analyzer. gitSizerPath may be a bare binary name
// resolved through PATH.
func NewAnalyzer(gitSizerPath string, logger *slog.Logger) *Analyzer {
	if gitSizerPath == "" {
		gitSizerPath = "git-sizer"
	}
	return &Analyzer{
		gitSizerPath: gitSizerPath,
		logger:       logger,
	}
}

// GitSizerMetric is a single metric in git-sizer JSON output (json-version=2).
type GitSizerMetric struct {
	Value             int64  `json:"value"`
	ObjectName        string `json:"objectName,omitempty"`
	ObjectDescription string `json:"objectDescription,omitempty"`
}

// GitSizerOutput is the subset of git-sizer --json --json-version=2 output the
// analyzer consumes.
type GitSizerOutput struct {
	UniqueCommitCount    GitSizerMetric `json:"uniqueCommitCount"`
	UniqueCommitSize     GitSizerMetric `json:"uniqueCommitSize"`
	UniqueTreeCount      GitSizerMetric `json:"uniqueTreeCount"`
	UniqueTreeSize       GitSizerMetric `json:"uniqueTreeSize"`
	UniqueBlobCount      GitSizerMetric `json:"uniqueBlobCount"`
	UniqueBlobSize       GitSizerMetric `json:"uniqueBlobSize"`
	UniqueTagCount       GitSizerMetric `json:"uniqueTagCount"`
	MaxCommitSize        GitSizerMetric `json:"maxCommitSize"`
	MaxTreeEntries       GitSizerMetric `json:"maxTreeEntries"`
	MaxBlobSize          GitSizerMetric `json:"maxBlobSize"`
	MaxHistoryDepth      GitSizerMetric `json:"maxHistoryDepth"`
	MaxCheckoutTreeCount GitSizerMetric `json:"maxCheckoutTreeCount"`
	MaxCheckoutBlobCount GitSizerMetric `json:"maxCheckoutBlobCount"`
	MaxCheckoutBlobSize  GitSizerMetric `json:"maxCheckoutBlobSize"`
}

// Analyze runs the statistics tool and disk probe against a local clone and
// returns a fully populated git-properties row. A git-sizer failure is fatal;
// a disk probe failure degrades to the statistics tool's object-size sum.
func (a *Analyzer) Analyze(ctx context.Context, repoPath string) (*models.RepositoryGitProperties, error) {
	a.logger.Debug("Analyzing repository structure", "path", repoPath)

	output, err := a.runGitSizer(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("git-sizer failed: %w", err)
	}

	props := &models.RepositoryGitProperties{
		CommitCount:       output.UniqueCommitCount.Value,
		LargestCommitSize: output.MaxCommitSize.Value,
		LargestBlobSize:   output.MaxBlobSize.Value,
		MaxTreeEntries:    output.MaxTreeEntries.Value,
		CheckoutFileCount: output.MaxCheckoutBlobCount.Value,
		AnalyzedAt:        time.Now(),
	}

	diskSize, err := a.probeDiskUsage(ctx, repoPath)
	if err != nil {
		// The object-size sum understates real storage (no pack overhead)
		// but keeps total_size populated when count-objects fails.
		props.SizeBytes = fallbackObjectSize(output)
		a.logger.Warn("Disk probe failed, using git-sizer object sum",
			"path", repoPath,
			"fallback_bytes", props.SizeBytes,
			"error", err)
	} else {
		props.SizeBytes = diskSize
	}

	if output.MaxCommitSize.ObjectName != "" {
		props.LargestCommitSHA = extractCommitSHA(output.MaxCommitSize.ObjectName)
	}
	if name, ok := parseBlobDescriptor(output.MaxBlobSize.ObjectDescription); ok {
		props.LargestBlobName = name
	}

	props.HasLFS = a.detectLFS(ctx, repoPath)
	props.HasSubmodules = a.detectSubmodules(ctx, repoPath)
	props.BranchCount = a.countBranches(ctx, repoPath)
	props.TagCount = a.countTags(ctx, repoPath)
	props.DefaultBranch = a.defaultBranch(ctx, repoPath)

	a.logger.Info("Repository analysis complete",
		"path", repoPath,
		"size_bytes", props.SizeBytes,
		"commits", props.CommitCount,
		"branches", props.BranchCount,
		"largest_blob", props.LargestBlobName,
		"largest_blob_size", props.LargestBlobSize,
		"has_lfs", props.HasLFS,
		"has_submodules", props.HasSubmodules)

	return props, nil
}

// runGitSizer executes the statistics tool and parses its JSON output.
func (a *Analyzer) runGitSizer(ctx context.Context, repoPath string) (*GitSizerOutput, error) {
	// #nosec G204 -- binary path comes from validated configuration
	cmd := exec.CommandContext(ctx, a.gitSizerPath, "--json", "--json-version=2")
	cmd.Dir = repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git-sizer execution failed: %w (stderr: %s)", err, stderr.String())
	}

	var output GitSizerOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, fmt.Errorf("failed to parse git-sizer output: %w", err)
	}
	return &output, nil
}

// probeDiskUsage returns the repository's object store size via
// git count-objects -vH (loose objects plus packfiles).
func (a *Analyzer) probeDiskUsage(ctx context.Context, repoPath string) (int64, error) {
	cmd := exec.CommandContext(ctx, "git", "count-objects", "-vH")
	cmd.Dir = repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("git count-objects failed: %w (stderr: %s)", err, stderr.String())
	}

	counts, err := parseCountObjects(stdout.String())
	if err != nil {
		return 0, fmt.Errorf("failed to parse git count-objects output: %w", err)
	}
	return counts.Size + counts.SizePack, nil
}

// fallbackObjectSize sums the statistics tool's unique object sizes. Used
// when the disk probe fails.
func fallbackObjectSize(output *GitSizerOutput) int64 {
	return output.UniqueBlobSize.Value + output.UniqueTreeSize.Value + output.UniqueCommitSize.Value
}

// countObjectsOutput is the parsed output of git count-objects -vH.
type countObjectsOutput struct {
	Count    int64
	Size     int64
	InPack   int64
	Packs    int64
	SizePack int64
}

// parseCountObjects parses output like:
//
//	count: 391
//	size: 1.84 MiB
//	in-pack: 4
//	packs: 1
//	size-pack: 2.44 KiB
func parseCountObjects(output string) (*countObjectsOutput, error) {
	result := &countObjectsOutput{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "count":
			result.Count, _ = parseInteger(value)
		case "size":
			result.Size, _ = parseHumanSize(value)
		case "in-pack":
			result.InPack, _ = parseInteger(value)
		case "packs":
			result.Packs, _ = parseInteger(value)
		case "size-pack":
			result.SizePack, _ = parseHumanSize(value)
		}
	}
	return result, nil
}

func parseInteger(value string) (int64, error) {
	var result int64
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil {
		return 0, err
	}
	return result, nil
}

// parseHumanSize converts git's human-readable sizes ("1.84 MiB", "2.44 KiB",
// "0 bytes") to bytes.
func parseHumanSize(value string) (int64, error) {
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty size value")
	}
	if len(parts) == 1 || parts[1] == "bytes" || parts[1] == "byte" {
		return parseInteger(parts[0])
	}

	var numValue float64
	if _, err := fmt.Sscanf(parts[0], "%f", &numValue); err != nil {
		return 0, fmt.Errorf("failed to parse size number: %w", err)
	}

	var multiplier int64
	switch strings.ToLower(parts[1]) {
	case "kib":
		multiplier = 1024
	case "mib":
		multiplier = 1024 * 1024
	case "gib":
		multiplier = 1024 * 1024 * 1024
	case "tib":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size unit: %s", parts[1])
	}
	return int64(numValue * float64(multiplier)), nil
}

// extractCommitSHA trims a git-sizer commit descriptor down to the SHA.
// Input looks like "f7a25d8bede5..." or "f7a25d8... (refs/heads/main)".
func extractCommitSHA(commitInfo string) string {
	if idx := strings.Index(commitInfo, " "); idx > 0 {
		commitInfo = commitInfo[:idx]
	}
	if len(commitInfo) > 40 {
		return commitInfo[:40]
	}
	return commitInfo
}

// parseBlobDescriptor recovers the filename from a git-sizer blob descriptor
// shaped like "319b802f... (9ae8b638...:IMPLEMENTATION_GUIDE.md)". The format
// is not contractually guaranteed, so malformed input yields ok=false rather
// than a mangled name.
func parseBlobDescriptor(blobInfo string) (string, bool) {
	open := strings.Index(blobInfo, "(")
	if open < 0 {
		return "", false
	}
	inner := blobInfo[open+1:]
	if end := strings.Index(inner, ")"); end >= 0 {
		inner = inner[:end]
	}
	colon := strings.Index(inner, ":")
	if colon < 0 {
		return "", false
	}
	name := inner[colon+1:]
	if name == "" {
		return "", false
	}
	return name, true
}

// detectLFS checks for Git LFS usage. Either signal alone is sufficient:
// a .gitattributes LFS filter marker, or non-blank git lfs ls-files output.
func (a *Analyzer) detectLFS(ctx context.Context, repoPath string) bool {
	// #nosec G304 -- repoPath is a controlled temporary directory
	if data, err := os.ReadFile(filepath.Join(repoPath, ".gitattributes")); err == nil {
		if strings.Contains(string(data), "filter=lfs") {
			a.logger.Debug("LFS detected via .gitattributes", "repo_path", repoPath)
			return true
		}
	}

	cmd := exec.CommandContext(ctx, "git", "lfs", "ls-files")
	cmd.Dir = repoPath
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
	if output, err := cmd.Output(); err == nil && len(bytes.TrimSpace(output)) > 0 {
		a.logger.Debug("LFS detected via git lfs ls-files", "repo_path", repoPath)
		return true
	}
	return false
}

// detectSubmodules checks for submodules via the .gitmodules file or
// non-blank git submodule status output.
func (a *Analyzer) detectSubmodules(ctx context.Context, repoPath string) bool {
	if _, err := os.Stat(filepath.Join(repoPath, ".gitmodules")); err == nil {
		a.logger.Debug("Submodules detected via .gitmodules", "repo_path", repoPath)
		return true
	}

	cmd := exec.CommandContext(ctx, "git", "submodule", "status")
	cmd.Dir = repoPath
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
	if output, err := cmd.Output(); err == nil && len(bytes.TrimSpace(output)) > 0 {
		a.logger.Debug("Submodules detected via git submodule", "repo_path", repoPath)
		return true
	}
	return false
}

// countBranches counts remote branches, one per non-blank line.
func (a *Analyzer) countBranches(ctx context.Context, repoPath string) int {
	return a.countCommandLines(ctx, repoPath, "branch count", "branch", "-r")
}

// countTags counts tags, one per non-blank line.
func (a *Analyzer) countTags(ctx context.Context, repoPath string) int {
	return a.countCommandLines(ctx, repoPath, "tag count", "tag", "--list")
}

func (a *Analyzer) countCommandLines(ctx context.Context, repoPath, what string, args ...string) int {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath

	output, err := cmd.Output()
	if err != nil {
		a.logger.Warn("Failed to get "+what, "repo_path", repoPath, "error", err)
		return 0
	}
	return countNonBlankLines(output)
}

func countNonBlankLines(output []byte) int {
	count := 0
	for _, line := range bytes.Split(output, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
	}
	return count
}

func (a *Analyzer) defaultBranch(ctx context.Context, repoPath string) string {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = repoPath

	output, err := cmd.Output()
	if err != nil {
		a.logger.Debug("Failed to resolve default branch", "repo_path", repoPath, "error", err)
		return ""
	}
	return strings.TrimSpace(string(output))
}

// CheckRepositoryProblems classifies a completed analysis against fixed
// structural thresholds. Warnings inform risk triage, they never block
// migration.
func CheckRepositoryProblems(props *models.RepositoryGitProperties) []string {
	var problems []string

	if props.LargestCommitSize > models.ProblemCommitSizeBytes {
		problems = append(problems,
			fmt.Sprintf("Commit exceeds GitHub limit: %d MB (limit: 100 MB)", props.LargestCommitSize/(1024*1024)))
	}
	if props.LargestBlobSize > models.ProblemBlobSizeBytes {
		problems = append(problems,
			fmt.Sprintf("Very large file detected: %d MB", props.LargestBlobSize/(1024*1024)))
	}
	if props.SizeBytes > models.ProblemRepoSizeBytes {
		problems = append(problems,
			fmt.Sprintf("Very large repository: %d GB", props.SizeBytes/(1024*1024*1024)))
	}
	if props.CommitCount > models.ProblemCommitCount {
		problems = append(problems,
			fmt.Sprintf("Very deep history: %d commits", props.CommitCount))
	}
	if props.MaxTreeEntries > models.ProblemTreeEntries {
		problems = append(problems,
			fmt.Sprintf("Very large directory: %d entries", props.MaxTreeEntries))
	}
	if props.CheckoutFileCount > models.ProblemCheckoutFileCount {
		problems = append(problems,
			fmt.Sprintf("Very large checkout: %d files", props.CheckoutFileCount))
	}
	return problems
}
