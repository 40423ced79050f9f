package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrAuthenticationFailed indicates authentication to the source system failed.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrCloneFailed indicates the clone operation failed.
var ErrCloneFailed = errors.New("clone operation failed")

// ProviderType represents the kind of source control system.
type ProviderType string

const (
	// ProviderGitHub covers GitHub.com and GitHub Enterprise Server.
	ProviderGitHub ProviderType = "github"
	// ProviderAzureDevOps covers Azure DevOps Services.
	ProviderAzureDevOps ProviderType = "azuredevops"
)

// CloneOptions controls how a repository is cloned.
type CloneOptions struct {
	Shallow           bool
	Bare              bool
	IncludeLFS        bool
	IncludeSubmodules bool
}

// DefaultCloneOptions returns the options discovery uses. Analysis needs full
// history, but not LFS content or submodules.
func DefaultCloneOptions() CloneOptions {
	return CloneOptions{
		Shallow:           false,
		Bare:              false,
		IncludeLFS:        false,
		IncludeSubmodules: false,
	}
}

// RepositoryInfo carries what a provider needs to clone a repository.
type RepositoryInfo struct {
	FullName      string
	CloneURL      string
	DefaultBranch string
	IsPrivate     bool
}

// Provider abstracts the source control system for clone and credential
// operations.
type Provider interface {
	Type() ProviderType
	Name() string

	// CloneRepository clones a repository into destPath.
	CloneRepository(ctx context.Context, info RepositoryInfo, destPath string, opts CloneOptions) error

	// GetAuthenticatedCloneURL returns the clone URL with embedded credentials.
	GetAuthenticatedCloneURL(cloneURL string) (string, error)

	// ValidateCredentials verifies the provider's credentials work.
	ValidateCredentials(ctx context.Context) error
}

// ValidateCloneURL ensures a clone URL is well-formed and free of characters
// that could escape into a shell.
func ValidateCloneURL(cloneURL string) error {
	if cloneURL == "" {
		return fmt.Errorf("clone URL cannot be empty")
	}

	parsedURL, err := url.Parse(cloneURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	scheme := strings.ToLower(parsedURL.Scheme)
	if scheme != "https" && scheme != "http" && scheme != "ssh" && scheme != "git" {
		return fmt.Errorf("unsupported URL scheme: %s", scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	dangerousChars := []string{"\n", "\r", "\x00", "`", "$", ";", "|", "&", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(cloneURL, char) {
			return fmt.Errorf("URL contains potentially dangerous character")
		}
	}
	return nil
}

// ValidateDestPath ensures a destination path is safe to pass to git.
func ValidateDestPath(destPath string) error {
	if destPath == "" {
		return fmt.Errorf("destination path cannot be empty")
	}

	dangerousChars := []string{"\n", "\r", "\x00", "`", "$", ";", "|", "&", "<", ">"}
	for _, char := range dangerousChars {
		if strings.Contains(destPath, char) {
			return fmt.Errorf("path contains potentially dangerous character")
		}
	}

	if strings.HasPrefix(filepath.Clean(destPath), "..") {
		return fmt.Errorf("path cannot start with '..'")
	}
	return nil
}

// sanitizeGitError strips the credential out of git's stderr before it can
// land in a log line.
func sanitizeGitError(errMsg, token string) string {
	if token == "" {
		return errMsg
	}
	return strings.ReplaceAll(errMsg, token, "[REDACTED]")
}

// runGitClone performs the clone subprocess shared by all providers. The
// token is only used to scrub stderr.
func runGitClone(ctx context.Context, authURL, destPath, token string, opts CloneOptions) error {
	if err := ValidateDestPath(destPath); err != nil {
		return fmt.Errorf("invalid destination path: %w", err)
	}

	args := []string{"clone"}
	if opts.Shallow {
		args = append(args, "--depth=1")
	}
	if opts.Bare {
		args = append(args, "--bare")
	}
	if !opts.IncludeSubmodules {
		args = append(args, "--no-recurse-submodules")
	}
	args = append(args, authURL, destPath)

	// #nosec G204 -- arguments are validated above
	cmd := exec.CommandContext(ctx, "git", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Never let git ask for credentials interactively.
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", ErrCloneFailed, sanitizeGitError(stderr.String(), token))
	}

	if opts.IncludeLFS {
		if err := fetchLFSObjects(ctx, destPath); err != nil {
			return fmt.Errorf("failed to fetch LFS objects: %w", err)
		}
	}
	return nil
}

func fetchLFSObjects(ctx context.Context, repoPath string) error {
	if err := ValidateDestPath(repoPath); err != nil {
		return fmt.Errorf("invalid repository path: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "lfs", "fetch", "--all")
	cmd.Dir = repoPath
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git lfs fetch failed: %w (stderr: %s)", err, stderr.String())
	}
	return nil
}
