package ado

import (
	"regexp"
	"strings"
)

// RepoURL is the org/project/repo triple extracted from an Azure DevOps
// Git URL.
type RepoURL struct {
	Organization string
	Project      string
	Repository   string
}

var (
	// https://dev.azure.com/{org}/{project}/_git/{repo}, with optional
	// user@ credential segment.
	devAzurePattern = regexp.MustCompile(`(?:https://)?(?:[^@/]+@)?dev\.azure\.com/([^/]+)/([^/]+)/_git/([^/"'\s]+)`)

	// Legacy https://{org}.visualstudio.com/{project}/_git/{repo}.
	visualStudioPattern = regexp.MustCompile(`https://([^.]+)\.visualstudio\.com/([^/]+)/_git/([^/"'\s]+)`)

	// git@ssh.dev.azure.com:v3/{org}/{project}/{repo}.
	sshPattern = regexp.MustCompile(`git@ssh\.dev\.azure\.com:v3/([^/]+)/([^/]+)/([^/"'\s]+)`)
)

// IsADOURL reports whether a Git URL points at Azure DevOps.
func IsADOURL(gitURL string) bool {
	return strings.Contains(gitURL, "dev.azure.com") ||
		strings.Contains(gitURL, "visualstudio.com")
}

// ParseRepoURL extracts the org/project/repo triple from an Azure DevOps Git
// URL. It understands dev.azure.com HTTPS URLs (with or without an embedded
// credential), legacy visualstudio.com URLs, and v3 SSH URLs. Returns nil
// when the URL is not a recognizable ADO repository URL.
func ParseRepoURL(gitURL string) *RepoURL {
	for _, pattern := range []*regexp.Regexp{devAzurePattern, visualStudioPattern, sshPattern} {
		if m := pattern.FindStringSubmatch(gitURL); len(m) == 4 {
			return &RepoURL{
				Organization: m[1],
				Project:      m[2],
				Repository:   strings.TrimSuffix(m[3], ".git"),
			}
		}
	}
	return nil
}

// FullName returns the repository identity used by the planner:
// org/project/repo.
func (u *RepoURL) FullName() string {
	return u.Organization + "/" + u.Project + "/" + u.Repository
}
