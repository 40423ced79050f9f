package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScanWorkflowDependencies reads .github/workflows in a cloned working tree
// and returns the owner/repo references its workflows pull in from other
// repositories: shared actions and reusable workflows. References to the
// repository itself, local actions, and docker images are skipped. A missing
// workflows directory or an unparsable file is not an error.
func ScanWorkflowDependencies(repoPath, selfFullName string, logger *slog.Logger) []string {
	workflowsDir := filepath.Join(repoPath, ".github", "workflows")
	files, err := os.ReadDir(workflowsDir)
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ext := filepath.Ext(file.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		content, err := os.ReadFile(filepath.Join(workflowsDir, file.Name()))
		if err != nil {
			logger.Warn("Failed to read workflow file", "file", file.Name(), "error", err)
			continue
		}

		var workflow map[string]any
		if err := yaml.Unmarshal(content, &workflow); err != nil {
			logger.Warn("Failed to parse workflow file", "file", file.Name(), "error", err)
			continue
		}

		jobs, ok := workflow["jobs"].(map[string]any)
		if !ok {
			continue
		}
		for _, ref := range referencedRepos(jobs) {
			if !strings.EqualFold(ref, selfFullName) {
				seen[ref] = true
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	refs := make([]string, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// referencedRepos collects owner/repo references from job-level reusable
// workflows and step-level action uses.
func referencedRepos(jobs map[string]any) []string {
	var refs []string
	for _, job := range jobs {
		jobMap, ok := job.(map[string]any)
		if !ok {
			continue
		}

		if uses, ok := jobMap["uses"].(string); ok {
			if ref := parseUsesRepo(uses); ref != "" {
				refs = append(refs, ref)
			}
		}

		steps, ok := jobMap["steps"].([]any)
		if !ok {
			continue
		}
		for _, step := range steps {
			stepMap, ok := step.(map[string]any)
			if !ok {
				continue
			}
			if uses, ok := stepMap["uses"].(string); ok {
				if ref := parseUsesRepo(uses); ref != "" {
					refs = append(refs, ref)
				}
			}
		}
	}
	return refs
}

// parseUsesRepo extracts owner/repo from a uses string such as
// "owner/repo@v1" or "owner/repo/.github/workflows/ci.yml@main". Local
// actions and docker references return "".
func parseUsesRepo(uses string) string {
	if !strings.Contains(uses, "/") ||
		strings.HasPrefix(uses, "docker://") ||
		strings.HasPrefix(uses, "./") {
		return ""
	}

	parts := strings.SplitN(uses, "@", 2)
	if len(parts) != 2 {
		return ""
	}

	pathParts := strings.SplitN(parts[0], "/", 3)
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] == "" {
		return ""
	}
	return pathParts[0] + "/" + pathParts[1]
}
