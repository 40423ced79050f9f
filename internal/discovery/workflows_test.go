package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkflow(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, ".github", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScanWorkflowDependencies(t *testing.T) {
	root := t.TempDir()
	logger := slog.New(slog.DiscardHandler)

	writeWorkflow(t, root, "ci.yml", `
name: CI
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - uses: actions/setup-go@v5
      - uses: ./local-action
      - uses: docker://alpine:3.20
      - run: go test ./...
  release:
    uses: acme/shared-workflows/.github/workflows/release.yml@main
`)
	writeWorkflow(t, root, "self.yaml", `
jobs:
  lint:
    steps:
      - uses: acme/widgets/.github/actions/lint@v1
`)
	writeWorkflow(t, root, "notes.txt", "not a workflow")

	refs := ScanWorkflowDependencies(root, "acme/widgets", logger)
	assert.Equal(t, []string{"acme/shared-workflows", "actions/checkout", "actions/setup-go"}, refs)
}

func TestScanWorkflowDependenciesMissingDir(t *testing.T) {
	refs := ScanWorkflowDependencies(t.TempDir(), "acme/widgets", slog.New(slog.DiscardHandler))
	assert.Nil(t, refs)
}

func TestParseUsesRepo(t *testing.T) {
	tests := []struct {
		uses string
		want string
	}{
		{"actions/checkout@v4", "actions/checkout"},
		{"acme/shared-workflows/.github/workflows/ci.yml@main", "acme/shared-workflows"},
		{"docker://alpine:3.20", ""},
		{"./local-action", ""},
		{"no-at-reference/action", ""},
		{"plain", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseUsesRepo(tt.uses), tt.uses)
	}
}
