package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCodeowner(t *testing.T) {
	tests := []struct {
		token string
		want  ownerClass
	}{
		{"@acme/platform-team", ownerTeam},
		{"@acme/infra/nested", ownerTeam},
		{"@octocat", ownerUser},
		{"dev@example.com", ownerUser},
		{"*.go", ownerIgnored},
		{"docs/", ownerIgnored},
		{"plainword", ownerIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyCodeowner(tt.token))
		})
	}
}

func TestParseCodeowners(t *testing.T) {
	content := `# Global owners
*           @acme/platform-team @octocat
*.go        @gopher dev@example.com
docs/       @acme/docs-team   # inline comment @ghost

# trailing comment line
`
	teams, users := parseCodeowners(content)
	assert.Equal(t, []string{"@acme/docs-team", "@acme/platform-team"}, teams)
	assert.Equal(t, []string{"@gopher", "@octocat", "dev@example.com"}, users)
}

func TestParseCodeownersInlineCommentStopsLine(t *testing.T) {
	teams, users := parseCodeowners("* @octocat # @acme/hidden-team\n")
	assert.Empty(t, teams)
	assert.Equal(t, []string{"@octocat"}, users)
}

func TestParseCodeownersEmpty(t *testing.T) {
	teams, users := parseCodeowners("")
	assert.Empty(t, teams)
	assert.Empty(t, users)
}

// Round-tripping through serialize and parse preserves the owner sets.
func TestCodeownersRoundTrip(t *testing.T) {
	teams := []string{"@acme/docs-team", "@acme/platform-team"}
	users := []string{"@gopher", "@octocat", "ops@example.com"}

	serialized := serializeCodeowners(teams, users)
	gotTeams, gotUsers := parseCodeowners(serialized)

	assert.Equal(t, teams, gotTeams)
	assert.Equal(t, users, gotUsers)
}

func TestSerializeCodeownersEmpty(t *testing.T) {
	assert.Equal(t, "", serializeCodeowners(nil, nil))
}
