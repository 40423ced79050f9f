package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHostedRunnerName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"GitHub Actions 12", true},
		{"ubuntu-github-hosted-large", true},
		{"Hosted Agent 3", true},
		{"build-box-01", false},
		{"selfhosted-gpu", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isHostedRunnerName(tt.name))
		})
	}
}

func TestInjectToken(t *testing.T) {
	assert.Equal(t,
		"https://ghp_tok@github.example.com/acme/widgets.wiki.git",
		injectToken("https://github.example.com/acme/widgets.wiki.git", "ghp_tok"))

	// No token leaves the URL untouched.
	url := "https://github.com/acme/widgets.wiki.git"
	assert.Equal(t, url, injectToken(url, ""))

	// Non-http schemes pass through.
	assert.Equal(t, "ssh://host/repo", injectToken("ssh://host/repo", "tok"))
}

func TestSetCacheFallback(t *testing.T) {
	p := &Profiler{cacheFallback: CacheFallbackDirect}

	p.SetCacheFallback(CacheFallbackAbsent)
	assert.Equal(t, CacheFallbackAbsent, p.cacheFallback)

	// Unknown modes are ignored.
	p.SetCacheFallback("guess")
	assert.Equal(t, CacheFallbackAbsent, p.cacheFallback)
}
