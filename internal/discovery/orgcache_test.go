package discovery

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// Organization acme publishes packages from repos a and b. After warming,
// profiling a sets has_packages true and profiling c sets it false.
func TestPackageCacheAttribution(t *testing.T) {
	caches := &OrgCaches{
		Org:      "acme",
		Packages: &PackageCache{repoNames: map[string]bool{"a": true, "b": true}},
	}

	p := &Profiler{
		logger:        slog.New(slog.DiscardHandler),
		cacheFallback: CacheFallbackAbsent,
	}

	feats := &models.RepositoryFeatures{}
	require.NoError(t, p.checkPackages(context.Background(), "acme", "a", caches, feats))
	assert.True(t, feats.HasPackages)

	feats = &models.RepositoryFeatures{}
	require.NoError(t, p.checkPackages(context.Background(), "acme", "c", caches, feats))
	assert.False(t, feats.HasPackages)
}

func TestPackageCheckAbsentFallback(t *testing.T) {
	p := &Profiler{
		logger:        slog.New(slog.DiscardHandler),
		cacheFallback: CacheFallbackAbsent,
	}

	// No warmed cache: absent mode reports no packages without any query.
	feats := &models.RepositoryFeatures{HasPackages: true}
	require.NoError(t, p.checkPackages(context.Background(), "acme", "a", nil, feats))
	assert.False(t, feats.HasPackages)
}

func TestInstallationCacheAppsForRepo(t *testing.T) {
	cache := &InstallationCache{
		installations: []appInstallation{
			{appSlug: "ci-bot", selection: "all"},
			{appSlug: "deploy-bot", selection: "selected", repos: map[string]bool{"acme/widgets": true}},
			{appSlug: "scoped-bot", selection: "selected", repos: map[string]bool{}},
		},
	}

	assert.Equal(t, []string{"ci-bot", "deploy-bot"}, cache.AppsForRepo("acme/widgets"))
	assert.Equal(t, []string{"ci-bot"}, cache.AppsForRepo("acme/other"))
}

func TestCheckInstalledApps(t *testing.T) {
	p := &Profiler{logger: slog.New(slog.DiscardHandler)}

	caches := &OrgCaches{
		Installations: &InstallationCache{
			installations: []appInstallation{
				{appSlug: "ci-bot", selection: "all"},
				{appSlug: "deploy-bot", selection: "selected", repos: map[string]bool{"acme/widgets": true}},
			},
		},
	}

	feats := &models.RepositoryFeatures{}
	require.NoError(t, p.checkInstalledApps("acme/widgets", caches, feats))
	assert.Equal(t, 2, feats.InstalledAppCount)
	assert.Equal(t, "ci-bot,deploy-bot", feats.InstalledAppNames)

	// No warmed cache leaves the fields at their absent defaults.
	feats = &models.RepositoryFeatures{}
	require.NoError(t, p.checkInstalledApps("acme/widgets", nil, feats))
	assert.Equal(t, 0, feats.InstalledAppCount)
}

func TestProjectsCache(t *testing.T) {
	cache := &ProjectsCache{
		linkedRepos: map[string]bool{"acme/widgets": true},
		count:       3,
	}
	assert.True(t, cache.HasProject("acme/widgets"))
	assert.False(t, cache.HasProject("acme/other"))
	assert.Equal(t, 3, cache.Count())
}
