package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-planner/internal/config"
	"github.com/kuhlman-labs/migration-planner/internal/discovery"
	"github.com/kuhlman-labs/migration-planner/internal/models"
	"github.com/kuhlman-labs/migration-planner/internal/services"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

func testDB(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(config.DatabaseConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestServer(t *testing.T, db *storage.Database, discover DiscoveryFunc) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return NewServer(db,
		services.NewRepositoryService(db, db, logger),
		services.NewBatchService(db, db, logger),
		discover,
		logger)
}

func seedRepo(t *testing.T, db *storage.Database, fullName string, status models.MigrationStatus) *models.Repository {
	t.Helper()
	repo := &models.Repository{
		FullName: fullName,
		Source:   models.SourceGitHub,
		Status:   status,
	}
	require.NoError(t, db.SaveRepository(context.Background(), repo))
	return repo
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = int64(buf.Len())
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	router := newTestServer(t, testDB(t), nil).Router()
	rec := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestSplitRepoPath(t *testing.T) {
	tests := []struct {
		rest, fullName, action string
	}{
		{"acme/widgets", "acme/widgets", ""},
		{"acme/widgets/history", "acme/widgets", "history"},
		{"acme/widgets/logs", "acme/widgets", "logs"},
		{"fabrikam/Platform/widgets", "fabrikam/Platform/widgets", ""},
		{"fabrikam/Platform/widgets/retry", "fabrikam/Platform/widgets", "retry"},
	}
	for _, tt := range tests {
		fullName, action := splitRepoPath(tt.rest)
		assert.Equal(t, tt.fullName, fullName, tt.rest)
		assert.Equal(t, tt.action, action, tt.rest)
	}
}

func TestListRepositoriesFilters(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()

	seedRepo(t, db, "acme/a", models.StatusPending)
	seedRepo(t, db, "acme/b", models.StatusComplete)

	rec := do(t, router, http.MethodGet, "/api/v1/repositories?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Repositories []models.Repository `json:"repositories"`
		Total        int                 `json:"total"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Repositories, 1)
	assert.Equal(t, "acme/a", resp.Repositories[0].FullName)
	assert.Equal(t, 1, resp.Total)
}

func TestGetRepositoryWithDestination(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()
	seedRepo(t, db, "acme/widgets", models.StatusPending)

	rec := do(t, router, http.MethodGet, "/api/v1/repositories/acme/widgets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Repository  models.Repository `json:"repository"`
		Destination struct {
			Org  string `json:"org"`
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"destination"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "acme/widgets", resp.Repository.FullName)
	assert.Equal(t, "acme", resp.Destination.Org)
	assert.Equal(t, "source", resp.Destination.Kind)

	rec = do(t, router, http.MethodGet, "/api/v1/repositories/acme/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRepositoryActions(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()
	seedRepo(t, db, "acme/widgets", models.StatusPending)

	rec := do(t, router, http.MethodPost, "/api/v1/repositories/acme/widgets/destination",
		map[string]any{"destination": "new-org/renamed"})
	require.Equal(t, http.StatusOK, rec.Code)

	var repo models.Repository
	decode(t, rec, &repo)
	require.NotNil(t, repo.DestinationOverride)
	assert.Equal(t, "new-org/renamed", *repo.DestinationOverride)

	rec = do(t, router, http.MethodPost, "/api/v1/repositories/acme/widgets/wont-migrate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/repositories/acme/widgets/reinstate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &repo)
	assert.Equal(t, models.StatusPending, repo.Status)

	rec = do(t, router, http.MethodPost, "/api/v1/repositories/acme/widgets/unknown-action", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryEndpoint(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()
	seedRepo(t, db, "acme/failed", models.StatusMigrationFailed)

	rec := do(t, router, http.MethodPost, "/api/v1/repositories/acme/failed/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var repo models.Repository
	decode(t, rec, &repo)
	assert.Equal(t, models.StatusQueuedForMigration, repo.Status)
}

func TestBatchLifecycleEndpoints(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()
	ctx := context.Background()

	rec := do(t, router, http.MethodPost, "/api/v1/batches", map[string]any{
		"name":            "wave-1",
		"destination_org": "new-org",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var b models.Batch
	decode(t, rec, &b)
	require.NotZero(t, b.ID)

	repo := seedRepo(t, db, "acme/widgets", models.StatusPending)
	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/batches/%d/repositories", b.ID),
		map[string]any{"repository_ids": []int64{repo.ID}})
	require.Equal(t, http.StatusOK, rec.Code)

	var addResp struct {
		Results []services.MemberResult `json:"results"`
	}
	decode(t, rec, &addResp)
	require.Len(t, addResp.Results, 1)
	assert.True(t, addResp.Results[0].OK)

	// Starting without a completed dry run is rejected.
	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/batches/%d/start", b.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, fmt.Sprintf("/api/v1/batches/%d/dry-run", b.ID), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var dryResp struct {
		Queued int `json:"queued"`
	}
	decode(t, rec, &dryResp)
	assert.Equal(t, 1, dryResp.Queued)

	got, err := db.GetRepository(ctx, "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDryRunQueued, got.Status)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/batches/%d/stats", b.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wave-1")
}

func TestDeleteBatchEndpoint(t *testing.T) {
	db := testDB(t)
	router := newTestServer(t, db, nil).Router()

	rec := do(t, router, http.MethodPost, "/api/v1/batches", map[string]any{"name": "wave-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var b models.Batch
	decode(t, rec, &b)

	rec = do(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/batches/%d", b.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/batches/%d", b.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscoveryEndpoints(t *testing.T) {
	db := testDB(t)

	// Without a configured source, discovery is unavailable.
	router := newTestServer(t, db, nil).Router()
	rec := do(t, router, http.MethodPost, "/api/v1/discovery", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	discover := func(context.Context) (*discovery.RunResult, error) {
		return &discovery.RunResult{RunID: "run-1", Total: 3, Succeeded: 3}, nil
	}
	router = newTestServer(t, db, discover).Router()

	rec = do(t, router, http.MethodPost, "/api/v1/discovery", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool {
		status := do(t, router, http.MethodGet, "/api/v1/discovery", nil)
		var resp struct {
			Running bool                 `json:"running"`
			Result  *discovery.RunResult `json:"result"`
		}
		decode(t, status, &resp)
		return !resp.Running && resp.Result != nil && resp.Result.RunID == "run-1"
	}, 2*time.Second, 10*time.Millisecond)
}
