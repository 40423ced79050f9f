// Package api exposes the operator HTTP surface: repository lookups, batch
// lifecycle operations, and discovery triggers. It is a thin JSON layer over
// the services; authentication is left to whatever sits in front of it.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/discovery"
	"github.com/kuhlman-labs/migration-planner/internal/services"
	"github.com/kuhlman-labs/migration-planner/internal/storage"
)

// DiscoveryFunc runs one discovery pass over the configured source.
type DiscoveryFunc func(ctx context.Context) (*discovery.RunResult, error)

// Server routes operator requests to the services.
type Server struct {
	db       *storage.Database
	repoSvc  *services.RepositoryService
	batchSvc *services.BatchService
	discover DiscoveryFunc
	logger   *slog.Logger

	discovery discoveryTracker
}

// NewServer creates a Server. discover may be nil when no source is
// configured; the discovery endpoints then return 503.
func NewServer(db *storage.Database, repoSvc *services.RepositoryService, batchSvc *services.BatchService, discover DiscoveryFunc, logger *slog.Logger) *Server {
	return &Server{
		db:       db,
		repoSvc:  repoSvc,
		batchSvc: batchSvc,
		discover: discover,
		logger:   logger,
	}
}

// Router builds the HTTP handler with logging and panic recovery applied.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/repositories", s.handleListRepositories)
	mux.HandleFunc("GET /api/v1/repositories/{rest...}", s.handleRepositoryGet)
	mux.HandleFunc("POST /api/v1/repositories/{rest...}", s.handleRepositoryAction)

	mux.HandleFunc("GET /api/v1/batches", s.handleListBatches)
	mux.HandleFunc("POST /api/v1/batches", s.handleCreateBatch)
	mux.HandleFunc("GET /api/v1/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("DELETE /api/v1/batches/{id}", s.handleDeleteBatch)
	mux.HandleFunc("GET /api/v1/batches/{id}/stats", s.handleBatchStats)
	mux.HandleFunc("POST /api/v1/batches/{id}/repositories", s.handleAddBatchRepositories)
	mux.HandleFunc("DELETE /api/v1/batches/{id}/repositories", s.handleRemoveBatchRepositories)
	mux.HandleFunc("POST /api/v1/batches/{id}/dry-run", s.handleBatchDryRun)
	mux.HandleFunc("POST /api/v1/batches/{id}/start", s.handleBatchStart)
	mux.HandleFunc("POST /api/v1/batches/{id}/cancel", s.handleBatchCancel)

	mux.HandleFunc("POST /api/v1/discovery", s.handleDiscoveryStart)
	mux.HandleFunc("GET /api/v1/discovery", s.handleDiscoveryStatus)

	return s.withRecovery(s.withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
