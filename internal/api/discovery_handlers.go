package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/discovery"
)

// discoveryTracker remembers the state of the last discovery run so the
// status endpoint can report on a run that happens in the background.
type discoveryTracker struct {
	mu        sync.Mutex
	running   bool
	startedAt *time.Time
	result    *discovery.RunResult
	lastError string
}

func (t *discoveryTracker) start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return false
	}
	now := time.Now().UTC()
	t.running = true
	t.startedAt = &now
	t.result = nil
	t.lastError = ""
	return true
}

func (t *discoveryTracker) finish(result *discovery.RunResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.result = result
	if err != nil {
		t.lastError = err.Error()
	}
}

func (t *discoveryTracker) snapshot() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := map[string]any{"running": t.running}
	if t.startedAt != nil {
		out["started_at"] = t.startedAt
	}
	if t.result != nil {
		out["result"] = t.result
	}
	if t.lastError != "" {
		out["error"] = t.lastError
	}
	return out
}

func (s *Server) handleDiscoveryStart(w http.ResponseWriter, _ *http.Request) {
	if s.discover == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}
	if !s.discovery.start() {
		writeError(w, http.StatusConflict, "discovery is already running")
		return
	}

	go func() {
		result, err := s.discover(context.Background())
		if err != nil {
			s.logger.Error("Discovery run failed", "error", err)
		}
		s.discovery.finish(result, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleDiscoveryStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.discovery.snapshot())
}
