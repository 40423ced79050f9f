package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kuhlman-labs/migration-planner/internal/models"
)

func (s *Server) batchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.db.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string     `json:"name"`
		Description        string     `json:"description"`
		DestinationOrg     string     `json:"destination_org"`
		Type               string     `json:"type"`
		ExcludeReleases    bool       `json:"exclude_releases"`
		ExcludeAttachments bool       `json:"exclude_attachments"`
		ScheduledAt        *time.Time `json:"scheduled_at"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b := &models.Batch{
		Name:               req.Name,
		Description:        req.Description,
		DestinationOrg:     req.DestinationOrg,
		Type:               req.Type,
		ExcludeReleases:    req.ExcludeReleases,
		ExcludeAttachments: req.ExcludeAttachments,
		ScheduledAt:        req.ScheduledAt,
	}
	if err := s.batchSvc.CreateBatch(r.Context(), b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	b, err := s.db.GetBatch(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	if err := s.batchSvc.DeleteBatch(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBatchStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	stats, err := s.batchSvc.GetBatchStats(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type batchMembersRequest struct {
	RepositoryIDs []int64 `json:"repository_ids"`
}

func (s *Server) handleAddBatchRepositories(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	var req batchMembersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.batchSvc.AddRepositories(r.Context(), id, req.RepositoryIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleRemoveBatchRepositories(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	var req batchMembersRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := s.batchSvc.RemoveRepositories(r.Context(), id, req.RepositoryIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleBatchDryRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	var req struct {
		OnlyPending bool `json:"only_pending"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	queued, err := s.batchSvc.StartDryRun(r.Context(), id, req.OnlyPending)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	var req struct {
		SkipDryRun bool `json:"skip_dry_run"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	b, err := s.batchSvc.StartBatch(r.Context(), id, req.SkipDryRun)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, b)
}

func (s *Server) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := s.batchID(w, r)
	if !ok {
		return
	}
	if err := s.batchSvc.CancelBatch(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	b, err := s.db.GetBatch(r.Context(), id)
	if err != nil || b == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(models.BatchStatusCancelled)})
		return
	}
	writeJSON(w, http.StatusOK, b)
}
