package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kuhlman-labs/migration-planner/internal/batch"
	"github.com/kuhlman-labs/migration-planner/internal/models"
)

// repoActions are the sub-resources that can follow a repository full name
// in the path. Full names contain slashes (two segments for GitHub, three
// for Azure DevOps), so routing is by suffix.
var repoActions = []string{"history", "logs", "destination", "wont-migrate", "reinstate", "retry"}

// splitRepoPath separates "org/repo/action" into the full name and the
// trailing action, if the last segment is a known action.
func splitRepoPath(rest string) (fullName, action string) {
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return rest, ""
	}
	last := rest[idx+1:]
	for _, a := range repoActions {
		if last == a {
			return rest[:idx], last
		}
	}
	return rest, ""
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	filters := map[string]any{}
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		if strings.Contains(v, ",") {
			filters["status"] = strings.Split(v, ",")
		} else {
			filters["status"] = v
		}
	}
	if v := q.Get("batch_id"); v != "" {
		if v == "none" {
			filters["batch_id"] = "none"
		} else if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters["batch_id"] = id
		} else {
			writeError(w, http.StatusBadRequest, "invalid batch_id")
			return
		}
	}
	for _, key := range []string{"source", "organization", "complexity_tier"} {
		if v := q.Get(key); v != "" {
			filters[key] = v
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters["limit"] = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filters["offset"] = n
		}
	}

	repos, total, err := s.repoSvc.ListRepositories(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repositories": repos,
		"total":        total,
	})
}

func (s *Server) handleRepositoryGet(w http.ResponseWriter, r *http.Request) {
	fullName, action := splitRepoPath(r.PathValue("rest"))

	switch action {
	case "history":
		history, err := s.repoSvc.GetHistory(r.Context(), fullName)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})

	case "logs":
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))
		logs, err := s.repoSvc.GetLogs(r.Context(), fullName, q.Get("level"), q.Get("phase"), limit, offset)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs})

	case "":
		repo, err := s.repoSvc.GetRepository(r.Context(), fullName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if repo == nil {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"repository":  repo,
			"destination": s.resolveDestination(r, repo),
		})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// resolveDestination reports where the repository would migrate today, using
// its batch's destination org when it has one.
func (s *Server) resolveDestination(r *http.Request, repo *models.Repository) batch.Destination {
	var b *models.Batch
	if repo.BatchID != nil {
		fetched, err := s.db.GetBatch(r.Context(), *repo.BatchID)
		if err == nil {
			b = fetched
		}
	}
	return batch.ResolveDestination(repo, b)
}

func (s *Server) handleRepositoryAction(w http.ResponseWriter, r *http.Request) {
	fullName, action := splitRepoPath(r.PathValue("rest"))
	ctx := r.Context()

	switch action {
	case "destination":
		var req struct {
			Destination *string `json:"destination"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		repo, err := s.repoSvc.SetDestinationOverride(ctx, fullName, req.Destination)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, repo)

	case "wont-migrate":
		repo, err := s.repoSvc.MarkWontMigrate(ctx, fullName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, repo)

	case "reinstate":
		repo, err := s.repoSvc.Reinstate(ctx, fullName)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, repo)

	case "retry":
		repo, err := s.repoSvc.GetRepository(ctx, fullName)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if repo == nil {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		retried, err := s.batchSvc.RetryRepository(ctx, repo.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, retried)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}
