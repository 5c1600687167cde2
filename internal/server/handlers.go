package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.ledger.CountPages(ctx)
	if err != nil {
		s.logger.Error("status: count pages failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"pages":   counts,
		"flagged": counts.Flagged,
	}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			resp["indexed_pages"] = n
		}
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"threshold":        cfg.Triage.ThresholdOrDefault(),
		"dpi":              cfg.EffectiveDPI(),
		"quality":          cfg.Raster.Quality,
		"color_mode":       cfg.Raster.ColorMode,
		"language":         cfg.OCR.Language,
		"psm":              cfg.OCR.PSM,
		"engine":           cfg.OCR.Engine,
		"correction":       cfg.Correction.Enabled,
		"database_path":    cfg.Storage.DatabasePath,
		"bleve_index_path": cfg.Storage.BleveIndexPath,
	}

	if usage, err := storage.OutputUsage(cfg.Output.Dirs()); err == nil {
		resp["disk_usage_bytes"] = usage
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	if dbBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
		resp["storage_bytes"] = dbBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, "run", err)
		return
	}
	s.respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	pages, err := s.ledger.ListFlagged(r.Context(), limit)
	if err != nil {
		s.logger.Error("list flagged failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pages == nil {
		pages = []*models.PageRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": s.config.Triage.ThresholdOrDefault(),
		"pages":     pages,
	})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, err := s.ledger.GetPage(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, "page", err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

type searchRequest struct {
	models.SearchQuery
	Fuzzy bool `json:"fuzzy,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.respondError(w, http.StatusNotImplemented, "search index not enabled")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))
	var opts *keyword.SearchOptions
	if req.Fuzzy {
		opts = &keyword.SearchOptions{FuzzyEnabled: true}
	}
	hits, err := s.index.Search(r.Context(), req.SearchQuery, opts)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hits == nil {
		hits = []*models.SearchHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query": req.Query,
		"total": len(hits),
		"hits":  hits,
	})
}

func (s *Server) handleWatchDirectories(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

func (s *Server) respondLookupError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("lookup failed", zap.String("kind", what), zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
