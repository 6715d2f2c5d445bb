package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/admin"
	"github.com/hyperjump/tasuke/internal/models"
	"github.com/hyperjump/tasuke/internal/storage"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request",
		zap.Int("query_len", len(req.Query)),
		zap.Int("top_k", req.TopK),
		zap.Int("top_results", req.TopResults),
		zap.String("namespace", req.Namespace),
	)
	resp, err := s.engine.Ask(r.Context(), req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNeeds(w http.ResponseWriter, r *http.Request) {
	var req models.NeedsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.respondJSON(w, http.StatusOK, s.engine.Needs(r.Context(), req.Story))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "namespace": s.config.Retrieval.Namespace})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{
		"resources":      stats.Total,
		"reviewed_count": stats.Reviewed,
		"dirty_count":    stats.Dirty,
	}
	if s.vectors != nil {
		resp["vector_index_size"] = s.vectors.Size()
	}
	configInfo := map[string]any{
		"namespace":            s.config.Retrieval.Namespace,
		"embedding_provider":   s.config.Embedding.Provider,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"llm_model":            s.config.LLM.Model,
		"llm_configured":       s.config.LLM.APIKey != "",
		"database_path":        s.config.Storage.DatabasePath,
		"bleve_index_path":     s.config.Storage.BleveIndexPath,
		"vector_index_path":    s.config.Storage.VectorIndexPath,
	}
	usage, err := storage.MeasureUsage(
		s.config.Storage.DatabasePath,
		s.config.Storage.BleveIndexPath,
		s.config.Storage.VectorIndexPath,
	)
	if err != nil {
		s.logger.Warn("measure disk usage", zap.Error(err))
	} else {
		resp["disk_usage_bytes"] = usage.Total()
		resp["disk_usage"] = usage
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.admin.Summary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleAdminRecord(w http.ResponseWriter, r *http.Request) {
	index := 0
	if v := r.URL.Query().Get("index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		index = n
	}
	rec, err := s.admin.Record(r.Context(), index)
	if errors.Is(err, admin.ErrEmpty) {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	var req admin.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.admin.Update(r.Context(), req)
	if errors.Is(err, admin.ErrMissingID) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("admin update failed", zap.String("id", req.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminSave(w http.ResponseWriter, r *http.Request) {
	res, err := s.admin.Save(r.Context())
	if err != nil {
		s.logger.Error("admin save failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAdminUpsert(w http.ResponseWriter, r *http.Request) {
	onlyDirty := true
	if v := r.URL.Query().Get("only_dirty"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "only_dirty must be a boolean")
			return
		}
		onlyDirty = b
	}
	res, err := s.admin.Upsert(r.Context(), onlyDirty)
	if err != nil {
		s.logger.Error("admin upsert failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
