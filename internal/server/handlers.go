package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/queue"
	"github.com/hyperjump/kotae/internal/storage"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TenantID <= 0 {
		s.respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	answer := s.bot.Chat(r.Context(), req)
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "document not found")
		return
	}
	job := queue.Job{DocumentID: doc.ID, TenantID: doc.TenantID, Reason: queue.ReasonManual}
	if err := s.publisher.Publish(r.Context(), job); err != nil {
		s.logger.Error("queue document failed", zap.Int64("document_id", id), zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, "could not queue document")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{"id": doc.ID, "status": "queued"})
}

func (s *Server) handleIndexFaq(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	faq, err := s.storage.GetFaq(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "faq not found")
		return
	}
	if !faq.Published {
		removed := faq.PointID != ""
		if err := s.indexer.DeleteFaq(r.Context(), faq); err != nil {
			s.logger.Error("unindex unpublished faq failed", zap.Int64("faq_id", id), zap.Error(err))
			s.respondError(w, http.StatusBadGateway, "could not remove faq from index")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "skipped", "reason": "unpublished", "removed": removed})
		return
	}
	if !s.indexer.IndexFaq(r.Context(), faq) {
		s.respondError(w, http.StatusBadGateway, "indexing failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "indexed", "point_id": faq.PointID})
}

func (s *Server) handleUnindexFaq(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	faq, err := s.storage.GetFaq(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "faq not found")
		return
	}
	if err := s.indexer.DeleteFaq(r.Context(), faq); err != nil {
		s.logger.Error("unindex faq failed", zap.Int64("faq_id", id), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "could not remove faq from index")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "removed"})
}

func (s *Server) handleIndexPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	policy, err := s.storage.GetPolicy(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "policy not found")
		return
	}
	if !policy.Published {
		removed := policy.PointID != ""
		if err := s.indexer.DeletePolicy(r.Context(), policy); err != nil {
			s.logger.Error("unindex unpublished policy failed", zap.Int64("policy_id", id), zap.Error(err))
			s.respondError(w, http.StatusBadGateway, "could not remove policy from index")
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "skipped", "reason": "unpublished", "removed": removed})
		return
	}
	if !s.indexer.IndexPolicy(r.Context(), policy) {
		s.respondError(w, http.StatusBadGateway, "indexing failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "indexed", "point_id": policy.PointID})
}

func (s *Server) handleUnindexPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	policy, err := s.storage.GetPolicy(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, err, "policy not found")
		return
	}
	if err := s.indexer.DeletePolicy(r.Context(), policy); err != nil {
		s.logger.Error("unindex policy failed", zap.Int64("policy_id", id), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "could not remove policy from index")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": "removed"})
}

func (s *Server) handleReindexTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	report, err := s.indexer.ReindexAll(r.Context(), id)
	if err != nil {
		s.logger.Error("reindex failed", zap.Int64("tenant_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathID parses the {id} URL parameter, writing a 400 when it is not a positive integer.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) respondLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, notFound)
		return
	}
	s.logger.Error("storage lookup failed", zap.Error(err))
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
