package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/ingest"
	"github.com/JakeFAU/guidecrawler/internal/logging"
	"github.com/JakeFAU/guidecrawler/internal/retrieval"
	"github.com/JakeFAU/guidecrawler/internal/storage"
	"github.com/JakeFAU/guidecrawler/internal/urlnorm"
)

const (
	maxBodyBytes   = 1 << 20
	enqueueTimeout = 5 * time.Second
)

// Messages returned by POST /v1/ingest.
const (
	MessageNoChanges = "no changes"
	MessageProcessed = "document processed"
)

type ingestRequest struct {
	URL string `json:"url"`
}

type ingestResponse struct {
	ingest.Result
	Message string `json:"message"`
}

type rebuildRequest struct {
	BaseURL  string `json:"base_url"`
	MaxPages *int   `json:"max_pages"`
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target, ok := validateURL(w, req.URL, "url")
	if !ok {
		return
	}
	logger := logging.FromContext(r.Context(), s.logger)

	res, err := s.ingester.IngestURL(r.Context(), target)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNoPage):
			writeError(w, http.StatusNotFound, "page could not be crawled")
		case errors.Is(err, ingest.ErrEmbedding):
			logger.Error("ingest embedding failed", zap.String("url", target), zap.Error(err))
			writeError(w, http.StatusBadGateway, "embedding provider failed")
		default:
			logger.Error("ingest failed", zap.String("url", target), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ingest failed")
		}
		return
	}
	msg := MessageNoChanges
	if res.Changed() {
		msg = MessageProcessed
	}
	writeJSON(w, http.StatusOK, ingestResponse{Result: res, Message: msg})
}

func (s *Server) submitRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	baseURL, ok := validateURL(w, req.BaseURL, "base_url")
	if !ok {
		return
	}
	maxPages := s.cfg.Crawler.RebuildMaxPages
	if req.MaxPages != nil {
		if *req.MaxPages <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "max_pages must be > 0")
			return
		}
		maxPages = *req.MaxPages
	}

	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	job, err := s.jobs.Submit(ctx, crawler.JobParameters{BaseURL: baseURL, MaxPages: maxPages})
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("submit rebuild failed",
			zap.String("base_url", baseURL),
			zap.Error(err),
		)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "could not queue rebuild")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		logging.FromContext(r.Context(), s.logger).Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := s.asker.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, retrieval.ErrInvalidQuestion), errors.Is(err, retrieval.ErrInvalidTopK):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			logging.FromContext(r.Context(), s.logger).Error("ask failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "could not answer question")
		}
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// validateURL canonicalises raw and writes an error response when it is not
// an absolute http(s) URL.
func validateURL(w http.ResponseWriter, raw, field string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, field+" is required")
		return "", false
	}
	canonical := urlnorm.Canonicalize(raw)
	u, err := url.Parse(canonical)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusUnprocessableEntity, field+" must be an absolute http(s) URL")
		return "", false
	}
	return canonical, true
}
