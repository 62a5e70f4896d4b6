// Package server exposes the retrieval engine over HTTP: evidence
// retrieval for claims, index rebuild, and cache administration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/syscred/evidence-engine/internal/analytics"
	"github.com/syscred/evidence-engine/internal/cache"
	"github.com/syscred/evidence-engine/internal/retriever"
	"github.com/syscred/evidence-engine/internal/scorer"
	"github.com/syscred/evidence-engine/pkg/config"
	pkgerrors "github.com/syscred/evidence-engine/pkg/errors"
	"github.com/syscred/evidence-engine/pkg/logger"
	"github.com/syscred/evidence-engine/pkg/metrics"
	"github.com/syscred/evidence-engine/pkg/middleware"
)

// snippetLimit bounds the evidence text returned per document.
const snippetLimit = 500

// Evidence is one ranked evidence document with its text snippet.
type Evidence struct {
	DocID string  `json:"doc_id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// RetrieveResponse is the payload returned by the retrieve endpoint.
type RetrieveResponse struct {
	Query           string     `json:"query"`
	Model           string     `json:"model"`
	UsePRF          bool       `json:"use_prf"`
	ExpandedTerms   []string   `json:"expanded_terms,omitempty"`
	TotalCandidates int        `json:"total_candidates"`
	Evidences       []Evidence `json:"evidences"`
	SearchTimeMs    int64      `json:"search_time_ms"`
}

// ReindexFunc rebuilds the index from the configured corpus and swaps it in.
type ReindexFunc func(ctx context.Context) error

type Handler struct {
	engine    *retriever.Engine
	cache     *cache.ResultCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	cfg       config.RetrievalConfig
	reindex   ReindexFunc
	logger    *slog.Logger
}

func New(
	engine *retriever.Engine,
	resultCache *cache.ResultCache,
	collector *analytics.Collector,
	m *metrics.Metrics,
	cfg config.RetrievalConfig,
	reindex ReindexFunc,
) *Handler {
	return &Handler{
		engine:    engine,
		cache:     resultCache,
		collector: collector,
		metrics:   m,
		cfg:       cfg,
		reindex:   reindex,
		logger:    slog.Default().With("component", "retrieve-handler"),
	}
}

// Retrieve handles GET /api/v1/retrieve?q=...&k=...&model=...&prf=...
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	opts, err := h.parseOptions(r)
	if err != nil {
		h.writeError(w, pkgerrors.HTTPStatusCode(err), err.Error())
		return
	}

	var result *retriever.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, opts, func() (*retriever.Result, error) {
			return h.engine.Retrieve(ctx, query, opts)
		})
	} else {
		result, err = h.engine.Retrieve(ctx, query, opts)
	}
	if err != nil {
		log.Error("retrieval failed", "query", query, "error", err)
		if h.metrics != nil {
			h.metrics.RetrievalsTotal.WithLabelValues(string(opts.Model), "error").Inc()
		}
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "retrieval failed")
		return
	}

	latency := time.Since(start)
	h.observe(opts, result, cacheHit, latency)

	log.Info("retrieval completed",
		"query", query,
		"model", opts.Model,
		"prf", opts.UsePRF,
		"candidates", result.TotalCandidates,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		eventType := analytics.EventCacheMiss
		if cacheHit {
			eventType = analytics.EventCacheHit
		}
		if len(result.Results) == 0 {
			eventType = analytics.EventZeroResult
		}
		h.collector.Track(query, analytics.RetrievalEvent{
			Type:       eventType,
			Query:      query,
			Model:      string(opts.Model),
			UsePRF:     opts.UsePRF,
			Expanded:   len(result.ExpandedTerms) > 0,
			K:          opts.K,
			Candidates: result.TotalCandidates,
			Returned:   len(result.Results),
			LatencyMs:  latency.Milliseconds(),
			CacheHit:   cacheHit,
			Timestamp:  time.Now().UTC(),
			RequestID:  middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, h.buildResponse(query, opts, result, latency))
}

// Reindex handles POST /api/v1/reindex: rebuilds the index from the corpus
// path and invalidates the result cache. The swap is atomic; concurrent
// retrievals see either the old or the new index, never a mix.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.reindex == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reindexing not configured")
		return
	}
	start := time.Now()
	if err := h.reindex(r.Context()); err != nil {
		h.logger.Error("reindex failed", "error", err)
		if h.metrics != nil {
			h.metrics.IndexRebuildsTotal.WithLabelValues("error").Inc()
		}
		h.writeError(w, pkgerrors.HTTPStatusCode(err), "reindex failed")
		return
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context()); err != nil {
			h.logger.Error("cache invalidation after reindex failed", "error", err)
		}
	}
	if h.metrics != nil {
		h.metrics.IndexRebuildsTotal.WithLabelValues("ok").Inc()
		h.metrics.IndexedDocs.Set(float64(h.engine.DocCount()))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "reindexed",
		"docs":        h.engine.DocCount(),
		"terms":       h.engine.TermCount(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) parseOptions(r *http.Request) (retriever.Options, error) {
	opts := retriever.Options{
		K:     h.cfg.DefaultK,
		Model: scorer.Model(h.cfg.DefaultModel),
	}
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		k, err := strconv.Atoi(kStr)
		if err != nil || k < 1 {
			return opts, pkgerrors.Newf(pkgerrors.ErrInvalidK, http.StatusBadRequest, "k must be a positive integer, got %q", kStr)
		}
		if k > h.cfg.MaxK {
			k = h.cfg.MaxK
		}
		opts.K = k
	}
	if modelStr := r.URL.Query().Get("model"); modelStr != "" {
		model, err := scorer.ParseModel(modelStr)
		if err != nil {
			return opts, err
		}
		opts.Model = model
	}
	if prfStr := r.URL.Query().Get("prf"); prfStr != "" {
		prf, err := strconv.ParseBool(prfStr)
		if err != nil {
			return opts, pkgerrors.Newf(pkgerrors.ErrInvalidInput, http.StatusBadRequest, "prf must be a boolean, got %q", prfStr)
		}
		opts.UsePRF = prf
	}
	return opts, nil
}

func (h *Handler) observe(opts retriever.Options, result *retriever.Result, cacheHit bool, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	resultType := "hit"
	if len(result.Results) == 0 {
		resultType = "zero_result"
	}
	h.metrics.RetrievalsTotal.WithLabelValues(string(opts.Model), resultType).Inc()
	h.metrics.RetrievalLatency.WithLabelValues(string(opts.Model)).Observe(latency.Seconds())
	h.metrics.ResultsCount.Observe(float64(len(result.Results)))
	if len(result.ExpandedTerms) > 0 {
		h.metrics.PRFExpansionsTotal.Inc()
	}
	if cacheHit {
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
}

func (h *Handler) buildResponse(query string, opts retriever.Options, result *retriever.Result, latency time.Duration) *RetrieveResponse {
	resp := &RetrieveResponse{
		Query:           query,
		Model:           string(opts.Model),
		UsePRF:          opts.UsePRF,
		ExpandedTerms:   result.ExpandedTerms,
		TotalCandidates: result.TotalCandidates,
		Evidences:       make([]Evidence, 0, len(result.Results)),
		SearchTimeMs:    latency.Milliseconds(),
	}
	for _, r := range result.Results {
		text := ""
		if doc, err := h.engine.Document(r.DocID); err == nil {
			text = snippet(doc.RawText)
		}
		resp.Evidences = append(resp.Evidences, Evidence{
			DocID: r.DocID,
			Text:  text,
			Score: r.Score,
			Rank:  r.Rank,
		})
	}
	return resp
}

func snippet(text string) string {
	if len(text) <= snippetLimit {
		return text
	}
	return text[:snippetLimit] + "..."
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
