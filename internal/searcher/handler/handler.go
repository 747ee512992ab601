package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/modelstore"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/problem-search/internal/thesaurus"
	apperrors "github.com/Adithya-Monish-Kumar-K/problem-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/problem-search/pkg/logger"
)

const maxBodyBytes = 1 << 20

type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
	Expand(query string) thesaurus.Expansion
	Model(ctx context.Context) (modelstore.Meta, error)
	Invalidate(ctx context.Context) error
}

// CacheStats is implemented by result caches that count hits.
type CacheStats interface {
	Stats() (hits, misses int64)
}

type Handler struct {
	searcher Searcher
	stats    CacheStats
	logger   *slog.Logger
}

// New builds the API handler. stats may be nil when result caching is off.
func New(s Searcher, stats CacheStats) *Handler {
	return &Handler{
		searcher: s,
		stats:    stats,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /api/v1/model", h.Model)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type queryRequest struct {
	Query   json.RawMessage `json:"query"`
	Filters struct {
		Platform string `json:"platform"`
	} `json:"filters"`
}

// Query answers POST /api/v1/query with the bare result list.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request", "Request body must be a JSON object")
		return
	}
	var query string
	if err := json.Unmarshal(body.Query, &query); err != nil || strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid request", "Query parameter must be a string")
		return
	}

	resp, err := h.searcher.Search(r.Context(), searcher.Request{Query: query, Platform: body.Filters.Platform})
	if err != nil {
		h.searchFailed(w, r, query, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp.Results)
}

// Search answers GET /api/v1/search?q=&platform= with the full response.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid request", "query parameter 'q' is required")
		return
	}
	resp, err := h.searcher.Search(r.Context(), searcher.Request{
		Query:    query,
		Platform: r.URL.Query().Get("platform"),
	})
	if err != nil {
		h.searchFailed(w, r, query, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type expandResponse struct {
	Query    string   `json:"query"`
	Original []string `json:"original"`
	Terms    []string `json:"terms"`
	Expanded string   `json:"expanded"`
	Grew     bool     `json:"grew"`
}

func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "Invalid request", "query parameter 'q' is required")
		return
	}
	e := h.searcher.Expand(query)
	h.writeJSON(w, http.StatusOK, expandResponse{
		Query:    query,
		Original: e.Original,
		Terms:    e.Terms,
		Expanded: e.Text(),
		Grew:     e.Grew(),
	})
}

func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	meta, err := h.searcher.Model(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("model unavailable", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "Model unavailable", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.stats.Stats()
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

// CacheInvalidate drops the served model and every cached result.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.searcher.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Cache invalidation failed", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) searchFailed(w http.ResponseWriter, r *http.Request, query string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, apperrors.ErrInvalidInput) {
		h.writeError(w, status, "Invalid request", err.Error())
		return
	}
	logger.FromContext(r.Context()).Error("search execution failed", "query", query, "error", err)
	h.writeError(w, status, "Search processing failed", err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, details string) {
	h.writeJSON(w, status, map[string]string{"error": message, "details": details})
}
