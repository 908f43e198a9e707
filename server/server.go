// Package server exposes the scraper over an HTTP JSON API: result counts
// with a short-lived cache, spreadsheet-shaped previews and xlsx export.
package server

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/scraper"
	"github.com/herrera199898/Pro-descuento/xlsx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	countCacheTTL     = 300 * time.Second
	countCacheEntries = 256
	maxPreviewLimit   = 2000
)

// SearchRequest is the JSON payload accepted by every API operation.
type SearchRequest struct {
	Query                string   `json:"query"`
	Country              string   `json:"country"`
	AllResults           bool     `json:"all_results"`
	MaxPages             int      `json:"max_pages"`
	MinPrice             int      `json:"min_price"`
	MaxPrice             int      `json:"max_price"`
	MinDiscount          int      `json:"min_discount"`
	Word                 string   `json:"word"`
	IncludeWords         []string `json:"include_words"`
	ExcludeWords         []string `json:"exclude_words"`
	Condition            string   `json:"condition"`
	SortPrice            bool     `json:"sort_price"`
	IncludeInternational bool     `json:"include_international"`
	CookieFile           string   `json:"cookie_file"`
	SearchURL            string   `json:"search_url"`
	PreviewLimit         int      `json:"preview_limit"`
}

func defaultRequest() SearchRequest {
	return SearchRequest{
		Country:      "cl",
		AllResults:   true,
		SortPrice:    true,
		PreviewLimit: 200,
	}
}

// normalized returns the request reduced to the fields that affect output,
// with the same clamping the scraper applies. The count cache key must
// cover every one of them or stale mismatched counts would be served.
func (r SearchRequest) normalized() map[string]any {
	return map[string]any{
		"query":                 strings.TrimSpace(r.Query),
		"country":               r.Country,
		"all_results":           r.AllResults,
		"max_pages":             r.MaxPages,
		"min_price":             max(0, r.MinPrice),
		"max_price":             max(0, r.MaxPrice),
		"min_discount":          min(max(0, r.MinDiscount), 100),
		"word":                  strings.TrimSpace(r.Word),
		"include_words":         normalizeWordList(r.IncludeWords),
		"exclude_words":         normalizeWordList(r.ExcludeWords),
		"condition":             r.Condition,
		"sort_price":            r.SortPrice,
		"include_international": r.IncludeInternational,
		"cookie_file":           strings.TrimSpace(r.CookieFile),
		"search_url":            strings.TrimSpace(r.SearchURL),
	}
}

func (r SearchRequest) cacheKey() string {
	raw, _ := json.Marshal(r.normalized())
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}

func normalizeWordList(words []string) []string {
	out := []string{}
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

type countResponse struct {
	Count          int            `json:"count"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	CacheHit       bool           `json:"cache_hit"`
	AppliedFilters map[string]any `json:"applied_filters"`
}

// Server serves scraper results over HTTP.
type Server struct {
	search  scraper.SearchFunc
	metrics *scraper.Metrics
	cache   *expirable.LRU[string, countResponse]
}

// New builds a server. metrics may be nil.
func New(metrics *scraper.Metrics) *Server {
	return &Server{
		search:  scraper.RunSearch,
		metrics: metrics,
		cache:   expirable.NewLRU[string, countResponse](countCacheEntries, nil, countCacheTTL),
	}
}

// WithSearchFunc replaces the search implementation. Tests use it to avoid
// network access.
func (s *Server) WithSearchFunc(fn scraper.SearchFunc) *Server {
	s.search = fn
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/count", s.handleCount)
	mux.HandleFunc("POST /api/preview", s.handlePreview)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := req.cacheKey()
	if cached, ok := s.cache.Get(key); ok {
		cached.CacheHit = true
		writeJSON(w, http.StatusOK, cached)
		return
	}

	cfg, err := s.configFor(req, false, 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := time.Now()
	items, err := s.search(r.Context(), cfg, s.metrics)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("search failed: %v", err))
		return
	}

	resp := countResponse{
		Count:          len(items),
		ElapsedSeconds: roundSeconds(time.Since(started)),
		AppliedFilters: map[string]any{
			"query":         req.Query,
			"country":       req.Country,
			"min_price":     req.MinPrice,
			"max_price":     req.MaxPrice,
			"include_words": normalizeWordList(req.IncludeWords),
			"exclude_words": normalizeWordList(req.ExcludeWords),
			"condition":     req.Condition,
		},
	}
	s.cache.Add(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := min(max(req.PreviewLimit, 1), maxPreviewLimit)
	cfg, err := s.configFor(req, true, limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	started := time.Now()
	items, err := s.search(r.Context(), cfg, s.metrics)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("search failed: %v", err))
		return
	}

	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		discount := ""
		if item.DiscountPercent != nil {
			discount = fmt.Sprintf("%d%%", *item.DiscountPercent)
		}
		rows = append(rows, map[string]any{
			"Posicion":  i + 1,
			"Titulo":    item.Title,
			"Precio":    item.Price,
			"Descuento": discount,
			"Estado":    item.Condition.Label(),
			"Link":      item.Link,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":         xlsx.Header,
		"rows":            rows,
		"count":           len(rows),
		"elapsed_seconds": roundSeconds(time.Since(started)),
		"limit":           limit,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := s.configFor(req, true, 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.search(r.Context(), cfg, s.metrics)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("search failed: %v", err))
		return
	}

	data, err := xlsx.Encode(items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("encode spreadsheet: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="resultados.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("write export response", slog.Any("error", err))
	}
}

// configFor turns an API request into a validated run configuration.
func (s *Server) configFor(req SearchRequest, includeCondition bool, limit int) (*config.Config, error) {
	cfg := config.Default()
	cfg.Query = strings.TrimSpace(req.Query)
	cfg.Country = req.Country
	cfg.Limit = limit
	cfg.FetchAll = req.AllResults
	cfg.MaxPages = req.MaxPages
	cfg.SortPrice = req.SortPrice
	cfg.IncludeInternational = req.IncludeInternational
	cfg.SearchURL = strings.TrimSpace(req.SearchURL)
	cfg.IncludeCondition = includeCondition
	cfg.Criteria = models.Criteria{
		MinPrice:     max(0, req.MinPrice),
		MaxPrice:     max(0, req.MaxPrice),
		Word:         req.Word,
		IncludeWords: normalizeWordList(req.IncludeWords),
		ExcludeWords: normalizeWordList(req.ExcludeWords),
		MinDiscount:  min(max(0, req.MinDiscount), 100),
	}
	if cond := models.Condition(req.Condition); cond.Known() {
		cfg.Criteria.Condition = cond
	}
	if path := strings.TrimSpace(req.CookieFile); path != "" {
		header, err := config.LoadCookieFile(path)
		if err != nil {
			return nil, err
		}
		cfg.CookieHeader = header
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeRequest(r *http.Request) (SearchRequest, error) {
	req := defaultRequest()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.SearchURL) == "" {
		return req, fmt.Errorf("a query or a search URL is required")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Milliseconds()) / 1000.0
}
