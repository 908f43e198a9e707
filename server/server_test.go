package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/scraper"
)

func stubItems() []*models.Item {
	discount := 30
	return []*models.Item{
		{Position: 1, Title: "Notebook", Price: "$ 100.000", Link: "https://x.test/1", DiscountPercent: &discount, Condition: models.ConditionNew},
		{Position: 2, Title: "Mouse", Link: "https://x.test/2"},
	}
}

func stubSearch(calls *int) scraper.SearchFunc {
	return func(context.Context, *config.Config, *scraper.Metrics) ([]*models.Item, error) {
		if calls != nil {
			*calls++
		}
		return stubItems(), nil
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCountCachesByRequestShape(t *testing.T) {
	calls := 0
	handler := New(nil).WithSearchFunc(stubSearch(&calls)).Handler()

	payload := map[string]any{"query": "notebook"}

	rec := postJSON(t, handler, "/api/count", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var first struct {
		Count    int  `json:"count"`
		CacheHit bool `json:"cache_hit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if first.Count != 2 || first.CacheHit {
		t.Fatalf("first response = %+v, want count 2 and a cache miss", first)
	}

	rec = postJSON(t, handler, "/api/count", payload)
	var second struct {
		Count    int  `json:"count"`
		CacheHit bool `json:"cache_hit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if second.Count != 2 || !second.CacheHit {
		t.Fatalf("second response = %+v, want a cache hit", second)
	}
	if calls != 1 {
		t.Errorf("search ran %d times, want 1", calls)
	}

	// A different request shape misses the cache.
	postJSON(t, handler, "/api/count", map[string]any{"query": "notebook", "min_price": 1000})
	if calls != 2 {
		t.Errorf("search ran %d times after a distinct request, want 2", calls)
	}
}

func TestCountRejectsEmptyRequest(t *testing.T) {
	handler := New(nil).WithSearchFunc(stubSearch(nil)).Handler()

	rec := postJSON(t, handler, "/api/count", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without query or search_url", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp["detail"] == "" {
		t.Error("error body has no detail")
	}
}

func TestCountSearchURLOnly(t *testing.T) {
	handler := New(nil).WithSearchFunc(stubSearch(nil)).Handler()

	rec := postJSON(t, handler, "/api/count", map[string]any{
		"search_url": "https://listado.mercadolibre.cl/ofertas",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestCountSurfacesSearchError(t *testing.T) {
	handler := New(nil).WithSearchFunc(
		func(context.Context, *config.Config, *scraper.Metrics) ([]*models.Item, error) {
			return nil, errors.New("blocked")
		}).Handler()

	rec := postJSON(t, handler, "/api/count", map[string]any{"query": "notebook"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "search failed") {
		t.Errorf("body %s does not mention the failure", rec.Body)
	}
}

func TestPreviewShapesRows(t *testing.T) {
	var gotCfg *config.Config
	handler := New(nil).WithSearchFunc(
		func(_ context.Context, cfg *config.Config, _ *scraper.Metrics) ([]*models.Item, error) {
			gotCfg = cfg
			return stubItems(), nil
		}).Handler()

	rec := postJSON(t, handler, "/api/preview", map[string]any{
		"query":         "notebook",
		"preview_limit": 5000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
		Count   int              `json:"count"`
		Limit   int              `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Columns) != 6 || resp.Columns[0] != "Posicion" {
		t.Errorf("columns = %v", resp.Columns)
	}
	if resp.Count != 2 || len(resp.Rows) != 2 {
		t.Fatalf("count = %d rows = %d, want 2", resp.Count, len(resp.Rows))
	}
	if resp.Limit != 2000 {
		t.Errorf("limit = %d, want clamped to 2000", resp.Limit)
	}
	if resp.Rows[0]["Titulo"] != "Notebook" || resp.Rows[0]["Descuento"] != "30%" {
		t.Errorf("first row = %v", resp.Rows[0])
	}
	if resp.Rows[1]["Estado"] != "N/D" {
		t.Errorf("second row estado = %v, want N/D", resp.Rows[1]["Estado"])
	}
	if gotCfg == nil || !gotCfg.IncludeCondition {
		t.Error("preview should request condition enrichment")
	}
}

func TestExportReturnsSpreadsheet(t *testing.T) {
	handler := New(nil).WithSearchFunc(stubSearch(nil)).Handler()

	rec := postJSON(t, handler, "/api/export", map[string]any{"query": "notebook"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "resultados.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("body does not start with the zip magic")
	}
}

func TestExportWithoutAllResultsUsesDefaultLimit(t *testing.T) {
	var gotCfg *config.Config
	handler := New(nil).WithSearchFunc(
		func(_ context.Context, cfg *config.Config, _ *scraper.Metrics) ([]*models.Item, error) {
			gotCfg = cfg
			return stubItems(), nil
		}).Handler()

	rec := postJSON(t, handler, "/api/export", map[string]any{
		"query":       "notebook",
		"all_results": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if gotCfg == nil {
		t.Fatal("search func was not called")
	}
	if gotCfg.FetchAll {
		t.Error("export with all_results=false should not walk pagination")
	}
	if gotCfg.Limit != 10 {
		t.Errorf("export limit = %d, want 10", gotCfg.Limit)
	}
}

func TestHealthz(t *testing.T) {
	handler := New(nil).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := New(scraper.NewMetrics()).Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
