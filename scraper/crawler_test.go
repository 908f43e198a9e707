package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/jarcoal/httpmock"
)

var listadoRe = regexp.MustCompile(`^https://listado\.mercadolibre\.cl/`)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Query = "notebook"
	cfg.FetchAll = true
	return cfg
}

func newTestCrawler(cfg *config.Config, transport http.RoundTripper) *Crawler {
	c := NewCrawler(cfg, nil).WithTransport(transport)
	c.sleep = func(time.Duration) {}
	return c
}

func TestCollectDeduplicatesAcrossPages(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe, func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(req.URL.Path, "_Desde_97"):
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		case strings.Contains(req.URL.Path, "_Desde_49"):
			// Overlaps item 3 with the first page.
			return htmlResponse(listingPage(3, 4, 5)), nil
		default:
			return htmlResponse(listingPage(1, 2, 3)), nil
		}
	})

	crawler := newTestCrawler(testConfig(), transport)
	items, err := crawler.Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("collected %d items, want 5", len(items))
	}
	for i, item := range items {
		if item.Position != i+1 {
			t.Errorf("item %d position = %d, want %d", i, item.Position, i+1)
		}
		if item.Title != fmt.Sprintf("Item %d", i+1) {
			t.Errorf("item %d title = %q", i, item.Title)
		}
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Errorf("request count = %d, want 3", got)
	}

	stats := crawler.Stats()
	if stats.Pages != 2 || stats.Requests != 3 || stats.Items != 5 || stats.Retries != 0 {
		t.Errorf("stats = %+v, want 2 pages, 3 requests, 5 items, 0 retries", stats)
	}
}

func TestCollectStopsAtLimitMidPage(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse(listingPage(1, 2, 3, 4, 5))))

	cfg := testConfig()
	cfg.FetchAll = false

	items, err := newTestCrawler(cfg, transport).Collect(context.Background(), 2)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("collected %d items, want 2", len(items))
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Errorf("request count = %d, want 1 (limit reached mid-page)", got)
	}
}

func TestCollectEmptyPageStreakStops(t *testing.T) {
	// Valid results markup that yields no items at all.
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse(`<ol class="ui-search-layout"></ol>`)))

	items, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("collected %d items, want 0", len(items))
	}
	if got := transport.GetTotalCallCount(); got != maxEmptyPages {
		t.Errorf("request count = %d, want %d", got, maxEmptyPages)
	}
}

func TestCollectRepeatedContentStops(t *testing.T) {
	// Every page serves the same three items; after the first page nothing
	// is new, which counts against the empty-page streak.
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse(listingPage(1, 2, 3))))

	items, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("collected %d items, want 3", len(items))
	}
	if got := transport.GetTotalCallCount(); got != 1+maxEmptyPages {
		t.Errorf("request count = %d, want %d", got, 1+maxEmptyPages)
	}
}

func TestCollectShellStreakIsFatal(t *testing.T) {
	// Neither the primary nor the category fallback ever renders results.
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse("<html><body>Cargando...</body></html>")))

	_, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if !errors.Is(err, ErrSustainedBlock) {
		t.Fatalf("Collect() error = %v, want ErrSustainedBlock", err)
	}
	// Three shell pages, each with one category-fallback attempt.
	if got := transport.GetTotalCallCount(); got != 2*maxShellPages {
		t.Errorf("request count = %d, want %d", got, 2*maxShellPages)
	}
}

func TestCollectCategoryFallbackRecovers(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe, func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.Contains(req.URL.Path, "_Desde_"):
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		case strings.Contains(req.URL.Path, "_CustId_0_"):
			return htmlResponse(listingPage(1, 2)), nil
		default:
			return htmlResponse("<html><body>Cargando...</body></html>"), nil
		}
	})

	items, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("collected %d items, want 2", len(items))
	}
}

func TestCollectNotFoundEndsCleanly(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	items, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect() error = %v, want nil on 404", err)
	}
	if len(items) != 0 {
		t.Fatalf("collected %d items, want 0", len(items))
	}
}

func TestCollectRetriesTransientFailures(t *testing.T) {
	calls := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "_Desde_") {
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		}
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, ""), nil
		}
		return htmlResponse(listingPage(1, 2)), nil
	})

	crawler := newTestCrawler(testConfig(), transport)
	items, err := crawler.Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("collected %d items, want 2 after retry", len(items))
	}
	if calls != 2 {
		t.Errorf("first page fetched %d times, want 2", calls)
	}
	if got := crawler.Stats().Retries; got != 1 {
		t.Errorf("Stats().Retries = %d, want 1", got)
	}
}

func TestCollectGivesUpAfterRetryBudget(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	_, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if err == nil {
		t.Fatal("Collect() = nil, want error after exhausted retries")
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Collect() error = %v, want wrapped 500", err)
	}
	if got := transport.GetTotalCallCount(); got != fetchAttempts {
		t.Errorf("request count = %d, want %d", got, fetchAttempts)
	}
}

func TestCollectSolvesChallenge(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "_Desde_") {
			return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
		}
		if _, err := req.Cookie("_bmc"); err == nil {
			return htmlResponse(listingPage(1)), nil
		}
		resp := httpmock.NewStringResponse(http.StatusOK,
			"<html><body>This page requires JavaScript to work</body></html>")
		resp.Header.Set("Set-Cookie", "_bmstate=abc%3B1; Path=/")
		return resp, nil
	})

	crawler := newTestCrawler(testConfig(), transport)
	items, err := crawler.Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 1 || items[0].Title != "Item 1" {
		t.Fatalf("collected %v, want the post-challenge page", items)
	}
	if got := crawler.Stats().ChallengesSolved; got != 1 {
		t.Errorf("Stats().ChallengesSolved = %d, want 1", got)
	}
}

func TestCollectChallengeWithoutStateIsFatal(t *testing.T) {
	// The challenge marker without a state cookie cannot be answered.
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse(
			"<html><body>This page requires JavaScript to work</body></html>")))

	_, err := newTestCrawler(testConfig(), transport).Collect(context.Background(), 100)
	if !errors.Is(err, ErrChallengeUnsolved) {
		t.Fatalf("Collect() error = %v, want ErrChallengeUnsolved", err)
	}
}

func TestCollectRespectsMaxPages(t *testing.T) {
	page := 0
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe, func(*http.Request) (*http.Response, error) {
		page++
		return htmlResponse(listingPage(page)), nil
	})

	cfg := testConfig()
	cfg.MaxPages = 2

	items, err := newTestCrawler(cfg, transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("collected %d items, want 2 (one per page)", len(items))
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
}

func TestCollectContinuationFollowsNextLinks(t *testing.T) {
	startURL := "https://listado.mercadolibre.cl/ofertas"
	nextURL := startURL + "_Desde_49"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", startURL, httpmock.ResponderFromResponse(htmlResponse(
		listingPage(1, 2)+
			`<a class="andes-pagination__link" rel="next" href="`+nextURL+`">Siguiente</a>`)))
	transport.RegisterResponder("GET", nextURL,
		httpmock.ResponderFromResponse(htmlResponse(listingPage(3))))

	cfg := testConfig()
	cfg.Query = ""
	cfg.SearchURL = startURL

	items, err := newTestCrawler(cfg, transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect(): %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("collected %d items, want 3", len(items))
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Errorf("request count = %d, want 2 (next link exhausted)", got)
	}
}

func TestCollectContinuationStopsOnShellPage(t *testing.T) {
	startURL := "https://listado.mercadolibre.cl/ofertas"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", startURL,
		httpmock.ResponderFromResponse(htmlResponse("<html><body>Cargando...</body></html>")))

	cfg := testConfig()
	cfg.Query = ""
	cfg.SearchURL = startURL

	items, err := newTestCrawler(cfg, transport).Collect(context.Background(), 100)
	if err != nil {
		t.Fatalf("Collect() error = %v, want nil (no fallback under continuation)", err)
	}
	if len(items) != 0 {
		t.Fatalf("collected %d items, want 0", len(items))
	}
}

func TestCollectCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder("GET", listadoRe,
		httpmock.ResponderFromResponse(htmlResponse(listingPage(1))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCrawler(testConfig(), transport).Collect(ctx, 100)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Collect() error = %v, want context.Canceled", err)
	}
}

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return resp
}

func listingCard(id int) string {
	return fmt.Sprintf(`<h3 class="poly-component__title-wrapper">`+
		`<a href="https://articulo.mercadolibre.cl/MLC-%d" class="poly-component__title">Item %d</a></h3>`+
		`<div class="poly-price__current"><span data-andes-money-amount-fraction="true">%d.990</span></div>`,
		id, id, id)
}

func listingPage(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><body><ol class="ui-search-layout">`)
	for _, id := range ids {
		b.WriteString(listingCard(id))
	}
	b.WriteString("</ol></body></html>")
	return b.String()
}
