package scraper

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/parser"
)

const (
	maxEnrichWorkers = 24
	enrichItemKey    = "item"
)

// Enricher fills in the condition of items whose listing card did not
// reveal it, by visiting each item's detail page. Detail fetches run on a
// fresh, unauthenticated collector independent of the crawl session; each
// item is written by exactly one request, so the progress counter is the
// only shared state.
type Enricher struct {
	collector *colly.Collector
	workers   int
	metrics   *Metrics
	done      atomic.Int64
}

// NewEnricher builds an enricher with the worker count clamped to [1,24].
func NewEnricher(workers int, userAgent string, timeout time.Duration, metrics *Metrics) (*Enricher, error) {
	workers = min(max(workers, 1), maxEnrichWorkers)

	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(userAgent),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: workers,
	}); err != nil {
		return nil, fmt.Errorf("configure enrichment parallelism: %w", err)
	}

	e := &Enricher{
		collector: collector,
		workers:   workers,
		metrics:   metrics,
	}

	collector.OnRequest(func(r *colly.Request) {
		e.metrics.IncRequest("detail")
	})
	collector.OnResponse(func(r *colly.Response) {
		item, ok := r.Ctx.GetAny(enrichItemKey).(*models.Item)
		if !ok {
			return
		}
		if condition := parser.ConditionFromDetailPage(string(r.Body)); condition != "" {
			item.Condition = condition
			e.metrics.IncEnriched()
		}
		e.done.Add(1)
	})
	collector.OnError(func(r *colly.Response, err error) {
		// A failed detail fetch leaves the item's condition unset and
		// never aborts the batch.
		e.done.Add(1)
		e.metrics.IncError(errorTypeLabel(err))
		slog.Debug("detail page fetch failed", slog.Any("error", err))
	})

	return e, nil
}

// WithTransport sets the HTTP transport of the underlying collector. Tests
// use it to install a mock transport.
func (e *Enricher) WithTransport(rt http.RoundTripper) *Enricher {
	e.collector.WithTransport(rt)
	return e
}

// Processed reports how many detail fetches have completed, successfully
// or not, across the enricher's lifetime.
func (e *Enricher) Processed() int64 {
	return e.done.Load()
}

// Enrich visits the detail page of every item that does not already carry a
// condition and returns the number of items processed. Completion order is
// unspecified.
func (e *Enricher) Enrich(items []*models.Item) int {
	var pending []*models.Item
	for _, item := range items {
		if item.Condition == "" {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	slog.Debug("enriching items with condition",
		slog.Int("pending", len(pending)),
		slog.Int("workers", e.workers),
	)
	for _, item := range pending {
		requestCtx := colly.NewContext()
		requestCtx.Put(enrichItemKey, item)
		if err := e.collector.Request(http.MethodGet, item.Link, nil, requestCtx, nil); err != nil {
			e.done.Add(1)
			slog.Debug("detail page request rejected", slog.String("url", item.Link), slog.Any("error", err))
		}
	}
	e.collector.Wait()
	return len(pending)
}
