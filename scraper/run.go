package scraper

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/pipeline"
)

// SearchFunc is the signature of RunSearch; callers that need to stub out
// the network (server and batch tests) accept this type.
type SearchFunc func(ctx context.Context, cfg *config.Config, metrics *Metrics) ([]*models.Item, error)

// conditionParseCap bounds how far the crawl over-collects when a condition
// filter is active, since condition is often only known after enrichment.
const conditionParseCap = 80

// RunSearch executes one full search: crawl, filter, optional condition
// enrichment and final ranking. metrics may be nil.
func RunSearch(ctx context.Context, cfg *config.Config, metrics *Metrics) ([]*models.Item, error) {
	return runSearch(ctx, cfg, metrics, nil)
}

// runSearch is RunSearch with an injectable transport shared by the crawl
// and enrichment phases. A nil transport means the default one.
func runSearch(ctx context.Context, cfg *config.Config, metrics *Metrics, transport http.RoundTripper) ([]*models.Item, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conditionFilter := cfg.ConditionFilter()

	// With a condition filter, over-collect: part of the page never
	// states a condition and gets discarded after enrichment.
	parseLimit := cfg.Limit
	if conditionFilter != models.ConditionAny {
		parseLimit = min(max(cfg.Limit*4, cfg.Limit), conditionParseCap)
	}

	crawler := NewCrawler(cfg, metrics).WithTransport(transport)
	items, err := crawler.Collect(ctx, parseLimit)
	if err != nil {
		return nil, err
	}
	stats := crawler.Stats()
	slog.Debug("crawl finished",
		slog.Int("collected", len(items)),
		slog.Int("pages", stats.Pages),
		slog.Int("requests", stats.Requests),
		slog.Int("retries", stats.Retries),
		slog.Int("challenges_solved", stats.ChallengesSolved),
	)

	// Cheap filters first, so condition enrichment never fetches detail
	// pages for items a predicate would discard anyway.
	items = pipeline.ApplyFilters(items, cfg.Criteria)

	if conditionFilter != models.ConditionAny {
		// The listing was already condition-filtered server-side; stamp
		// the survivors so the enricher skips them.
		for _, item := range items {
			item.Condition = conditionFilter
		}
	}

	if cfg.IncludeCondition && len(items) > 0 {
		enricher, err := NewEnricher(cfg.ConditionWorkers, cfg.UserAgent, cfg.Timeout, metrics)
		if err != nil {
			return nil, err
		}
		if transport != nil {
			enricher.WithTransport(transport)
		}
		processed := enricher.Enrich(items)
		slog.Debug("condition enrichment finished", slog.Int("processed", processed))
	}

	if conditionFilter != models.ConditionAny {
		filtered := items[:0]
		for _, item := range items {
			if item.Condition == conditionFilter {
				filtered = append(filtered, item)
			}
		}
		items = filtered
		if !cfg.FetchAll && len(items) > cfg.Limit {
			items = items[:cfg.Limit]
		}
	}

	if cfg.SortPrice {
		items = pipeline.SortByPrice(items)
	} else {
		pipeline.Renumber(items)
	}
	return items, nil
}
