package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/parser"
	"github.com/herrera199898/Pro-descuento/search"
)

const (
	// pageSize is the listing frontend's results-per-page step for offset
	// addressing.
	pageSize = 48
	// pageParseCap bounds extraction per page regardless of the caller's
	// overall limit.
	pageParseCap = 200
	// maxEmptyPages stops the crawl after this many consecutive pages
	// with no items or no new items.
	maxEmptyPages = 5
	// maxShellPages turns a shell-page streak into a fatal block error.
	maxShellPages = 3
	// fetchAttempts is the per-page fetch budget.
	fetchAttempts = 3
	// retryBackoff is slept between per-page attempts.
	retryBackoff = 600 * time.Millisecond
)

// pager is the page-addressing strategy, fixed once per crawl.
//
// advance moves to the next page after a results page was processed and
// reports whether another page can be addressed. advanceShell does the same
// for a page that turned out to be a shell: under offset addressing the
// offset is advanced blindly, under continuation addressing no trustworthy
// next link exists and the crawl stops.
type pager interface {
	pageURL() (string, error)
	advance(doc, currentURL string) bool
	advanceShell() bool
}

// offsetPager addresses pages by a running _Desde_ offset.
type offsetPager struct {
	cfg   *config.Config
	start int
}

func (p *offsetPager) options() search.Options {
	return search.Options{
		Query:                p.cfg.Query,
		Country:              p.cfg.Country,
		Start:                p.start,
		ExcludeInternational: !p.cfg.IncludeInternational,
		MinPrice:             p.cfg.Criteria.MinPrice,
		MaxPrice:             p.cfg.Criteria.MaxPrice,
		MinDiscount:          p.cfg.Criteria.MinDiscount,
		SortPrice:            p.cfg.SortPrice,
		Condition:            p.cfg.Criteria.Condition,
	}
}

func (p *offsetPager) pageURL() (string, error) {
	return search.ListingURL(p.options())
}

func (p *offsetPager) fallbackURL() (string, error) {
	return search.CategoryListingURL(p.options())
}

func (p *offsetPager) advance(string, string) bool {
	p.start += pageSize
	return true
}

func (p *offsetPager) advanceShell() bool {
	p.start += pageSize
	return true
}

// continuationPager follows in-page next links from a caller-supplied
// starting URL.
type continuationPager struct {
	next string
}

func (p *continuationPager) pageURL() (string, error) {
	return p.next, nil
}

func (p *continuationPager) advance(doc, currentURL string) bool {
	p.next = parser.NextPageURL(doc, currentURL)
	return p.next != ""
}

func (p *continuationPager) advanceShell() bool {
	return false
}

// Crawler pages through a result set, deduplicating by link and deciding
// when to stop. It is strictly sequential: every page's address depends on
// the previous page's content.
type Crawler struct {
	cfg       *config.Config
	metrics   *Metrics
	transport http.RoundTripper
	sleep     func(time.Duration)
	stats     models.CrawlStats
}

// NewCrawler builds a crawler for one invocation. metrics may be nil.
func NewCrawler(cfg *config.Config, metrics *Metrics) *Crawler {
	return &Crawler{
		cfg:     cfg,
		metrics: metrics,
		sleep:   time.Sleep,
	}
}

// WithTransport sets the HTTP transport used by every session. Tests use it
// to install a mock transport.
func (c *Crawler) WithTransport(rt http.RoundTripper) *Crawler {
	c.transport = rt
	return c
}

// Stats summarizes the crawl so far. Valid after Collect returns.
func (c *Crawler) Stats() models.CrawlStats {
	return c.stats
}

// Collect runs the crawl and returns the collected items in insertion
// order. When FetchAll is unset it returns as soon as limit items were
// collected, possibly mid-page. End-of-results conditions (404, exhausted
// next link, sustained empty pages, page cap) return the partial set with a
// nil error; anti-bot blocks and exhausted retry budgets return an error.
func (c *Crawler) Collect(ctx context.Context, limit int) ([]*models.Item, error) {
	domain, err := search.Domain(c.cfg.Country)
	if err != nil {
		return nil, err
	}
	session, err := newSession(c.cfg, c.transport, c.metrics, &c.stats)
	if err != nil {
		return nil, err
	}

	var pg pager
	if startURL := strings.TrimSpace(c.cfg.SearchURL); startURL != "" {
		pg = &continuationPager{next: startURL}
	} else {
		pg = &offsetPager{cfg: c.cfg, start: 1}
	}

	seen := make(map[string]struct{})
	var collected []*models.Item
	pageCount := 0
	emptyStreak := 0
	shellStreak := 0
	unlimited := c.cfg.MaxPages <= 0

	for unlimited || pageCount < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return collected, err
		}
		pageCount++

		currentURL, err := pg.pageURL()
		if err != nil {
			return nil, err
		}
		slog.Debug("fetching listing page",
			slog.Int("page", pageCount),
			slog.Int("collected", len(collected)),
			slog.String("url", currentURL),
		)

		doc, fetchErr := "", error(nil)
		for attempt := 1; attempt <= fetchAttempts; attempt++ {
			doc, fetchErr = session.FetchPage(ctx, currentURL, domain)
			if fetchErr == nil {
				break
			}
			c.metrics.IncError(errorTypeLabel(fetchErr))
			if IsNotFound(fetchErr) || isBlockError(fetchErr) || errors.Is(fetchErr, context.Canceled) {
				break
			}
			if attempt == fetchAttempts {
				break
			}
			// Transient failure: back off and start over with a clean
			// jar in case the session itself got flagged.
			slog.Debug("page fetch failed, retrying with fresh session",
				slog.Int("attempt", attempt),
				slog.Any("error", fetchErr),
			)
			c.metrics.IncRetries()
			c.stats.Retries++
			c.sleep(retryBackoff)
			session, err = newSession(c.cfg, c.transport, c.metrics, &c.stats)
			if err != nil {
				return nil, err
			}
		}
		if fetchErr != nil {
			if IsNotFound(fetchErr) {
				break
			}
			return nil, fmt.Errorf("page %d: %w", pageCount, fetchErr)
		}

		// Some queries return a generic shell page without server-rendered
		// results. Try the category-scoped listing before giving up on
		// this page; only offset addressing has a derivable fallback.
		if !parser.LooksLikeResultsPage(doc) {
			if op, ok := pg.(*offsetPager); ok {
				if fallbackURL, err := op.fallbackURL(); err == nil && fallbackURL != currentURL {
					if alt, err := session.FetchPage(ctx, fallbackURL, domain); err == nil && parser.LooksLikeResultsPage(alt) {
						doc = alt
					}
				}
			}
		}

		if !parser.LooksLikeResultsPage(doc) {
			shellStreak++
			if shellStreak >= maxShellPages {
				return nil, ErrSustainedBlock
			}
			if !pg.advanceShell() {
				break
			}
			continue
		}
		shellStreak = 0
		c.metrics.IncPage()
		c.stats.Pages++

		pageItems := parser.ParseItems(doc, pageParseCap)
		if len(pageItems) == 0 {
			emptyStreak++
			if emptyStreak >= maxEmptyPages {
				break
			}
			if !pg.advance(doc, currentURL) {
				break
			}
			continue
		}
		emptyStreak = 0

		newItems := 0
		for _, item := range pageItems {
			if _, dup := seen[item.Link]; dup {
				continue
			}
			seen[item.Link] = struct{}{}
			item.Position = len(collected) + 1
			collected = append(collected, item)
			newItems++
			if !c.cfg.FetchAll && len(collected) >= limit {
				c.metrics.IncItems(newItems)
				c.stats.Items += newItems
				return collected, nil
			}
		}
		c.metrics.IncItems(newItems)
		c.stats.Items += newItems

		// A page of nothing but known links means pagination is looping
		// over the same content; treat it like an empty page.
		if newItems == 0 {
			emptyStreak++
			if emptyStreak >= maxEmptyPages {
				break
			}
			if !pg.advance(doc, currentURL) {
				break
			}
			continue
		}
		emptyStreak = 0

		if !pg.advance(doc, currentURL) {
			break
		}
	}

	if !c.cfg.FetchAll && len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}
