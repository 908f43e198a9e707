package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl and enrichment paths.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      prometheus.Counter
	ItemsTotal      prometheus.Counter
	RetriesTotal    prometheus.Counter
	ChallengesTotal *prometheus.CounterVec
	EnrichedTotal   prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued, by phase (listing, detail).",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for listing-page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total listing pages accepted as results pages.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_collected_total",
			Help: "Total unique items collected across crawls.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total page fetch retries with a fresh session.",
		},
	)
	challenges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_challenges_total",
			Help: "Total anti-bot challenges encountered, by outcome.",
		},
		[]string{"outcome"},
	)
	enriched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_enriched_total",
			Help: "Total items whose condition was read from a detail page.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, items, retries, challenges, enriched, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		ItemsTotal:      items,
		RetriesTotal:    retries,
		ChallengesTotal: challenges,
		EnrichedTotal:   enriched,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the request counter for a phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a listing fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage increments the accepted results-page counter.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncItems adds n to the collected-items counter.
func (m *Metrics) IncItems(n int) {
	if m == nil {
		return
	}
	m.ItemsTotal.Add(float64(n))
}

// IncRetries increments the retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncChallenge increments the challenge counter for an outcome.
func (m *Metrics) IncChallenge(outcome string) {
	if m == nil {
		return
	}
	m.ChallengesTotal.WithLabelValues(outcome).Inc()
}

// IncEnriched increments the enriched-items counter.
func (m *Metrics) IncEnriched() {
	if m == nil {
		return
	}
	m.EnrichedTotal.Inc()
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
