package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/herrera199898/Pro-descuento/challenge"
	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/parser"
)

// Session owns one cookie jar and issues listing-page fetches with it.
// The crawler discards a Session and builds a fresh one when retrying a
// failed page; jars are never shared across crawls.
type Session struct {
	client       *http.Client
	jar          http.CookieJar
	userAgent    string
	cookieHeader string
	metrics      *Metrics
	stats        *models.CrawlStats
}

// newSession builds a session with an empty cookie jar. transport may be
// nil for the default; tests inject a mock transport. stats, when non-nil,
// accumulates request and challenge counts across sessions.
func newSession(cfg *config.Config, transport http.RoundTripper, metrics *Metrics, stats *models.CrawlStats) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("new cookie jar: %w", err)
	}
	return &Session{
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		jar:          jar,
		userAgent:    cfg.UserAgent,
		cookieHeader: cfg.CookieHeader,
		metrics:      metrics,
		stats:        stats,
	}, nil
}

// FetchPage fetches one listing page, transparently answering the anti-bot
// challenge when the response carries its marker. After a solved challenge
// the same URL is refetched exactly once; a persisting marker is fatal for
// this page and surfaces as ErrChallengePersisted.
func (s *Session) FetchPage(ctx context.Context, rawURL, domain string) (string, error) {
	doc, err := s.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if !strings.Contains(doc, parser.ChallengeMarker) {
		return doc, nil
	}

	siteURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	if err := challenge.Solve(s.jar, siteURL, domain); err != nil {
		s.metrics.IncChallenge("unsolved")
		slog.Debug("challenge solve failed", slog.String("url", rawURL), slog.Any("error", err))
		return "", fmt.Errorf("%w: %w", ErrChallengeUnsolved, err)
	}
	s.metrics.IncChallenge("solved")
	if s.stats != nil {
		s.stats.ChallengesSolved++
	}
	slog.Debug("challenge solved, refetching", slog.String("url", rawURL))

	doc, err = s.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if strings.Contains(doc, parser.ChallengeMarker) {
		s.metrics.IncChallenge("persisted")
		return "", ErrChallengePersisted
	}
	return doc, nil
}

func (s *Session) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	if s.cookieHeader != "" {
		req.Header.Set("Cookie", s.cookieHeader)
	}

	start := time.Now()
	s.metrics.IncRequest("listing")
	if s.stats != nil {
		s.stats.Requests++
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	s.metrics.ObserveDuration(time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	return string(body), nil
}
