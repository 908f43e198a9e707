package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Anti-bot failures. All three are fatal for the crawl; the messages
// distinguish a challenge the solver could not answer, a challenge that
// survived a correct answer, and a sustained run of shell pages.
var (
	// ErrChallengeUnsolved means the challenge marker appeared but the
	// session carried no solvable challenge state.
	ErrChallengeUnsolved = errors.New("blocked by anti-bot and could not solve the challenge")
	// ErrChallengePersisted means the challenge marker was still present
	// after a solution was presented and the page refetched.
	ErrChallengePersisted = errors.New("blocked by anti-bot after retrying with a solved challenge")
	// ErrSustainedBlock means three consecutive pages lacked result
	// markers, which signals an active block rather than end-of-results.
	ErrSustainedBlock = errors.New("listing returned pages without results repeatedly (temporary anti-bot block); retry in a few minutes")
)

// HTTPError is a non-2xx response from the listing frontend. A 404 is a
// first-class end-of-results signal, not a failure.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

func isBlockError(err error) bool {
	return errors.Is(err, ErrChallengeUnsolved) ||
		errors.Is(err, ErrChallengePersisted) ||
		errors.Is(err, ErrSustainedBlock)
}

// errorTypeLabel classifies an error for the metrics error counter.
func errorTypeLabel(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case isBlockError(err):
		return "blocked"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusForbidden:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		}
		return "http_error"
	}
	return "other"
}
