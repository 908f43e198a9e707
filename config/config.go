// Package config holds run configuration for one search invocation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/search"
)

// Config describes one search run end to end. A Config is built by the CLI,
// the HTTP API or the batch job and validated before any network activity.
type Config struct {
	Query   string
	Country string

	Limit    int
	FetchAll bool
	MaxPages int // <= 0 means unlimited

	Criteria             models.Criteria
	SortPrice            bool
	IncludeInternational bool

	// SearchURL, when set, overrides query-based URL construction and
	// switches the crawler to continuation-link addressing.
	SearchURL string

	// CookieHeader is an optional pre-parsed Cookie header sent alongside
	// the session's own jar.
	CookieHeader string

	UserAgent string
	Timeout   time.Duration

	IncludeCondition bool
	ConditionWorkers int

	Verbose bool
}

// Default returns the defaults matching the public marketplace target.
func Default() *Config {
	return &Config{
		Country:          "cl",
		Limit:            10,
		MaxPages:         20,
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Timeout:          20 * time.Second,
		ConditionWorkers: 16,
	}
}

// Validate rejects malformed input before any request is issued.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Query) == "" && strings.TrimSpace(c.SearchURL) == "" {
		return fmt.Errorf("a search query or an explicit search URL is required")
	}
	if _, err := search.Domain(c.Country); err != nil {
		return err
	}
	if c.Limit < 1 {
		return fmt.Errorf("limit must be >= 1, got %d", c.Limit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.ConditionWorkers < 1 {
		return fmt.Errorf("condition workers must be >= 1, got %d", c.ConditionWorkers)
	}
	if cond := c.Criteria.Condition; cond != "" && cond != models.ConditionAny && !cond.Known() {
		return fmt.Errorf("unknown condition filter %q", cond)
	}
	return nil
}

// ConditionFilter returns the active condition filter, normalizing the
// empty value to "any".
func (c *Config) ConditionFilter() models.Condition {
	if c.Criteria.Condition == "" {
		return models.ConditionAny
	}
	return c.Criteria.Condition
}

// ParseCookieHeader normalizes a raw cookie header into "name=value; ..."
// form, dropping malformed pairs and a leading BOM pasted from editors.
func ParseCookieHeader(raw string) string {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	var pairs []string
	for _, token := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(token), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		pairs = append(pairs, name+"="+strings.TrimSpace(value))
	}
	return strings.Join(pairs, "; ")
}

// LoadCookieFile reads and normalizes a cookie header from a text file.
func LoadCookieFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	return ParseCookieHeader(string(data)), nil
}
