// Package batch runs a configured list of searches in one shot and writes
// per-query artifacts plus a merged, re-ranked markdown digest.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/pipeline"
	"github.com/herrera199898/Pro-descuento/scraper"
	"gopkg.in/yaml.v3"
)

// Config is the batch job configuration file.
type Config struct {
	Country string        `yaml:"country"`
	Queries []QueryConfig `yaml:"queries"`
}

// QueryConfig describes one named search of the batch.
type QueryConfig struct {
	Name                 string   `yaml:"name"`
	Terms                string   `yaml:"terms"`
	Country              string   `yaml:"country"`
	AllResults           *bool    `yaml:"all_results"`
	MaxPages             int      `yaml:"max_pages"`
	MinPrice             int      `yaml:"min_price"`
	MaxPrice             int      `yaml:"max_price"`
	MinDiscount          int      `yaml:"min_discount"`
	Condition            string   `yaml:"condition"`
	IncludeWords         []string `yaml:"include_words"`
	ExcludeWords         []string `yaml:"exclude_words"`
	SortPrice            *bool    `yaml:"sort_price"`
	IncludeInternational bool     `yaml:"include_international"`
	ExportXLSX           *bool    `yaml:"export_xlsx"`
}

// Load reads and validates a batch configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse batch config: %w", err)
	}
	if cfg.Country == "" {
		cfg.Country = "cl"
	}
	if len(cfg.Queries) == 0 {
		return nil, fmt.Errorf("batch config has no queries")
	}
	for i, q := range cfg.Queries {
		if strings.TrimSpace(q.Terms) == "" {
			name := q.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("query %s has no terms", name)
		}
	}
	return &cfg, nil
}

// QueryResult is the outcome of one named search.
type QueryResult struct {
	Name     string
	Items    []*models.Item
	JSONPath string
	XLSXPath string
}

// TaggedItem is an item annotated with the query it came from, used in the
// merged artifact.
type TaggedItem struct {
	Query string `json:"query"`
	*models.Item
}

// Runner executes a batch configuration.
type Runner struct {
	cfg          *Config
	outputDir    string
	cookieHeader string
	search       scraper.SearchFunc
	metrics      *scraper.Metrics
	now          func() time.Time
}

// NewRunner builds a runner writing under outputDir. metrics may be nil.
func NewRunner(cfg *Config, outputDir, cookieHeader string, metrics *scraper.Metrics) *Runner {
	return &Runner{
		cfg:          cfg,
		outputDir:    outputDir,
		cookieHeader: cookieHeader,
		search:       scraper.RunSearch,
		metrics:      metrics,
		now:          time.Now,
	}
}

// WithSearchFunc replaces the search implementation for tests.
func (r *Runner) WithSearchFunc(fn scraper.SearchFunc) *Runner {
	r.search = fn
	return r
}

// Run executes every configured query sequentially and writes the run
// directory: per-query JSON and spreadsheet, the merged all_results.json
// and the summary digest. It returns the run directory path.
func (r *Runner) Run(ctx context.Context) (string, error) {
	runDir := filepath.Join(r.outputDir, r.now().UTC().Format("20060102_150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	var results []QueryResult
	for _, q := range r.cfg.Queries {
		result, err := r.runQuery(ctx, q, runDir)
		if err != nil {
			return "", fmt.Errorf("query %q: %w", q.Name, err)
		}
		slog.Info("batch query finished",
			slog.String("query", result.Name),
			slog.Int("items", len(result.Items)),
		)
		results = append(results, result)
	}

	var merged []TaggedItem
	for _, result := range results {
		for _, item := range result.Items {
			merged = append(merged, TaggedItem{Query: result.Name, Item: item})
		}
	}
	if err := writeJSONFile(filepath.Join(runDir, "all_results.json"), merged); err != nil {
		return "", err
	}

	summary, err := os.Create(filepath.Join(runDir, "summary.md"))
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	defer summary.Close()
	if err := writeSummary(summary, results, r.now().UTC()); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return runDir, nil
}

func (r *Runner) runQuery(ctx context.Context, q QueryConfig, runDir string) (QueryResult, error) {
	cfg := r.configFor(q)
	items, err := r.search(ctx, cfg, r.metrics)
	if err != nil {
		return QueryResult{}, err
	}

	name := strings.TrimSpace(q.Name)
	if name == "" {
		name = "query"
	}
	safeName := sanitizeName(name)

	result := QueryResult{Name: name, Items: items}
	result.JSONPath = filepath.Join(runDir, safeName+".json")

	var writer pipeline.OutputWriter
	if q.ExportXLSX == nil || *q.ExportXLSX {
		result.XLSXPath = filepath.Join(runDir, safeName+".xlsx")
		writer, err = pipeline.NewDualWriter(result.JSONPath, result.XLSXPath)
	} else {
		writer, err = pipeline.NewJSONWriter(result.JSONPath)
	}
	if err != nil {
		return QueryResult{}, err
	}
	if err := writer.Write(items); err != nil {
		return QueryResult{}, err
	}
	if err := writer.Close(); err != nil {
		return QueryResult{}, err
	}
	return result, nil
}

func (r *Runner) configFor(q QueryConfig) *config.Config {
	cfg := config.Default()
	cfg.Query = strings.TrimSpace(q.Terms)
	cfg.Country = r.cfg.Country
	if q.Country != "" {
		cfg.Country = q.Country
	}
	cfg.FetchAll = q.AllResults == nil || *q.AllResults
	cfg.MaxPages = q.MaxPages
	cfg.SortPrice = q.SortPrice == nil || *q.SortPrice
	cfg.IncludeInternational = q.IncludeInternational
	cfg.CookieHeader = r.cookieHeader
	cfg.IncludeCondition = q.ExportXLSX == nil || *q.ExportXLSX
	cfg.Criteria = models.Criteria{
		MinPrice:     max(0, q.MinPrice),
		MaxPrice:     max(0, q.MaxPrice),
		IncludeWords: q.IncludeWords,
		ExcludeWords: q.ExcludeWords,
		MinDiscount:  min(max(0, q.MinDiscount), 100),
	}
	if cond := models.Condition(q.Condition); cond.Known() {
		cfg.Criteria.Condition = cond
	}
	return cfg
}

func writeJSONFile(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
