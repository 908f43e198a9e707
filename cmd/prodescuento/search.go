package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/herrera199898/Pro-descuento/config"
	"github.com/herrera199898/Pro-descuento/models"
	"github.com/herrera199898/Pro-descuento/pipeline"
	"github.com/herrera199898/Pro-descuento/scraper"
	"github.com/herrera199898/Pro-descuento/search"
	"github.com/spf13/cobra"
)

// exportAuto marks the spreadsheet path to be derived from the query.
const exportAuto = "auto"

var estadoByName = map[string]models.Condition{
	"cualquiera":      models.ConditionAny,
	"nuevo":           models.ConditionNew,
	"usado":           models.ConditionUsed,
	"reacondicionado": models.ConditionReconditioned,
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		country              string
		limit                int
		asJSON               bool
		condition            string
		estado               string
		allResults           bool
		maxPages             int
		includeCondition     bool
		includeInternational bool
		minPrice             int
		maxPrice             int
		word                 string
		includeWords         []string
		excludeWords         []string
		minDiscount          int
		sortPrice            bool
		exportXLSX           string
		conditionWorkers     int
		skipConditionExport  bool
		cookie               string
		cookieFile           string
		searchURL            string
	)

	cmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Search listings and print, export or serialize the results",
		Example: `  prodescuento search notebook rtx --country cl --limit 5
  prodescuento search notebook --min-discount 10 --sort-price --export-xlsx
  prodescuento search --search-url "https://listado.mercadolibre.cl/notebook_NoIndex_True" --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			started := time.Now()

			cfg := config.Default()
			cfg.Query = strings.TrimSpace(strings.Join(args, " "))
			cfg.Country = country
			cfg.Limit = limit
			cfg.FetchAll = allResults
			cfg.MaxPages = maxPages
			cfg.SortPrice = sortPrice
			cfg.IncludeInternational = includeInternational
			cfg.SearchURL = strings.TrimSpace(searchURL)
			cfg.ConditionWorkers = conditionWorkers
			cfg.Criteria = models.Criteria{
				MinPrice:     max(0, minPrice),
				MaxPrice:     max(0, maxPrice),
				Word:         word,
				IncludeWords: includeWords,
				ExcludeWords: excludeWords,
				MinDiscount:  min(max(0, minDiscount), 100),
			}

			conditionFilter := models.Condition(condition)
			if estado != "" {
				mapped, ok := estadoByName[estado]
				if !ok {
					return fmt.Errorf("unknown --estado value %q", estado)
				}
				conditionFilter = mapped
			}
			if conditionFilter.Known() {
				cfg.Criteria.Condition = conditionFilter
			} else if conditionFilter != "" && conditionFilter != models.ConditionAny {
				return fmt.Errorf("unknown --condition value %q", conditionFilter)
			}

			switch {
			case cookieFile != "":
				header, err := config.LoadCookieFile(cookieFile)
				if err != nil {
					return err
				}
				cfg.CookieHeader = header
			case cookie != "":
				cfg.CookieHeader = config.ParseCookieHeader(cookie)
			}

			exporting := cmd.Flags().Changed("export-xlsx")
			cfg.IncludeCondition = includeCondition || (exporting && !skipConditionExport)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			items, err := scraper.RunSearch(ctx, cfg, nil)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return errors.New("no results found, or the listing markup changed")
			}

			defer func() {
				slog.Info("search finished",
					slog.Int("items", len(items)),
					slog.Duration("elapsed", time.Since(started)),
				)
			}()

			if exporting {
				path := exportPath(exportXLSX, cfg.Query, cfg.Country)
				writer, err := pipeline.NewXLSXWriter(path)
				if err != nil {
					return err
				}
				if err := writer.Write(items); err != nil {
					return err
				}
				if err := writer.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Excel generado: %s\n", path)
				return nil
			}

			if asJSON {
				encoded, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return fmt.Errorf("encode results: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				return nil
			}

			printItems(cmd, cfg, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&country, "country", "cl", fmt.Sprintf("Marketplace country (%s)", strings.Join(search.Countries(), ", ")))
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().StringVar(&condition, "condition", "any", "Filter by product condition (any, new, used, reconditioned)")
	cmd.Flags().StringVar(&estado, "estado", "", "Spanish alias of --condition (cualquiera, nuevo, usado, reacondicionado)")
	cmd.Flags().BoolVar(&allResults, "all-results", false, "Walk pagination to fetch every result")
	cmd.Flags().IntVar(&maxPages, "max-pages", 20, "Maximum pages to walk with --all-results (0 = unlimited)")
	cmd.Flags().BoolVar(&includeCondition, "include-condition", false, "Read each product's condition from its detail page")
	cmd.Flags().BoolVar(&includeInternational, "include-international", false, "Include international listings (excluded by default)")
	cmd.Flags().IntVar(&minPrice, "min-price", 0, "Minimum price (integer, no separators)")
	cmd.Flags().IntVar(&maxPrice, "max-price", 0, "Maximum price (integer, no separators)")
	cmd.Flags().StringVar(&word, "word", "", "Require a word in the title")
	cmd.Flags().StringArrayVar(&includeWords, "include-word", nil, "Require a word in the title (repeatable)")
	cmd.Flags().StringArrayVar(&excludeWords, "exclude-word", nil, "Exclude results with a word in the title (repeatable)")
	cmd.Flags().IntVar(&minDiscount, "min-discount", 0, "Minimum discount percent (e.g. 10)")
	cmd.Flags().BoolVar(&sortPrice, "sort-price", false, "Sort results by ascending price")
	cmd.Flags().StringVar(&exportXLSX, "export-xlsx", exportAuto, "Export to Excel; pass --export-xlsx=PATH to pick the output file")
	cmd.Flags().Lookup("export-xlsx").NoOptDefVal = exportAuto
	cmd.Flags().IntVar(&conditionWorkers, "condition-workers", 16, "Workers used to read per-product condition")
	cmd.Flags().BoolVar(&skipConditionExport, "skip-condition-in-export", false, "Skip per-product condition reads when exporting")
	cmd.Flags().StringVar(&cookie, "cookie", "", "Inline cookie header: 'a=1; b=2'")
	cmd.Flags().StringVar(&cookieFile, "cookie-file", "", "Text file with a full cookie header")
	cmd.Flags().StringVar(&searchURL, "search-url", "", "Exact listing URL to replicate browser filters")

	return cmd
}

func printItems(cmd *cobra.Command, cfg *config.Config, items []*models.Item) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Resultados para: %q [%s] (mostrando %d)\n\n", cfg.Query, strings.ToUpper(cfg.Country), len(items))
	for _, item := range items {
		fmt.Fprintf(out, "%d. %s\n", item.Position, item.Title)
		price := item.Price
		if price == "" {
			price = "N/D"
		}
		fmt.Fprintf(out, "   Precio: %s\n", price)
		if item.DiscountPercent != nil {
			fmt.Fprintf(out, "   Descuento: %d%%\n", *item.DiscountPercent)
		}
		if item.Condition != "" {
			fmt.Fprintf(out, "   Condición: %s\n", item.Condition)
		}
		fmt.Fprintf(out, "   Link: %s\n", item.Link)
	}
}

var unsafePathRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func exportPath(flagValue, query, country string) string {
	if flagValue != "" && flagValue != exportAuto {
		return flagValue
	}
	safeQuery := strings.Trim(unsafePathRe.ReplaceAllString(query, "_"), "_")
	if len(safeQuery) > 40 {
		safeQuery = safeQuery[:40]
	}
	if safeQuery == "" {
		safeQuery = "busqueda"
	}
	name := fmt.Sprintf("mercadolibre_%s_%s_%s.xlsx", country, safeQuery, time.Now().Format("20060102_150405"))
	return filepath.Join("exports", name)
}
