package batch

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/herrera199898/Pro-descuento/models"
	"github.com/nao1215/markdown"
)

// topN bounds the merged digest table.
const topN = 20

// writeSummary writes the human-readable run digest: per-query totals and
// a merged Top-N table ranked by (discount desc, price asc).
func writeSummary(w io.Writer, results []QueryResult, generatedAt time.Time) error {
	md := markdown.NewMarkdown(w)

	md.H1("Resumen diario MercadoLibre")
	md.PlainText("")
	md.PlainTextf("Generado: %s", generatedAt.Format(time.RFC3339))
	md.PlainText("")

	md.H2("Totales por busqueda")
	md.PlainText("")
	totals := make([]string, 0, len(results))
	for _, r := range results {
		totals = append(totals, fmt.Sprintf("%s: %d resultados", r.Name, len(r.Items)))
	}
	md.BulletList(totals...)
	md.PlainText("")

	var all []*models.Item
	for _, r := range results {
		all = append(all, r.Items...)
	}
	ranked := rankByDeal(all)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	md.H2(fmt.Sprintf("Top %d productos (descuento alto + precio bajo)", topN))
	md.PlainText("")
	rows := make([][]string, 0, len(ranked))
	for i, item := range ranked {
		price := item.Price
		if price == "" {
			price = "N/D"
		}
		discount := "0%"
		if item.DiscountPercent != nil {
			discount = fmt.Sprintf("%d%%", *item.DiscountPercent)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strings.ReplaceAll(item.Title, "|", " "),
			price,
			discount,
			item.Condition.Label(),
			item.Link,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Titulo", "Precio", "Descuento", "Estado", "Link"},
		Rows:   rows,
	})

	return md.Build()
}

// rankByDeal orders items best-deal first: highest discount, then lowest
// price, with unpriced items ranked as very expensive.
func rankByDeal(items []*models.Item) []*models.Item {
	ranked := make([]*models.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := discountOf(ranked[i]), discountOf(ranked[j])
		if di != dj {
			return di > dj
		}
		return priceOrHuge(ranked[i]) < priceOrHuge(ranked[j])
	})
	return ranked
}

func discountOf(item *models.Item) int {
	if item.DiscountPercent == nil {
		return 0
	}
	return *item.DiscountPercent
}

func priceOrHuge(item *models.Item) int {
	if value, ok := item.PriceValue(); ok {
		return value
	}
	return int(^uint(0) >> 1)
}
