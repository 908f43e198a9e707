// Package pipeline post-processes collected items: predicate filtering,
// price ranking and output writing.
package pipeline

import (
	"sort"
	"strings"

	"github.com/herrera199898/Pro-descuento/models"
)

// ApplyFilters returns the items satisfying every predicate in criteria.
// Predicates run cheapest first so later stages (notably condition
// enrichment) see as few items as possible.
func ApplyFilters(items []*models.Item, criteria models.Criteria) []*models.Item {
	include := normalizeWords(criteria.IncludeWords)
	if word := strings.ToLower(strings.TrimSpace(criteria.Word)); word != "" {
		include = append(include, word)
	}
	exclude := normalizeWords(criteria.ExcludeWords)

	out := make([]*models.Item, 0, len(items))
	for _, item := range items {
		if !priceInRange(item, criteria.MinPrice, criteria.MaxPrice) {
			continue
		}
		title := strings.ToLower(item.Title)
		if !containsAll(title, include) {
			continue
		}
		if containsAny(title, exclude) {
			continue
		}
		if criteria.MinDiscount > 0 {
			if item.DiscountPercent == nil || *item.DiscountPercent < criteria.MinDiscount {
				continue
			}
		}
		out = append(out, item)
	}
	return out
}

// SortByPrice orders items by ascending parsed price, placing every priced
// item before every unpriced one, and renumbers positions 1..N.
func SortByPrice(items []*models.Item) []*models.Item {
	sorted := make([]*models.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, iOK := sorted[i].PriceValue()
		pj, jOK := sorted[j].PriceValue()
		if iOK != jOK {
			return iOK
		}
		return iOK && pi < pj
	})
	Renumber(sorted)
	return sorted
}

// Renumber reassigns positions as a dense 1..N sequence over items.
func Renumber(items []*models.Item) {
	for i, item := range items {
		item.Position = i + 1
	}
}

func priceInRange(item *models.Item, minPrice, maxPrice int) bool {
	if minPrice <= 0 && maxPrice <= 0 {
		return true
	}
	value, ok := item.PriceValue()
	if !ok {
		// A bound is set and the item has no parseable price.
		return false
	}
	if minPrice > 0 && value < minPrice {
		return false
	}
	if maxPrice > 0 && value > maxPrice {
		return false
	}
	return true
}

func normalizeWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word != "" {
			out = append(out, word)
		}
	}
	return out
}

func containsAll(haystack string, needles []string) bool {
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
