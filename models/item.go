// Package models defines data structures shared across the scraper.
package models

// Condition is the product condition advertised on a listing.
type Condition string

// Known product conditions.
const (
	ConditionAny           Condition = "any"
	ConditionNew           Condition = "new"
	ConditionUsed          Condition = "used"
	ConditionReconditioned Condition = "reconditioned"
)

// Known reports whether c is one of the three concrete conditions.
func (c Condition) Known() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionReconditioned:
		return true
	}
	return false
}

// Label returns the Spanish display label used in exports, or "N/D" when
// the condition is unknown.
func (c Condition) Label() string {
	switch c {
	case ConditionNew:
		return "Nuevo"
	case ConditionUsed:
		return "Usado"
	case ConditionReconditioned:
		return "Reacondicionado"
	}
	return "N/D"
}

// Item represents one crawled product listing.
//
// Link doubles as the identity key for de-duplication. Position is assigned
// by the crawler in insertion order and renumbered after filtering and
// sorting. Condition may be filled in later by the enricher.
type Item struct {
	Position        int       `json:"position"`
	Title           string    `json:"title"`
	Price           string    `json:"price,omitempty"`
	Link            string    `json:"link"`
	Image           string    `json:"image,omitempty"`
	DiscountPercent *int      `json:"discount_percent,omitempty"`
	Condition       Condition `json:"condition,omitempty"`
}

// PriceValue parses the display price into an integer by concatenating its
// digit runs ("$ 199.990" -> 199990). ok is false when the item carries no
// parseable price; callers treat that as "no price" for filtering and rank
// items without one after every priced item.
func (it *Item) PriceValue() (int, bool) {
	return ParsePriceValue(it.Price)
}

// ParsePriceValue extracts the numeric value from a price display string.
func ParsePriceValue(price string) (int, bool) {
	value := 0
	seen := false
	for _, r := range price {
		if r < '0' || r > '9' {
			continue
		}
		seen = true
		if value > (1<<62)/10 {
			return 0, false
		}
		value = value*10 + int(r-'0')
	}
	if !seen {
		return 0, false
	}
	return value, true
}

// Criteria holds the result filters supplied once per run.
//
// Zero bounds mean "unset". Word is a single required substring kept for
// compatibility with the CLI flag; IncludeWords generalizes it.
type Criteria struct {
	MinPrice     int       `json:"min_price"`
	MaxPrice     int       `json:"max_price"`
	Word         string    `json:"word"`
	IncludeWords []string  `json:"include_words"`
	ExcludeWords []string  `json:"exclude_words"`
	MinDiscount  int       `json:"min_discount"`
	Condition    Condition `json:"condition"`
}

// CrawlStats summarizes one crawl invocation for logging and reporting.
type CrawlStats struct {
	Pages            int
	Requests         int
	Retries          int
	ChallengesSolved int
	Items            int
}
