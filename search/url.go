// Package search builds MercadoLibre listing URLs from a query, a country
// and the active result filters. It is pure string construction with no I/O.
package search

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/herrera199898/Pro-descuento/models"
)

// domainByCountry maps the supported country codes to marketplace domains.
var domainByCountry = map[string]string{
	"ar": "mercadolibre.com.ar",
	"cl": "mercadolibre.cl",
	"mx": "mercadolibre.com.mx",
	"co": "mercadolibre.com.co",
	"pe": "mercadolibre.com.pe",
}

// Filter path segments understood by the listing frontend. The values are
// opaque site identifiers; only their order of appearance matters.
const (
	localShippingToken = "SHIPPING*ORIGIN_10215068"
	noIndexToken       = "NoIndex_True"
	sortPriceToken     = "OrderId_PRICE"
)

var conditionToken = map[models.Condition]string{
	models.ConditionNew:           "ITEM*CONDITION_2230284",
	models.ConditionUsed:          "ITEM*CONDITION_2230581",
	models.ConditionReconditioned: "ITEM*CONDITION_2234833",
}

// Domain returns the marketplace domain for a country code.
func Domain(country string) (string, error) {
	domain, ok := domainByCountry[country]
	if !ok {
		return "", fmt.Errorf("unsupported country %q (valid: %s)", country, strings.Join(Countries(), ", "))
	}
	return domain, nil
}

// Countries lists the supported country codes in sorted order.
func Countries() []string {
	out := make([]string, 0, len(domainByCountry))
	for code := range domainByCountry {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Options carries everything the builder needs for one listing URL.
type Options struct {
	Query                string
	Country              string
	Start                int // 1-based result offset; _Desde_ is emitted only when > 1
	ExcludeInternational bool
	MinPrice             int
	MaxPrice             int
	MinDiscount          int
	SortPrice            bool
	Condition            models.Condition
}

// ListingURL builds the primary listing URL for o.
func ListingURL(o Options) (string, error) {
	return buildURL(o, "")
}

// CategoryListingURL builds the category-scoped alternate listing URL, used
// as a fallback when the primary form returns a shell page.
func CategoryListingURL(o Options) (string, error) {
	return buildURL(o, "_CustId_0_")
}

func buildURL(o Options, prefix string) (string, error) {
	domain, err := Domain(o.Country)
	if err != nil {
		return "", err
	}
	base := fmt.Sprintf("https://listado.%s/%s%s", domain, prefix, slugify(o.Query))
	if o.Start > 1 {
		base = fmt.Sprintf("%s_Desde_%d", base, o.Start)
	}
	tokens := filterTokens(o)
	if len(tokens) == 0 {
		return base, nil
	}
	return base + "_" + strings.Join(tokens, "_"), nil
}

// filterTokens assembles the underscore-joined filter segments in the fixed
// order the listing frontend expects.
func filterTokens(o Options) []string {
	var tokens []string
	if o.SortPrice {
		tokens = append(tokens, sortPriceToken)
	}
	if o.MinPrice > 0 || o.MaxPrice > 0 {
		low := max(0, o.MinPrice)
		high := o.MaxPrice
		if high <= 0 {
			high = 999999999
		}
		if high < low {
			low, high = high, low
		}
		tokens = append(tokens, fmt.Sprintf("PriceRange_%d-%d", low, high))
	}
	if o.MinDiscount > 0 {
		tokens = append(tokens, fmt.Sprintf("Discount_%d-100", min(max(1, o.MinDiscount), 100)))
	}
	if token, ok := conditionToken[o.Condition]; ok {
		tokens = append(tokens, token)
	}
	tokens = append(tokens, noIndexToken)
	if o.ExcludeInternational {
		tokens = append(tokens, localShippingToken)
	}
	return tokens
}

func slugify(query string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(query)), "+", "-")
}
