// Package parser extracts listing items from raw MercadoLibre result pages.
//
// Extraction is structural pattern matching over bounded text windows rather
// than full HTML parsing: each title anchor opens a "block" that ends at the
// next title wrapper (or a fixed cap), and every sibling field is searched
// only inside that block. The pattern literals are kept as named variables so
// fixes for markup drift stay localized. The whole package is best-effort by
// design of the upstream markup; it never fails, it only finds less.
package parser

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/herrera199898/Pro-descuento/models"
)

// blockCap bounds a card's search window when no closing title wrapper is
// found after the anchor.
const blockCap = 6000

// titleWrapperMarker closes the current card's block.
const titleWrapperMarker = `<h3 class="poly-component__title-wrapper">`

var (
	titleAnchorRe = regexp.MustCompile(`(?s)<a href="(https://[^"]+)"[^>]*class="poly-component__title"[^>]*>(.*?)</a>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)

	currentPriceRe = regexp.MustCompile(`(?s)<div class="poly-price__current".*?</div>`)
	fractionRe     = regexp.MustCompile(`data-andes-money-amount-fraction="true">([^<]+)</span>`)
	ariaLabelRe    = regexp.MustCompile(`aria-label="([^"]+)"`)

	imageTagRe = regexp.MustCompile(`<img[^>]+class="[^"]*poly-component__picture[^"]*"[^>]+>`)
	imgSrcRe   = regexp.MustCompile(`\ssrc="([^"]+)"`)
	imgDataRe  = regexp.MustCompile(`\sdata-src="([^"]+)"`)

	discountRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*OFF`),
		regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*dcto`),
		regexp.MustCompile(`(?i)(\d{1,3})\s*%\s*de\s*descuento`),
		regexp.MustCompile(`(?i)andes-money-amount-discount[^>]*>\s*(\d{1,3})\s*%`),
		regexp.MustCompile(`(?i)poly-price__discount[^>]*>\s*(\d{1,3})\s*%`),
	}

	nextRelRe   = regexp.MustCompile(`<a[^>]+rel="next"[^>]+href="([^"]+)"`)
	nextTitleRe = regexp.MustCompile(`<a[^>]+title="Siguiente"[^>]+href="([^"]+)"`)

	itemConditionRe = regexp.MustCompile(`"itemCondition"\s*:\s*"([^"]+)"`)
)

// ChallengeMarker appears in responses served by the anti-bot interstitial
// instead of real listing markup.
const ChallengeMarker = "This page requires JavaScript to work"

// LooksLikeResultsPage reports whether doc carries server-rendered result
// markup. Pages without any of these markers are shell pages.
func LooksLikeResultsPage(doc string) bool {
	return strings.Contains(doc, "poly-component__title") ||
		strings.Contains(doc, "ui-search-layout") ||
		strings.Contains(doc, "poly-card__content")
}

// ParseItems extracts up to limit listing items from one results page.
func ParseItems(doc string, limit int) []*models.Item {
	var items []*models.Item
	for _, match := range titleAnchorRe.FindAllStringSubmatchIndex(doc, -1) {
		start := match[0]
		end := strings.Index(doc[start+1:], titleWrapperMarker)
		if end == -1 {
			end = min(len(doc), start+blockCap)
		} else {
			end += start + 1
		}
		block := doc[start:end]

		rawLink := html.UnescapeString(doc[match[2]:match[3]])
		link, _, _ := strings.Cut(rawLink, "#")
		// Tracking links resolve to a redirect, not a product page.
		if strings.Contains(link, "mclicks") || strings.Contains(link, "mclics") {
			continue
		}
		title := CleanText(doc[match[4]:match[5]])
		if title == "" {
			continue
		}

		items = append(items, &models.Item{
			Position:        len(items) + 1,
			Title:           title,
			Price:           priceFromBlock(block),
			Link:            link,
			Image:           imageFromBlock(block),
			DiscountPercent: discountFromBlock(block),
			Condition:       conditionFromBlock(block),
		})
		if len(items) >= limit {
			break
		}
	}
	return items
}

// NextPageURL finds the continuation link of a results page and resolves it
// against currentURL. It returns "" when the page has no next link.
func NextPageURL(doc, currentURL string) string {
	match := nextRelRe.FindStringSubmatch(doc)
	if match == nil {
		match = nextTitleRe.FindStringSubmatch(doc)
	}
	if match == nil {
		return ""
	}
	href := html.UnescapeString(match[1])
	base, err := url.Parse(currentURL)
	if err != nil {
		return href
	}
	next, err := base.Parse(href)
	if err != nil {
		return ""
	}
	return next.String()
}

// ConditionFromDetailPage reads the structured-data condition field embedded
// in a product detail page. Unknown or missing values map to the zero
// Condition.
func ConditionFromDetailPage(doc string) models.Condition {
	match := itemConditionRe.FindStringSubmatch(doc)
	if match == nil {
		return ""
	}
	value := strings.ToLower(html.UnescapeString(match[1]))
	switch {
	case strings.Contains(value, "newcondition"):
		return models.ConditionNew
	case strings.Contains(value, "usedcondition"):
		return models.ConditionUsed
	case strings.Contains(value, "refurbishedcondition"), strings.Contains(value, "reconditionedcondition"):
		return models.ConditionReconditioned
	}
	return ""
}

// CleanText strips tags, unescapes entities and trims whitespace.
func CleanText(fragment string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(fragment, "")))
}

func priceFromBlock(block string) string {
	scope := block
	if current := currentPriceRe.FindString(block); current != "" {
		scope = current
	}
	if match := fractionRe.FindStringSubmatch(scope); match != nil {
		if value := CleanText(match[1]); value != "" {
			return "$ " + value
		}
		return ""
	}
	// Any aria-label in the price scope that is not the crossed-out
	// pre-discount amount ("Antes: ...") carries the display price.
	for _, match := range ariaLabelRe.FindAllStringSubmatch(scope, -1) {
		if strings.HasPrefix(match[1], "Antes:") {
			continue
		}
		return CleanText(match[1])
	}
	return ""
}

func imageFromBlock(block string) string {
	tag := imageTagRe.FindString(block)
	if tag == "" {
		return ""
	}
	match := imgSrcRe.FindStringSubmatch(tag)
	if match == nil {
		match = imgDataRe.FindStringSubmatch(tag)
	}
	if match == nil {
		return ""
	}
	return html.UnescapeString(match[1])
}

func discountFromBlock(block string) *int {
	for _, re := range discountRes {
		match := re.FindStringSubmatch(block)
		if match == nil {
			continue
		}
		value, err := strconv.Atoi(match[1])
		if err != nil || value < 0 || value > 100 {
			continue
		}
		return &value
	}
	return nil
}

// conditionFromBlock infers the advertised condition from the card text.
// Priority matters: "reacondicionado" also contains "nuevo"-free text but a
// refurbished card may mention "usado" elsewhere, so the most specific
// keyword wins.
func conditionFromBlock(block string) models.Condition {
	text := strings.ToLower(CleanText(block))
	switch {
	case strings.Contains(text, "reacondicion"):
		return models.ConditionReconditioned
	case strings.Contains(text, "usado"):
		return models.ConditionUsed
	case strings.Contains(text, "nuevo con caja abierta"):
		return models.ConditionNew
	case strings.Contains(text, "nuevo"):
		return models.ConditionNew
	}
	return ""
}
