package tradedata

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The scraped site has no stable markup contract. Each extraction target
// carries an ordered list of candidate selectors, tried first-match-wins,
// so a markup change usually means reordering or appending here rather
// than a code change.

// cardSelectors locate the per-company result card container.
var cardSelectors = []string{
	"div.company-list-item",
	"div[class*='company-card']",
	"div[class*='CompanyCard']",
	"article[class*='company']",
	"li[class*='company']",
	"[data-company-name]",
}

// nameSelectors locate the company name within a card.
var nameSelectors = []string{
	"[data-company-name]",
	"h2",
	"h3",
	"[class*='company-name']",
	"[class*='CompanyName']",
	"a[href*='/company/']",
}

// locationSelectors locate the "City, ST" text within a card.
var locationSelectors = []string{
	"[class*='location']",
	"[class*='city']",
	"[class*='address']",
	"[data-location]",
}

// originSelectors locate the supplier-origin text within a card.
var originSelectors = []string{
	"[class*='supplier']",
	"[class*='origin']",
	"[class*='country']",
	"[data-supplier-countries]",
}

// findCards tries each card selector in order; the first selector yielding
// any match wins for the page. Returns nil when the cascade is exhausted.
func findCards(doc *goquery.Document) (*goquery.Selection, string) {
	for _, selector := range cardSelectors {
		cards := doc.Find(selector)
		if cards.Length() > 0 {
			return cards, selector
		}
	}
	return nil, ""
}

// extractText tries each selector in order, matching the card itself as
// well as its descendants. Attribute selectors ([data-*]) yield the
// attribute value; element selectors yield the trimmed text. The first
// non-empty value wins.
func extractText(card *goquery.Selection, selectors []string) string {
	for _, selector := range selectors {
		found := card.Find(selector).First()
		if found.Length() == 0 {
			found = card.Filter(selector).First()
		}
		if found.Length() == 0 {
			continue
		}
		if attr, ok := dataAttrName(selector); ok {
			if v, exists := found.Attr(attr); exists && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
			continue
		}
		if text := strings.TrimSpace(found.Text()); text != "" {
			return text
		}
	}
	return ""
}

// dataAttrName extracts the attribute name from a bare attribute selector
// such as "[data-company-name]".
func dataAttrName(selector string) (string, bool) {
	if strings.HasPrefix(selector, "[data-") && strings.HasSuffix(selector, "]") {
		return selector[1 : len(selector)-1], true
	}
	return "", false
}

// firstLinkText is the terminal fallback for the name field: the text of
// the first anchor in the card.
func firstLinkText(card *goquery.Selection) string {
	return strings.TrimSpace(card.Find("a").First().Text())
}
