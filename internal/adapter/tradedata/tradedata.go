// Package tradedata implements the scraped-source adapter: it retrieves
// trade-data search results as raw HTML and parses them defensively with a
// selector cascade, since the source offers no stable machine interface.
package tradedata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
)

// AdapterName is the data_sources key for this adapter.
const AdapterName = "trade_data"

const rawTextCap = 500

var (
	cityStateRe  = regexp.MustCompile(`^(.+?),?\s+([A-Z]{2})$`)
	originCodeRe = regexp.MustCompile(`\(([A-Z]{2})\)`)
)

// Adapter scrapes the trade-data service for importers by HS code.
type Adapter struct {
	baseURL   string
	userAgent string
	delay     time.Duration
	http      *http.Client
	sleep     func(ctx context.Context, d time.Duration)
}

// New creates the adapter from the trade-data settings.
func New(cfg config.TradeDataConfig) *Adapter {
	timeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		delay:     cfg.RequestDelay(),
		http:      &http.Client{Timeout: timeout},
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return AdapterName }

// Enabled implements adapter.Adapter.
func (a *Adapter) Enabled(ds config.DataSources) bool {
	return ds.TradeData.Enabled
}

// session holds per-fetch state: the URL cache and nothing else. A URL is
// fetched at most once per run; repeated lookups are served from cache.
type session struct {
	urlCache map[string]string
}

// Fetch collects importer records for each configured source code. A
// network failure for one code yields no records for that code and the
// loop continues.
func (a *Adapter) Fetch(ctx context.Context, ds config.DataSources, streamKey string, profile config.TargetProfile) ([]prospect.Record, error) {
	src := ds.TradeData
	log := zap.L().With(zap.String("adapter", AdapterName))

	if a.baseURL == "" {
		return nil, eris.New("tradedata adapter: no base URL configured")
	}
	if len(src.SourceCodes) == 0 {
		log.Warn("no source_codes configured, skipping")
		return nil, nil
	}

	excludeFrom := make(map[string]bool, len(src.ExcludeOriginsFrom))
	for _, c := range src.ExcludeOriginsFrom {
		excludeFrom[strings.ToUpper(strings.TrimSpace(c))] = true
	}

	log.Info("fetching source codes",
		zap.Int("count", len(src.SourceCodes)),
		zap.Strings("codes", src.SourceCodes),
	)

	sess := &session{urlCache: make(map[string]string)}

	var records []prospect.Record
	seenNames := make(map[string]bool)

	for _, code := range src.SourceCodes {
		found := a.fetchByCode(ctx, sess, code, streamKey, excludeFrom, log)
		for _, rec := range found {
			key := strings.ToLower(strings.TrimSpace(rec.CompanyName))
			if seenNames[key] {
				log.Debug("in-run duplicate, skipping", zap.String("company", rec.CompanyName))
				continue
			}
			seenNames[key] = true
			records = append(records, rec)
		}
	}

	log.Info("collected unique prospects", zap.Int("count", len(records)))
	return records, nil
}

// normalizeCode turns an HS code like "3923.30" into the site's URL form
// "39233000": dots and spaces stripped, six-digit codes padded to eight.
func normalizeCode(code string) string {
	normalized := strings.NewReplacer(".", "", " ", "").Replace(code)
	if len(normalized) == 6 {
		normalized += "00"
	}
	return normalized
}

// fetchByCode fetches and parses one code's detail page, falling back to
// the keyword-search URL when the detail page parses to zero cards.
func (a *Adapter) fetchByCode(ctx context.Context, sess *session, code, streamKey string, excludeFrom map[string]bool, log *zap.Logger) []prospect.Record {
	detailURL := a.baseURL + "/hs-code/" + normalizeCode(code)
	log.Info("fetching code page", zap.String("code", code), zap.String("url", detailURL))

	html, ok := a.getCached(ctx, sess, detailURL, log)
	if !ok {
		return nil
	}

	records := a.parseCards(html, detailURL, code, streamKey, excludeFrom, log)

	if len(records) == 0 {
		// Both codes with sparse detail pages and markup drift land here;
		// the generic search page is the second chance either way.
		fallbackURL := a.baseURL + "/search?q=" + url.QueryEscape(code)
		log.Debug("zero results from code page, trying search fallback",
			zap.String("code", code),
			zap.String("url", fallbackURL),
		)
		if html, ok := a.getCached(ctx, sess, fallbackURL, log); ok {
			records = a.parseCards(html, fallbackURL, code, streamKey, excludeFrom, log)
		}
	}

	log.Info("code complete", zap.String("code", code), zap.Int("records", len(records)))
	return records
}

// getCached fetches a URL with session caching and the politeness delay.
// ok is false on any network failure.
func (a *Adapter) getCached(ctx context.Context, sess *session, fetchURL string, log *zap.Logger) (string, bool) {
	if html, hit := sess.urlCache[fetchURL]; hit {
		log.Debug("cache hit", zap.String("url", fetchURL))
		return html, true
	}

	// Conservative delay before every fetch; the source documents no rate
	// limit so we pick our own.
	a.sleep(ctx, a.delay)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		log.Error("build request failed", zap.String("url", fetchURL), zap.Error(err))
		return "", false
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := a.http.Do(req)
	if err != nil {
		log.Error("fetch failed", zap.String("url", fetchURL), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		log.Error("fetch failed",
			zap.String("url", fetchURL),
			zap.Int("status", resp.StatusCode),
		)
		return "", false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("read body failed", zap.String("url", fetchURL), zap.Error(err))
		return "", false
	}

	html := string(body)
	sess.urlCache[fetchURL] = html
	log.Debug("fetched", zap.String("url", fetchURL), zap.Int("bytes", len(html)))
	return html, true
}

// parseCards extracts records from one results page. A page where the card
// cascade is exhausted yields zero records with a warning, which is how
// operators tell "markup changed" apart from "service down".
func (a *Adapter) parseCards(html, pageURL, code, streamKey string, excludeFrom map[string]bool, log *zap.Logger) []prospect.Record {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Error("parse html failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	cards, matched := findCards(doc)
	if cards == nil {
		log.Warn("no cards parsed: selector cascade exhausted, markup may have changed",
			zap.String("url", pageURL),
		)
		return nil
	}
	log.Debug("cards found",
		zap.Int("count", cards.Length()),
		zap.String("selector", matched),
	)

	var records []prospect.Record
	cards.Each(func(_ int, card *goquery.Selection) {
		rec, ok := a.parseCard(card, code, streamKey)
		if !ok {
			return
		}
		if excludedByOrigin(rec.Raw["origin_text"], excludeFrom) {
			log.Debug("excluding: all origins in exclude list",
				zap.String("company", rec.CompanyName),
			)
			return
		}
		records = append(records, rec)
	})

	return records
}

// excludedByOrigin reports whether every parsed origin of the record is in
// the configured exclude set. Each comma-separated part is reduced to its
// parenthesized ISO code when one is present. Records with no origin text
// are never excluded.
func excludedByOrigin(rawOrigin any, excludeFrom map[string]bool) bool {
	originText, _ := rawOrigin.(string)
	if len(excludeFrom) == 0 || originText == "" {
		return false
	}
	matched := false
	for _, part := range strings.Split(originText, ",") {
		origin := strings.ToUpper(strings.TrimSpace(part))
		if origin == "" {
			continue
		}
		if m := originCodeRe.FindStringSubmatch(part); m != nil {
			origin = m[1]
		}
		if !excludeFrom[origin] {
			return false
		}
		matched = true
	}
	return matched
}

// parseCard extracts one record from a card element. Cards with no
// extractable name are dropped.
func (a *Adapter) parseCard(card *goquery.Selection, code, streamKey string) (prospect.Record, bool) {
	name := extractText(card, nameSelectors)
	if name == "" {
		name = firstLinkText(card)
	}
	if name == "" {
		return prospect.Record{}, false
	}

	locationText := extractText(card, locationSelectors)
	city, stateCode := parseCityState(locationText)

	originText := extractText(card, originSelectors)
	originCountry := normalizeOrigin(originText)

	var descParts []string
	if originText != "" {
		descParts = append(descParts, "Origin countries: "+originText)
	}
	descParts = append(descParts, fmt.Sprintf("Source: %s HS %s", AdapterName, code))

	rec := prospect.New(name, AdapterName, streamKey)
	rec.City = city
	rec.StateCode = stateCode
	rec.Description = strings.Join(descParts, " | ")
	rec.AlreadyImporting = prospect.Bool(true)
	rec.ImportOriginCountry = originCountry

	rawText := truncate(strings.Join(strings.Fields(card.Text()), " "), rawTextCap)
	rec.Raw = map[string]any{
		"origin_text": originText,
		"card_text":   rawText,
	}
	return rec, true
}

// parseCityState splits "City, ST" or "City ST" into components; text
// without a trailing two-letter code is kept whole as the city.
func parseCityState(locationText string) (city, stateCode string) {
	locationText = strings.TrimSpace(locationText)
	if locationText == "" {
		return "", ""
	}
	if m := cityStateRe.FindStringSubmatch(locationText); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	return locationText, ""
}

// normalizeOrigin reduces origin text to an ISO code when one appears in
// parentheses ("China (CN)" becomes "CN"), otherwise keeps the raw text
// capped at 50 characters. Downstream enrichment refines it.
func normalizeOrigin(originText string) string {
	if originText == "" {
		return ""
	}
	if m := originCodeRe.FindStringSubmatch(originText); m != nil {
		return m[1]
	}
	return strings.TrimSpace(truncate(originText, 50))
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
