// Package places implements the structured-API adapter over the Places
// text-search service. Each configured query template is expanded with each
// target city and paginated up to the per-query cap.
package places

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
	placesapi "github.com/sells-group/prospect-cli/pkg/places"
)

// AdapterName is the data_sources key for this adapter.
const AdapterName = "google_maps"

const defaultMaxResults = 20

// Adapter searches the Places API for locations matching query templates.
type Adapter struct {
	client         placesapi.Client
	limiter        *rate.Limiter
	pageTokenDelay time.Duration
	sleep          func(ctx context.Context, d time.Duration)
}

// New creates the adapter. client may be nil when the API key is not
// configured; Fetch then fails fast with an error.
func New(client placesapi.Client, cfg config.PlacesConfig) *Adapter {
	delay := cfg.RequestDelay()
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Adapter{
		client:         client,
		limiter:        rate.NewLimiter(limit, 1),
		pageTokenDelay: cfg.PageTokenDelay(),
		sleep:          sleepCtx,
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
	return ds.GoogleMaps.Enabled
}

// Fetch runs each query × city combination through text search. Request
// failures abort only the affected query's pagination; the loop continues
// with the next pair.
func (a *Adapter) Fetch(ctx context.Context, ds config.DataSources, streamKey string, profile config.TargetProfile) ([]prospect.Record, error) {
	src := ds.GoogleMaps
	log := zap.L().With(zap.String("adapter", AdapterName))

	if a.client == nil {
		return nil, eris.New("places adapter: no API key configured")
	}
	if len(src.SearchQueries) == 0 {
		log.Warn("no search_queries configured, skipping")
		return nil, nil
	}

	maxPerQuery := src.MaxResultsPerQuery
	if maxPerQuery <= 0 {
		maxPerQuery = defaultMaxResults
	}

	excluded := make([]string, 0, len(profile.ExcludeOperators))
	for _, op := range profile.ExcludeOperators {
		if trimmed := strings.ToLower(strings.TrimSpace(op)); trimmed != "" {
			excluded = append(excluded, trimmed)
		}
	}

	cities := profile.Geography.Cities
	if len(cities) == 0 {
		// Run each template once, unsubstituted.
		cities = []string{""}
	}

	var records []prospect.Record
	seen := make(map[string]bool)

	for _, template := range src.SearchQueries {
		for _, city := range cities {
			query := strings.TrimSpace(strings.ReplaceAll(template, "{city}", city))
			log.Info("searching", zap.String("query", query))

			found := a.search(ctx, query, streamKey, src.FetchDetails, maxPerQuery, log)
			for _, rec := range found {
				// The same location may come back from multiple templates.
				key := rec.DedupKey()
				if seen[key] {
					continue
				}
				seen[key] = true

				if excludedName(rec.CompanyName, excluded) {
					log.Debug("excluding operator match", zap.String("company", rec.CompanyName))
					continue
				}
				records = append(records, rec)
			}
		}
	}

	log.Info("collected unique results", zap.Int("count", len(records)))
	return records, nil
}

// excludedName reports whether the name matches any exclusion fragment,
// case-insensitively, in either containment direction.
func excludedName(name string, excluded []string) bool {
	lower := strings.ToLower(name)
	for _, frag := range excluded {
		if strings.Contains(lower, frag) || strings.Contains(frag, lower) {
			return true
		}
	}
	return false
}

// search executes a single paginated text search.
func (a *Adapter) search(ctx context.Context, query, streamKey string, fetchDetails bool, maxResults int, log *zap.Logger) []prospect.Record {
	var (
		records   []prospect.Record
		pageToken string
		fetched   int
	)

	for fetched < maxResults {
		// Fixed pacing between every page request, success or failure.
		if err := a.limiter.Wait(ctx); err != nil {
			log.Debug("pacing interrupted", zap.Error(err))
			break
		}
		if pageToken != "" {
			// Continuation tokens take a moment to become valid server-side.
			a.sleep(ctx, a.pageTokenDelay)
		}

		resp, err := a.client.TextSearch(ctx, query, pageToken)
		if err != nil {
			log.Error("search request failed", zap.String("query", query), zap.Error(err))
			break
		}
		if len(resp.Results) == 0 {
			break
		}

		for _, place := range resp.Results {
			if fetched >= maxResults {
				break
			}
			rec, ok := a.toRecord(place, streamKey)
			if !ok {
				continue
			}
			if fetchDetails && rec.SourceRecordID != "" {
				a.enrichDetails(ctx, &rec, log)
			}
			records = append(records, rec)
			fetched++
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	log.Debug("query complete", zap.String("query", query), zap.Int("results", len(records)))
	return records
}

// toRecord converts a single search result to a canonical record.
func (a *Adapter) toRecord(place placesapi.Result, streamKey string) (prospect.Record, bool) {
	name := strings.TrimSpace(place.Name)
	if name == "" {
		return prospect.Record{}, false
	}

	addr := prospect.ParseFormattedAddress(place.FormattedAddress)

	var descParts []string
	if place.Rating > 0 {
		descParts = append(descParts, fmt.Sprintf("Google rating: %.1f/5", place.Rating))
	}
	if len(place.Types) > 0 {
		tags := place.Types
		if len(tags) > 3 {
			tags = tags[:3]
		}
		readable := make([]string, len(tags))
		for i, t := range tags {
			readable[i] = strings.ReplaceAll(t, "_", " ")
		}
		descParts = append(descParts, "Types: "+strings.Join(readable, ", "))
	}
	if place.FormattedAddress != "" {
		descParts = append(descParts, "Address: "+place.FormattedAddress)
	}

	rec := prospect.New(name, AdapterName, streamKey)
	rec.Street = addr.Street
	rec.City = addr.City
	rec.StateCode = addr.StateCode
	rec.PostalCode = addr.PostalCode
	rec.Description = strings.Join(descParts, "\n")
	rec.SourceRecordID = place.PlaceID
	rec.Rating = place.Rating
	rec.Raw = map[string]any{
		"place_id":          place.PlaceID,
		"formatted_address": place.FormattedAddress,
		"types":             place.Types,
	}
	return rec, true
}

// enrichDetails fetches phone and website for a record. Failures are
// non-fatal; the record is kept with those fields unset.
func (a *Adapter) enrichDetails(ctx context.Context, rec *prospect.Record, log *zap.Logger) {
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	detail, err := a.client.Details(ctx, rec.SourceRecordID)
	if err != nil {
		log.Warn("detail fetch failed",
			zap.String("company", rec.CompanyName),
			zap.Error(err),
		)
		return
	}
	rec.Phone = detail.FormattedPhoneNumber
	rec.Website = detail.Website
}
