package places

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	placesapi "github.com/sells-group/prospect-cli/pkg/places"
)

func newTestAdapter(client placesapi.Client) (*Adapter, *int) {
	a := New(client, config.PlacesConfig{})
	sleeps := 0
	a.sleep = func(_ context.Context, _ time.Duration) { sleeps++ }
	return a, &sleeps
}

func sources(queries []string, fetchDetails bool, maxPerQuery int) config.DataSources {
	return config.DataSources{
		GoogleMaps: config.GoogleMapsSource{
			Enabled:            true,
			SearchQueries:      queries,
			FetchDetails:       fetchDetails,
			MaxResultsPerQuery: maxPerQuery,
		},
	}
}

func TestFetch_NoClient(t *testing.T) {
	a, _ := newTestAdapter(nil)

	_, err := a.Fetch(context.Background(), sources([]string{"storage {city}"}, false, 5), "stream_c", config.TargetProfile{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestFetch_ExpandsQueriesAcrossCities(t *testing.T) {
	client := &mockClient{pages: map[string][]*placesapi.TextSearchResponse{}}
	a, _ := newTestAdapter(client)

	profile := config.TargetProfile{
		Geography: config.Geography{Cities: []string{"Syracuse NY", "Rochester NY"}},
	}

	_, err := a.Fetch(context.Background(), sources([]string{"self storage {city}"}, false, 5), "stream_c", profile)
	require.NoError(t, err)

	require.Len(t, client.searchCalls, 2)
	assert.Equal(t, "self storage Syracuse NY", client.searchCalls[0].query)
	assert.Equal(t, "self storage Rochester NY", client.searchCalls[1].query)
}

func TestFetch_DedupAcrossTemplates(t *testing.T) {
	page := func(places ...placesapi.Result) []*placesapi.TextSearchResponse {
		return []*placesapi.TextSearchResponse{{Results: places, Status: "OK"}}
	}
	shared := placesapi.Result{
		Name:             "Lakeside Storage",
		PlaceID:          "ChIJ-lakeside",
		FormattedAddress: "500 Erie Blvd, Syracuse, NY 13202, USA",
	}
	client := &mockClient{pages: map[string][]*placesapi.TextSearchResponse{
		"self storage Syracuse NY":  page(shared),
		"storage units Syracuse NY": page(shared, placesapi.Result{Name: "Salt City Storage", PlaceID: "ChIJ-salt"}),
	}}
	a, _ := newTestAdapter(client)

	profile := config.TargetProfile{
		Geography: config.Geography{Cities: []string{"Syracuse NY"}},
	}

	records, err := a.Fetch(context.Background(),
		sources([]string{"self storage {city}", "storage units {city}"}, false, 10), "stream_c", profile)
	require.NoError(t, err)

	require.Len(t, records, 2, "the shared place must appear once")
	assert.Equal(t, "Lakeside Storage", records[0].CompanyName)
	assert.Equal(t, "Salt City Storage", records[1].CompanyName)
}

func TestFetch_ExcludeOperators(t *testing.T) {
	client := &mockClient{pages: map[string][]*placesapi.TextSearchResponse{
		"self storage Syracuse NY": {{
			Status: "OK",
			Results: []placesapi.Result{
				{Name: "Example Operator - Downtown", PlaceID: "p1"},
				{Name: "EXAMPLE OPERATOR", PlaceID: "p2"},
				{Name: "Independent Storage Co", PlaceID: "p3"},
			},
		}},
	}}
	a, _ := newTestAdapter(client)

	profile := config.TargetProfile{
		Geography:        config.Geography{Cities: []string{"Syracuse NY"}},
		ExcludeOperators: []string{"Example Operator"},
	}

	records, err := a.Fetch(context.Background(), sources([]string{"self storage {city}"}, false, 10), "stream_c", profile)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Independent Storage Co", records[0].CompanyName)
}

func TestFetch_PaginationRespectsCap(t *testing.T) {
	client := &mockClient{pages: map[string][]*placesapi.TextSearchResponse{
		"warehouses": {
			{
				Status:        "OK",
				NextPageToken: "page-2",
				Results: []placesapi.Result{
					{Name: "Warehouse One", PlaceID: "w1"},
					{Name: "Warehouse Two", PlaceID: "w2"},
				},
			},
			{
				Status: "OK",
				Results: []placesapi.Result{
					{Name: "Warehouse Three", PlaceID: "w3"},
					{Name: "Warehouse Four", PlaceID: "w4"},
				},
			},
		},
	}}
	a, sleeps := newTestAdapter(client)

	records, err := a.Fetch(context.Background(), sources([]string{"warehouses"}, false, 3), "stream_a", config.TargetProfile{})
	require.NoError(t, err)

	require.Len(t, records, 3, "cap truncates mid-page")
	require.Len(t, client.searchCalls, 2)
	assert.Equal(t, "page-2", client.searchCalls[1].pageToken)
	assert.Equal(t, 1, *sleeps, "token propagation delay before the continuation request")
}

func TestFetch_RequestFailureIsolatedPerQuery(t *testing.T) {
	client := &mockClient{
		errs: map[string]error{"broken query": eris.New("places: send request: timeout")},
		pages: map[string][]*placesapi.TextSearchResponse{
			"working query": {{
				Status:  "OK",
				Results: []placesapi.Result{{Name: "Survivor Storage", PlaceID: "s1"}},
			}},
		},
	}
	a, _ := newTestAdapter(client)

	records, err := a.Fetch(context.Background(), sources([]string{"broken query", "working query"}, false, 5), "stream_c", config.TargetProfile{})
	require.NoError(t, err, "a request failure is not an adapter failure")

	require.Len(t, records, 1)
	assert.Equal(t, "Survivor Storage", records[0].CompanyName)
}

func TestFetch_DetailsEnrichment(t *testing.T) {
	client := &mockClient{
		pages: map[string][]*placesapi.TextSearchResponse{
			"self storage": {{
				Status:  "OK",
				Results: []placesapi.Result{{Name: "Lakeside Storage", PlaceID: "ChIJ-lakeside"}},
			}},
		},
		details: map[string]*placesapi.DetailsResult{
			"ChIJ-lakeside": {FormattedPhoneNumber: "(315) 555-0100", Website: "https://lakeside.example"},
		},
	}
	a, _ := newTestAdapter(client)

	records, err := a.Fetch(context.Background(), sources([]string{"self storage"}, true, 5), "stream_c", config.TargetProfile{})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "(315) 555-0100", records[0].Phone)
	assert.Equal(t, "https://lakeside.example", records[0].Website)
	assert.Equal(t, []string{"ChIJ-lakeside"}, client.detailCalls)
}

func TestFetch_DetailsFailureKeepsRecord(t *testing.T) {
	client := &mockClient{
		pages: map[string][]*placesapi.TextSearchResponse{
			"self storage": {{
				Status:  "OK",
				Results: []placesapi.Result{{Name: "Lakeside Storage", PlaceID: "ChIJ-lakeside"}},
			}},
		},
		detailErr: eris.New("places: details status OVER_QUERY_LIMIT"),
	}
	a, _ := newTestAdapter(client)

	records, err := a.Fetch(context.Background(), sources([]string{"self storage"}, true, 5), "stream_c", config.TargetProfile{})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Empty(t, records[0].Phone)
	assert.Empty(t, records[0].Website)
}

func TestToRecord_Description(t *testing.T) {
	a, _ := newTestAdapter(&mockClient{})

	rec, ok := a.toRecord(placesapi.Result{
		Name:             "Lakeside Storage",
		PlaceID:          "ChIJ-lakeside",
		FormattedAddress: "500 Erie Blvd, Syracuse, NY 13202, USA",
		Rating:           4.5,
		Types:            []string{"self_storage", "storage", "point_of_interest", "establishment"},
	}, "stream_c")
	require.True(t, ok)

	assert.Equal(t, "500 Erie Blvd", rec.Street)
	assert.Equal(t, "Syracuse", rec.City)
	assert.Equal(t, "NY", rec.StateCode)
	assert.Equal(t, "13202", rec.PostalCode)
	assert.Contains(t, rec.Description, "Google rating: 4.5/5")
	assert.Contains(t, rec.Description, "self storage, storage, point of interest")
	assert.NotContains(t, rec.Description, "establishment", "only the first three types are kept")
	assert.Contains(t, rec.Description, "Address: 500 Erie Blvd, Syracuse, NY 13202, USA")
}

func TestToRecord_EmptyNameRejected(t *testing.T) {
	a, _ := newTestAdapter(&mockClient{})

	_, ok := a.toRecord(placesapi.Result{Name: "   ", PlaceID: "p1"}, "stream_c")
	assert.False(t, ok)
}
