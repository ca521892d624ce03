package places

import (
	"context"

	placesapi "github.com/sells-group/prospect-cli/pkg/places"
)

type searchCall struct {
	query     string
	pageToken string
}

// mockClient implements placesapi.Client for testing. Pages for a query are
// served in order; queries with no configured pages return an empty page.
type mockClient struct {
	pages     map[string][]*placesapi.TextSearchResponse
	errs      map[string]error
	details   map[string]*placesapi.DetailsResult
	detailErr error

	searchCalls []searchCall
	detailCalls []string
	pageIdx     map[string]int
}

func (m *mockClient) TextSearch(_ context.Context, query, pageToken string) (*placesapi.TextSearchResponse, error) {
	m.searchCalls = append(m.searchCalls, searchCall{query: query, pageToken: pageToken})
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	if m.pageIdx == nil {
		m.pageIdx = make(map[string]int)
	}
	seq := m.pages[query]
	i := m.pageIdx[query]
	if i >= len(seq) {
		return &placesapi.TextSearchResponse{Status: "ZERO_RESULTS"}, nil
	}
	m.pageIdx[query]++
	return seq[i], nil
}

func (m *mockClient) Details(_ context.Context, placeID string) (*placesapi.DetailsResult, error) {
	m.detailCalls = append(m.detailCalls, placeID)
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	if d := m.details[placeID]; d != nil {
		return d, nil
	}
	return &placesapi.DetailsResult{}, nil
}
