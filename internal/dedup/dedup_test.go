package dedup

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/pkg/odoo"
)

var nameCityFields = []config.MatchField{config.MatchCompanyName, config.MatchCity}

func TestIsDuplicate_BlankName_NoQuery(t *testing.T) {
	sor := &mockSoR{}
	c := NewChecker(sor, nameCityFields)

	rec := prospect.New("   ", "google_maps", "stream_c")
	dup, err := c.IsDuplicate(context.Background(), rec)

	require.NoError(t, err)
	assert.False(t, dup)
	assert.Empty(t, sor.calls, "blank names must not reach the system of record")
}

func TestIsDuplicate_SimilarNameAboveThreshold(t *testing.T) {
	sor := &mockSoR{
		leadsByName: map[string][]odoo.Lead{
			"Acme Bakery Inc": {
				{ID: 7, PartnerName: "Acme Bakery Incorporated", City: "Syracuse"},
			},
		},
	}
	c := NewChecker(sor, nameCityFields)

	rec := prospect.New("Acme Bakery Inc", "google_maps", "stream_c")
	rec.City = "Syracuse"

	dup, err := c.IsDuplicate(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, dup)

	require.Len(t, sor.calls, 1)
	assert.Equal(t, "Syracuse", sor.calls[0].city, "city match field narrows the lookup")
}

func TestIsDuplicate_DissimilarCandidates(t *testing.T) {
	sor := &mockSoR{
		leadsByName: map[string][]odoo.Lead{
			"Acme Bakery": {
				{ID: 1, PartnerName: "Acme Plumbing Supply"},
				{ID: 2, PartnerName: "Acme's Auto Parts"},
			},
		},
	}
	c := NewChecker(sor, nameCityFields)

	dup, err := c.IsDuplicate(context.Background(), prospect.New("Acme Bakery", "google_maps", "stream_c"))
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicate_CityNotConfigured(t *testing.T) {
	sor := &mockSoR{}
	c := NewChecker(sor, []config.MatchField{config.MatchCompanyName})

	rec := prospect.New("Acme Bakery", "google_maps", "stream_c")
	rec.City = "Syracuse"

	_, err := c.IsDuplicate(context.Background(), rec)
	require.NoError(t, err)

	require.Len(t, sor.calls, 1)
	assert.Empty(t, sor.calls[0].city, "city must not narrow the lookup unless configured")
}

func TestIsDuplicate_StreetRefinement(t *testing.T) {
	fields := []config.MatchField{config.MatchCompanyName, config.MatchCity, config.MatchStreet}
	leads := []odoo.Lead{
		{ID: 1, PartnerName: "Lakeside Storage", Street: "500 Erie Blvd"},
	}

	t.Run("street differs", func(t *testing.T) {
		sor := &mockSoR{leadsByName: map[string][]odoo.Lead{"Lakeside Storage": leads}}
		c := NewChecker(sor, fields)

		rec := prospect.New("Lakeside Storage", "google_maps", "stream_c")
		rec.Street = "900 State St"

		dup, err := c.IsDuplicate(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, dup, "same name at a different street is a distinct property")
	})

	t.Run("street matches case-insensitively", func(t *testing.T) {
		sor := &mockSoR{leadsByName: map[string][]odoo.Lead{"Lakeside Storage": leads}}
		c := NewChecker(sor, fields)

		rec := prospect.New("Lakeside Storage", "google_maps", "stream_c")
		rec.Street = "500 ERIE BLVD"

		dup, err := c.IsDuplicate(context.Background(), rec)
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("candidate has no street", func(t *testing.T) {
		sor := &mockSoR{leadsByName: map[string][]odoo.Lead{"Lakeside Storage": leads}}
		c := NewChecker(sor, fields)

		dup, err := c.IsDuplicate(context.Background(), prospect.New("Lakeside Storage", "google_maps", "stream_c"))
		require.NoError(t, err)
		assert.True(t, dup, "refinement only applies when the candidate has a street")
	})
}

func TestPartition_OrderAndFailureIsolation(t *testing.T) {
	sor := &mockSoR{
		leadsByName: map[string][]odoo.Lead{
			"Acme Bakery": {{ID: 1, PartnerName: "Acme Bakery"}},
		},
		errByName: map[string]error{
			"Flaky Lookup Co": eris.New("odoo: send request: timeout"),
		},
	}
	c := NewChecker(sor, nameCityFields)

	records := []prospect.Record{
		prospect.New("Acme Bakery", "google_maps", "stream_c"),
		prospect.New("Brand New Storage", "google_maps", "stream_c"),
		prospect.New("Flaky Lookup Co", "google_maps", "stream_c"),
		prospect.New("Another New One", "trade_data", "stream_c"),
	}

	newRecords, duplicates := c.Partition(context.Background(), records)

	require.Len(t, duplicates, 1)
	assert.Equal(t, "Acme Bakery", duplicates[0].CompanyName)

	// Lookup failure classifies as new; input order survives.
	require.Len(t, newRecords, 3)
	assert.Equal(t, "Brand New Storage", newRecords[0].CompanyName)
	assert.Equal(t, "Flaky Lookup Co", newRecords[1].CompanyName)
	assert.Equal(t, "Another New One", newRecords[2].CompanyName)
}
