package research

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/adapter"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/pkg/odoo"
)

func newStream(maxNew int) *config.StreamConfig {
	return &config.StreamConfig{
		Key: "stream_c",
		Dedup: config.DedupConfig{
			MatchOn: []string{"company_name", "city"},
		},
		Research: config.StreamLimits{MaxNew: maxNew},
	}
}

func newSoR() *mockSoR {
	return &mockSoR{
		stageID:   4,
		countryID: 233,
		stateIDs:  map[string]int{"NY": 35},
	}
}

func recordsNamed(names ...string) []prospect.Record {
	out := make([]prospect.Record, len(names))
	for i, n := range names {
		out[i] = prospect.New(n, "google_maps", "stream_c")
	}
	return out
}

func TestRun_HappyPath(t *testing.T) {
	sor := newSoR()
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery", "Lakeside Storage")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalFetched)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 0, summary.SkippedDedup)
	assert.Equal(t, 0, summary.Errors)
	require.Len(t, sor.createdRows, 2)
	assert.Equal(t, 4, sor.createdRows[0]["stage_id"])
	assert.Equal(t, 233, sor.createdRows[0]["country_id"])
}

func TestRun_DisabledAdapterSkipped(t *testing.T) {
	sor := newSoR()
	off := &mockAdapter{name: "trade_data", enabled: false, records: recordsNamed("Should Not Appear")}
	on := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery")}

	orch := New(sor, []adapter.Adapter{off, on})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, off.fetchCalls)
	assert.Equal(t, 1, summary.TotalFetched)
}

func TestRun_AdapterFailureIsolated(t *testing.T) {
	sor := newSoR()
	broken := &mockAdapter{name: "trade_data", enabled: true, err: eris.New("tradedata adapter: no base URL configured")}
	healthy := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery")}

	orch := New(sor, []adapter.Adapter{broken, healthy})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err, "an adapter failure never fails the run")

	assert.Equal(t, 1, summary.TotalFetched)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.SourceFailures)
	assert.Equal(t, 0, summary.Errors, "a source failure with clean persistence keeps the exit signal clean")
}

func TestRun_AdapterPanicIsolated(t *testing.T) {
	sor := newSoR()
	panicky := &mockAdapter{name: "trade_data", enabled: true, panics: true}
	healthy := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery")}

	orch := New(sor, []adapter.Adapter{panicky, healthy})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.SourceFailures)
	assert.Equal(t, 0, summary.Errors)
}

func TestRun_DuplicatesSkipped(t *testing.T) {
	sor := newSoR()
	sor.leads = map[string][]odoo.Lead{
		"Acme Bakery Inc": {{ID: 9, PartnerName: "Acme Bakery Incorporated"}},
	}
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery Inc", "Lakeside Storage")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedDedup)
	assert.Equal(t, 1, summary.Created)
	require.Len(t, sor.createdRows, 1)
	assert.Equal(t, "Lakeside Storage", sor.createdRows[0]["partner_name"])
}

func TestRun_CreationCap(t *testing.T) {
	sor := newSoR()
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("One", "Two", "Three", "Four", "Five")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(2), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 3, summary.SkippedLimit)
	assert.Len(t, sor.createdRows, 2)
}

func TestRun_CapCountsFailedAttempts(t *testing.T) {
	sor := newSoR()
	sor.createErr = map[string]error{"One": eris.New("odoo: create lead: validation error")}
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("One", "Two", "Three")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(2), Options{})
	require.NoError(t, err)

	// The failed attempt counted against the cap, so only Two was created.
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.SkippedLimit)
	require.Len(t, sor.createdRows, 1)
	assert.Equal(t, "Two", sor.createdRows[0]["partner_name"])
}

func TestRun_LimitOptionOverridesStream(t *testing.T) {
	sor := newSoR()
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("One", "Two", "Three")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(10), Options{Limit: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 2, summary.SkippedLimit)
}

func TestRun_DryRunCreatesNothing(t *testing.T) {
	sor := newSoR()
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery")}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(0), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Created, "dry-run counts would-be creations")
	assert.Empty(t, sor.createdRows)
}

func TestRun_StageMissingFatalOutsideDryRun(t *testing.T) {
	sor := newSoR()
	sor.stageID = 0
	a := &mockAdapter{name: "google_maps", enabled: true, records: recordsNamed("Acme Bakery")}

	orch := New(sor, []adapter.Adapter{a})
	_, err := orch.Run(context.Background(), newStream(0), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage")

	// Dry-run proceeds without the stage.
	summary, err := orch.Run(context.Background(), newStream(0), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestRun_StateCodesResolvedOncePerRun(t *testing.T) {
	sor := newSoR()
	records := recordsNamed("One", "Two", "Three")
	records[0].StateCode = "NY"
	records[1].StateCode = "NY"
	records[2].StateCode = "ZZ" // unknown
	a := &mockAdapter{name: "google_maps", enabled: true, records: records}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"NY", "ZZ"}, sor.stateCalls, "each distinct code resolved once")
	assert.Equal(t, 3, summary.Created)

	require.Len(t, sor.createdRows, 3)
	assert.Equal(t, 35, sor.createdRows[0]["state_id"])
	_, present := sor.createdRows[2]["state_id"]
	assert.False(t, present, "unresolved state omits the id")
}

func TestRun_InvalidRecordsDropped(t *testing.T) {
	sor := newSoR()
	records := append(recordsNamed("Acme Bakery"), prospect.New("   ", "trade_data", "stream_c"))
	a := &mockAdapter{name: "google_maps", enabled: true, records: records}

	orch := New(sor, []adapter.Adapter{a})
	summary, err := orch.Run(context.Background(), newStream(0), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalFetched)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, []string{"Acme Bakery"}, sor.findCalls, "blank names never reach dedup")
}
