package research

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/pkg/odoo"
)

// mockSoR implements odoo.Client for testing.
type mockSoR struct {
	stageID    int
	stageErr   error
	countryID  int
	stateIDs   map[string]int
	leads      map[string][]odoo.Lead
	createErr  map[string]error
	nextLeadID int

	stateCalls  []string
	findCalls   []string
	createdRows []map[string]any
}

func (m *mockSoR) FindSimilar(_ context.Context, name, _ string) ([]odoo.Lead, error) {
	m.findCalls = append(m.findCalls, name)
	return m.leads[name], nil
}

func (m *mockSoR) StateID(_ context.Context, stateCode, _ string) (int, bool, error) {
	m.stateCalls = append(m.stateCalls, stateCode)
	id, ok := m.stateIDs[stateCode]
	return id, ok, nil
}

func (m *mockSoR) CountryID(_ context.Context, _ string) (int, bool, error) {
	return m.countryID, m.countryID != 0, nil
}

func (m *mockSoR) StageID(_ context.Context, _ string) (int, bool, error) {
	if m.stageErr != nil {
		return 0, false, m.stageErr
	}
	return m.stageID, m.stageID != 0, nil
}

func (m *mockSoR) CreateLead(_ context.Context, values map[string]any) (int, error) {
	name, _ := values["partner_name"].(string)
	if err := m.createErr[name]; err != nil {
		return 0, err
	}
	m.createdRows = append(m.createdRows, values)
	m.nextLeadID++
	return m.nextLeadID, nil
}

// mockAdapter implements adapter.Adapter for testing.
type mockAdapter struct {
	name    string
	enabled bool
	records []prospect.Record
	err     error
	panics  bool

	fetchCalls int
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Enabled(_ config.DataSources) bool { return m.enabled }

func (m *mockAdapter) Fetch(_ context.Context, _ config.DataSources, _ string, _ config.TargetProfile) ([]prospect.Record, error) {
	m.fetchCalls++
	if m.panics {
		panic("adapter blew up")
	}
	return m.records, m.err
}
