package dedup

import (
	"context"

	"github.com/sells-group/prospect-cli/pkg/odoo"
)

type findCall struct {
	name string
	city string
}

// mockSoR implements SystemOfRecord for testing.
type mockSoR struct {
	leadsByName map[string][]odoo.Lead
	errByName   map[string]error
	calls       []findCall
}

func (m *mockSoR) FindSimilar(_ context.Context, name, city string) ([]odoo.Lead, error) {
	m.calls = append(m.calls, findCall{name: name, city: city})
	if err := m.errByName[name]; err != nil {
		return nil, err
	}
	return m.leadsByName[name], nil
}
