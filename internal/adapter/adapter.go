// Package adapter defines the capability contract every prospect data
// source implements.
package adapter

import (
	"context"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/prospect"
)

// Adapter fetches raw data from one external source and emits canonical
// prospect records.
//
// Fetch handles its own unit-level failures (a query, page, or code that
// errors is logged and skipped) and returns whatever was collected, possibly
// nothing. A non-nil error means the adapter could not run at all, e.g.
// missing credentials; collected records are still returned alongside it.
// The orchestrator treats both errors and panics as an empty contribution
// and continues with the remaining adapters.
type Adapter interface {
	// Name is the adapter's key in the stream config data_sources section.
	Name() string

	// Enabled reports whether the stream config switches this adapter on.
	Enabled(ds config.DataSources) bool

	// Fetch collects canonical records for the given stream.
	Fetch(ctx context.Context, ds config.DataSources, streamKey string, profile config.TargetProfile) ([]prospect.Record, error)
}
