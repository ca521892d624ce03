// Package store persists research run history. The pipeline itself never
// depends on it; history failures are warnings at the CLI layer.
package store

import (
	"context"
	"time"

	"github.com/sells-group/prospect-cli/internal/research"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded research run.
type Run struct {
	ID        string            `json:"id"`
	StreamKey string            `json:"stream_key"`
	DryRun    bool              `json:"dry_run"`
	Status    RunStatus         `json:"status"`
	Summary   *research.Summary `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	StreamKey string    `json:"stream_key,omitempty"`
	Status    RunStatus `json:"status,omitempty"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// Store defines the run-history persistence interface.
type Store interface {
	CreateRun(ctx context.Context, streamKey string, dryRun bool) (*Run, error)
	CompleteRun(ctx context.Context, runID string, summary *research.Summary, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
