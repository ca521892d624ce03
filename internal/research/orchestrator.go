// Package research runs the discovery pipeline for one stream: fetch from
// every enabled adapter, deduplicate against the system of record, and
// persist survivors as research-stage leads.
package research

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/adapter"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/dedup"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/pkg/odoo"
)

// researchStageName is the pipeline stage new leads are created in.
const researchStageName = "Research"

// Summary is the outcome of one run. Errors counts failed lead creations
// and drives the CLI's exit code; SourceFailures counts adapters that
// errored or panicked, which are logged and survived without affecting
// the exit signal.
type Summary struct {
	TotalFetched   int `json:"total_fetched"`
	Created        int `json:"created"`
	SkippedDedup   int `json:"skipped_dedup"`
	SkippedLimit   int `json:"skipped_limit"`
	Errors         int `json:"errors"`
	SourceFailures int `json:"source_failures"`
}

// Options are per-invocation knobs on top of the stream profile.
type Options struct {
	// DryRun logs would-be creations instead of writing them.
	DryRun bool
	// Limit overrides the stream's research.max_new when positive.
	Limit int
}

// Orchestrator wires the adapters and the system of record into one
// synchronous pipeline.
type Orchestrator struct {
	sor      odoo.Client
	adapters []adapter.Adapter
}

// New creates an Orchestrator. Adapters run in the given order.
func New(sor odoo.Client, adapters []adapter.Adapter) *Orchestrator {
	return &Orchestrator{sor: sor, adapters: adapters}
}

// Run executes one pass for the stream. A returned error is fatal
// (configuration or stage resolution); everything below that is logged,
// counted in the summary, and survived.
func (o *Orchestrator) Run(ctx context.Context, stream *config.StreamConfig, opts Options) (*Summary, error) {
	log := zap.L().With(zap.String("stream", stream.Key))
	log.Info("starting research run", zap.Bool("dry_run", opts.DryRun))

	summary := &Summary{}

	matchFields, err := stream.MatchFields()
	if err != nil {
		return nil, err
	}

	stageID, countryID, err := o.resolveRefs(ctx, opts.DryRun, log)
	if err != nil {
		return nil, err
	}

	records := o.collect(ctx, stream, summary, log)
	summary.TotalFetched = len(records)

	valid := records[:0]
	for _, rec := range records {
		if !rec.Valid() {
			log.Warn("dropping record with no company name",
				zap.String("source", rec.DataSource),
			)
			continue
		}
		valid = append(valid, rec)
	}

	checker := dedup.NewChecker(o.sor, matchFields)
	newRecords, duplicates := checker.Partition(ctx, valid)
	summary.SkippedDedup = len(duplicates)

	stateIDs := o.resolveStates(ctx, newRecords, log)

	o.persist(ctx, newRecords, stageID, countryID, stateIDs, stream, opts, summary, log)

	log.Info("research run complete",
		zap.Int("total_fetched", summary.TotalFetched),
		zap.Int("created", summary.Created),
		zap.Int("skipped_dedup", summary.SkippedDedup),
		zap.Int("skipped_limit", summary.SkippedLimit),
		zap.Int("errors", summary.Errors),
		zap.Int("source_failures", summary.SourceFailures),
	)
	return summary, nil
}

// resolveRefs looks up the research stage and default country ids. A
// missing stage is fatal outside dry-run: every created lead would land in
// the wrong stage.
func (o *Orchestrator) resolveRefs(ctx context.Context, dryRun bool, log *zap.Logger) (stageID, countryID int, err error) {
	stageID, ok, err := o.sor.StageID(ctx, researchStageName)
	if err != nil || !ok {
		if err == nil {
			err = eris.Errorf("research: stage %q not found", researchStageName)
		}
		if !dryRun {
			return 0, 0, err
		}
		log.Warn("stage unresolved, continuing dry-run without it", zap.Error(err))
		stageID = 0
	}

	countryID, ok, cErr := o.sor.CountryID(ctx, "US")
	if cErr != nil || !ok {
		log.Warn("country unresolved, leads will carry no country id", zap.Error(cErr))
		countryID = 0
	}

	return stageID, countryID, nil
}

// collect runs every enabled adapter and aggregates results in adapter
// order. An adapter error or panic contributes whatever was collected and
// the loop continues.
func (o *Orchestrator) collect(ctx context.Context, stream *config.StreamConfig, summary *Summary, log *zap.Logger) []prospect.Record {
	var records []prospect.Record
	for _, a := range o.adapters {
		if !a.Enabled(stream.DataSources) {
			log.Debug("adapter disabled, skipping", zap.String("adapter", a.Name()))
			continue
		}

		log.Info("running adapter", zap.String("adapter", a.Name()))
		found, err := fetchSafe(ctx, a, stream.DataSources, stream.Key, stream.TargetProfile)
		if err != nil {
			log.Error("adapter failed",
				zap.String("adapter", a.Name()),
				zap.Int("partial_records", len(found)),
				zap.Error(err),
			)
			summary.SourceFailures++
		}
		records = append(records, found...)
	}
	return records
}

// fetchSafe calls the adapter with a panic guard so one misbehaving source
// cannot take down the run.
func fetchSafe(ctx context.Context, a adapter.Adapter, ds config.DataSources, streamKey string, profile config.TargetProfile) (records []prospect.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("adapter %s panicked: %v", a.Name(), r)
		}
	}()
	return a.Fetch(ctx, ds, streamKey, profile)
}

// resolveStates resolves each distinct state code once for the run.
// Unresolvable codes are cached as zero so the warning fires once.
func (o *Orchestrator) resolveStates(ctx context.Context, records []prospect.Record, log *zap.Logger) map[string]int {
	stateIDs := make(map[string]int)
	for _, rec := range records {
		code := rec.StateCode
		if code == "" {
			continue
		}
		if _, done := stateIDs[code]; done {
			continue
		}
		id, ok, err := o.sor.StateID(ctx, code, rec.CountryCode)
		if err != nil || !ok {
			log.Warn("state code unresolved, leads will carry no state id",
				zap.String("state_code", code),
				zap.Error(err),
			)
			id = 0
		}
		stateIDs[code] = id
	}
	return stateIDs
}

// persist creates leads for the new records up to the creation cap. The cap
// counts creation attempts, so a failed create still uses up the cap.
func (o *Orchestrator) persist(ctx context.Context, records []prospect.Record, stageID, countryID int, stateIDs map[string]int, stream *config.StreamConfig, opts Options, summary *Summary, log *zap.Logger) {
	maxNew := stream.Research.MaxNew
	if opts.Limit > 0 {
		maxNew = opts.Limit
	}

	attempts := 0
	for i, rec := range records {
		if maxNew > 0 && attempts >= maxNew {
			summary.SkippedLimit = len(records) - i
			log.Info("creation cap reached",
				zap.Int("cap", maxNew),
				zap.Int("skipped", summary.SkippedLimit),
			)
			break
		}
		attempts++

		payload := rec.Payload(stageID, stateIDs[rec.StateCode], countryID)

		if opts.DryRun {
			log.Info("dry-run: would create lead",
				zap.String("company", rec.CompanyName),
				zap.String("city", rec.City),
				zap.String("source", rec.DataSource),
			)
			summary.Created++
			continue
		}

		id, err := o.sor.CreateLead(ctx, payload)
		if err != nil {
			log.Error("create lead failed",
				zap.String("company", rec.CompanyName),
				zap.Error(err),
			)
			summary.Errors++
			continue
		}
		log.Info("created lead",
			zap.Int("lead_id", id),
			zap.String("company", rec.CompanyName),
			zap.String("source", rec.DataSource),
		)
		summary.Created++
	}
}
