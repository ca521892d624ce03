package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/adapter"
	placesadapter "github.com/sells-group/prospect-cli/internal/adapter/places"
	"github.com/sells-group/prospect-cli/internal/adapter/tradedata"
	"github.com/sells-group/prospect-cli/internal/research"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/odoo"
	placesapi "github.com/sells-group/prospect-cli/pkg/places"
)

var (
	researchStream string
	researchDryRun bool
	researchLimit  int
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Run prospect discovery for a stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		summary, err := runResearch(ctx, researchStream, research.Options{
			DryRun: researchDryRun,
			Limit:  researchLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return eris.Wrap(err, "encode summary")
		}

		if summary.Errors > 0 {
			return eris.Errorf("research completed with %d errors", summary.Errors)
		}
		return nil
	},
}

// runResearch loads the stream, wires the pipeline, and records the run in
// the history store. History failures are warnings; the run proceeds.
func runResearch(ctx context.Context, streamKey string, opts research.Options) (*research.Summary, error) {
	if streamKey == "" {
		return nil, eris.New("--stream is required")
	}
	if err := cfg.Odoo.Validate(); err != nil {
		return nil, err
	}

	stream, err := loadStream(streamKey)
	if err != nil {
		return nil, err
	}

	sor := odoo.NewClient(odoo.Config{
		URL:      cfg.Odoo.URL,
		Database: cfg.Odoo.Database,
		User:     cfg.Odoo.User,
		APIKey:   cfg.Odoo.APIKey,
	})

	orch := research.New(sor, buildAdapters())

	st := openHistory(ctx)
	var runID string
	if st != nil {
		defer st.Close() //nolint:errcheck
		if run, err := st.CreateRun(ctx, streamKey, opts.DryRun); err != nil {
			zap.L().Warn("run history: create failed", zap.Error(err))
		} else {
			runID = run.ID
		}
	}

	summary, err := orch.Run(ctx, stream, opts)

	if st != nil && runID != "" {
		status := store.RunStatusComplete
		errMsg := ""
		if err != nil {
			status = store.RunStatusFailed
			errMsg = err.Error()
		}
		if hErr := st.CompleteRun(ctx, runID, summary, status, errMsg); hErr != nil {
			zap.L().Warn("run history: complete failed", zap.Error(hErr))
		}
	}

	return summary, err
}

// buildAdapters returns the adapter registry in its fixed run order. The
// places client is nil without an API key; the adapter reports the missing
// credential itself when a stream enables it.
func buildAdapters() []adapter.Adapter {
	var placesClient placesapi.Client
	if cfg.Places.APIKey != "" {
		placesClient = placesapi.NewClient(cfg.Places.APIKey,
			placesapi.WithBaseURL(cfg.Places.BaseURL))
	}
	return []adapter.Adapter{
		placesadapter.New(placesClient, cfg.Places),
		tradedata.New(cfg.TradeData),
	}
}

// openHistory opens the run-history store, or returns nil when it is
// unavailable. Discovery never fails because history does.
func openHistory(ctx context.Context) store.Store {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history: store unavailable", zap.Error(err))
		return nil
	}
	if err := st.Migrate(ctx); err != nil {
		zap.L().Warn("run history: migrate failed", zap.Error(err))
		st.Close() //nolint:errcheck
		return nil
	}
	return st
}

func init() {
	researchCmd.Flags().StringVar(&researchStream, "stream", "", "stream key, e.g. stream_a (required)")
	researchCmd.Flags().BoolVar(&researchDryRun, "dry-run", false, "log would-be lead creations without writing")
	researchCmd.Flags().IntVar(&researchLimit, "limit", 0, "override the stream's max new leads for this run")
	rootCmd.AddCommand(researchCmd)
}
