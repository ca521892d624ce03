package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/research"
)

const shutdownTimeout = 10 * time.Second

var servePort int

// researchFunc is the discovery entrypoint the webhook dispatches to.
type researchFunc func(ctx context.Context, streamKey string, opts research.Options) (*research.Summary, error)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for discovery requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var busy atomic.Bool
		mux := newServeMux(ctx, &busy, runResearch)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", port))
		return serveUntilDone(ctx, &http.Server{Handler: mux}, ln)
	},
}

// newServeMux builds the webhook routes. One discovery run at a time;
// concurrent triggers get 409. The run itself happens asynchronously on
// ctx, which outlives the request.
func newServeMux(ctx context.Context, busy *atomic.Bool, run researchFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/research", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream string `json:"stream"`
			DryRun bool   `json:"dry_run"`
			Limit  int    `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Stream == "" {
			http.Error(w, `{"error":"stream is required"}`, http.StatusBadRequest)
			return
		}

		if !busy.CompareAndSwap(false, true) {
			http.Error(w, `{"error":"a run is already in progress"}`, http.StatusConflict)
			return
		}

		go func() {
			defer busy.Store(false)
			summary, err := run(ctx, req.Stream, research.Options{
				DryRun: req.DryRun,
				Limit:  req.Limit,
			})
			if err != nil {
				zap.L().Error("webhook research failed",
					zap.String("stream", req.Stream),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook research complete",
				zap.String("stream", req.Stream),
				zap.Int("created", summary.Created),
				zap.Int("errors", summary.Errors),
			)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "accepted",
			"stream": req.Stream,
		})
	})

	return mux
}

// serveUntilDone serves on ln until ctx is cancelled, then drains in-flight
// requests on a fresh timeout before returning.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server serve")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown incomplete", zap.Error(err))
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
