package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmsync/farmsync"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run background sync with an HTTP status endpoint",
	Long: `Keep the farm synchronized in the background and serve its status.

The server probes the remote database, uploads pending records when the
connection returns, and runs a full sync every sync interval.

Endpoints:
  GET  /health   Store and remote health
  GET  /status   Sync indicator
  GET  /stats    Record counts
  POST /sync     Run a sync now
  GET  /metrics  Prometheus metrics

Example:
  farmsync serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr       string
	serveNoAutoSync bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveNoAutoSync, "no-auto-sync", false, "Only sync on POST /sync")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logCloser, err := farmsync.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cfg.Logger = logger
	cfg.MetricsRegisterer = reg
	cfg.AutoSync = !serveNoAutoSync && !cfg.IsOffline()

	client, err := farmsync.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           newServeRouter(client, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if isTTY() {
		fmt.Fprintln(cmd.OutOrStdout(), renderBannerWithTagline())
		fmt.Fprintln(cmd.OutOrStdout())
	}
	printInfo(cmd.OutOrStdout(), "Serving farm '%s' on %s", cfg.Farm, serveAddr)
	if cfg.IsOffline() {
		printWarning(cmd.OutOrStdout(), "No remote configured; background sync is off")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// newServeRouter builds the status API over client.
func newServeRouter(client *farmsync.Client, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		h := client.HealthCheck(req.Context())
		code := http.StatusOK
		if !h.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, h)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := client.Status(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := client.Stats(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
		report, err := client.Sync(req.Context())
		switch {
		case errors.Is(err, farmsync.ErrSyncInProgress):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, farmsync.ErrOffline):
			writeError(w, http.StatusServiceUnavailable, err)
		case err != nil:
			logger.Warn("sync request failed", "error", err)
			writeError(w, http.StatusBadGateway, err)
		default:
			writeJSON(w, http.StatusOK, report)
		}
	})

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": scrubSensitiveData(err.Error())})
}
