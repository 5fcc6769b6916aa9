// workerd boots a standalone Worker against a shared Data Store back end,
// for horizontal scaling independent of the scheduler process. Grounded
// on the teacher's cmd/scheduler/main.go worker wiring, split into its own
// binary per SPEC_FULL.md §6.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/taskrun/config"
	"github.com/ErlanBelekov/taskrun/internal/health"
	ctxlog "github.com/ErlanBelekov/taskrun/internal/log"
	"github.com/ErlanBelekov/taskrun/internal/metrics"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	"github.com/ErlanBelekov/taskrun/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := ctxlog.New(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, pinger, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	registry := taskregistry.New()
	invoker := taskregistry.NewHTTPInvoker(logger)
	registry.Register("http_invoke", invoker.Invoke)

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{"store": pinger}, logger, prometheus.DefaultRegisterer)

	w := worker.New(cfg.WorkerID, st, registry, cfg.MaxConcurrentJobs, logger)
	if err := w.Start(ctx); err != nil {
		log.Fatalf("start worker: %v", err)
	}
	logger.Info("worker started", "max_concurrent_jobs", cfg.MaxConcurrentJobs)

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	metrics.Mux(metricsSrv).Handle("/healthz", checker.LivenessHandler())
	metrics.Mux(metricsSrv).Handle("/readyz", checker.ReadinessHandler())

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.Stop(shutdownCtx); err != nil {
		logger.Error("stop worker", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	logger.Info("worker shut down")
}
