// schedulerd boots a Data Store back end, a Scheduler, and — when
// CO_LOCATED_WORKER is set — a co-located Worker, plus the admin HTTP API
// (which also serves the health endpoints) and the metrics side-channel
// server. Grounded on the teacher's
// cmd/scheduler/main.go wiring shape.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/taskrun/config"
	"github.com/ErlanBelekov/taskrun/internal/health"
	ctxlog "github.com/ErlanBelekov/taskrun/internal/log"
	"github.com/ErlanBelekov/taskrun/internal/metrics"
	"github.com/ErlanBelekov/taskrun/internal/scheduler"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	httptransport "github.com/ErlanBelekov/taskrun/internal/transport/http"
	"github.com/ErlanBelekov/taskrun/internal/transport/http/handler"
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
	registerBuiltinTasks(registry, logger)

	metrics.Register()
	checker := health.NewChecker(map[string]health.Pinger{"store": pinger}, logger, prometheus.DefaultRegisterer)

	sched := scheduler.New(cfg.SchedulerID, st, registry, logger)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	logger.Info("scheduler started", "scheduler_id", cfg.SchedulerID)

	var coLocated *worker.Worker
	if cfg.CoLocatedWorker {
		coLocated = worker.New(cfg.WorkerID, st, registry, cfg.MaxConcurrentJobs, logger)
		if err := coLocated.Start(ctx); err != nil {
			log.Fatalf("start co-located worker: %v", err)
		}
		logger.Info("co-located worker started")
	}

	scheduleHandler := handler.NewScheduleHandler(st, registry, logger)
	jobHandler := handler.NewJobHandler(st, registry, logger)
	router := httptransport.NewRouter(logger, scheduleHandler, jobHandler, checker, []byte(cfg.JWTSecret))
	adminSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("admin api started", "port", cfg.HTTPPort)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin api", "error", err)
		}
	}()
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

	if coLocated != nil {
		if err := coLocated.Stop(shutdownCtx); err != nil {
			logger.Error("stop co-located worker", "error", err)
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("stop scheduler", "error", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	logger.Info("scheduler shut down")
}

// registerBuiltinTasks registers the one built-in task kind shipped with
// this repository: firing a webhook, the teacher's entire original
// domain, now expressed as an ordinary taskregistry.Func.
func registerBuiltinTasks(registry *taskregistry.Registry, logger *slog.Logger) {
	invoker := taskregistry.NewHTTPInvoker(logger)
	registry.Register("http_invoke", invoker.Invoke)
}
