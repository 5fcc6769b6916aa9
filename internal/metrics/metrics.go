// Package metrics declares the process's Prometheus metrics, grounded on
// the teacher's internal/metrics — same Namespace-scoped registration
// style — relabeled from the teacher's webhook-dispatch concerns to the
// Scheduler/Worker/Event Hub concerns of this package.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobPickupLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskrun",
		Name:      "job_pickup_latency_seconds",
		Help:      "Time from job creation to worker claiming it.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskrun",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of task invocation.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskrun",
		Name:      "worker_jobs_in_flight",
		Help:      "Number of jobs currently being executed by this worker.",
	})

	JobsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskrun",
		Name:      "jobs_completed_total",
		Help:      "Total jobs finished, by outcome.",
	}, []string{"outcome"})

	SchedulerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskrun",
		Name:      "scheduler_cycle_duration_seconds",
		Help:      "Time taken for one scheduler main-loop cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulesAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskrun",
		Name:      "schedules_acquired_total",
		Help:      "Total schedules claimed across all scheduler cycles.",
	})

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskrun",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskrun",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "taskrun",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskrun",
		Name:      "http_requests_total",
		Help:      "Total admin API HTTP requests.",
	}, []string{"method", "path", "status"})
)

// Register installs every metric above against the default registry,
// matching the teacher's single-call Register() at process startup.
func Register() {
	prometheus.MustRegister(
		JobPickupLatency,
		JobExecutionDuration,
		JobsInFlight,
		JobsCompletedTotal,
		SchedulerCycleDuration,
		SchedulesAcquiredTotal,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer builds the /metrics HTTP server, unchanged from the teacher's
// metrics.NewServer. cmd/workerd mounts internal/health's
// liveness/readiness handlers onto the same mux via Mux() before serving,
// so that process exposes one side-channel listener for both concerns;
// cmd/schedulerd serves them on its admin HTTP router instead.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Mux exposes the underlying ServeMux-compatible handler so cmd/ binaries
// can register additional routes (health) on the same server.
func Mux(srv *http.Server) *http.ServeMux {
	return srv.Handler.(*http.ServeMux)
}
