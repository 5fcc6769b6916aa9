// Package health implements liveness/readiness checks, grounded on the
// teacher's internal/health.Checker: same Pinger abstraction, same
// Prometheus gauge reporting per-dependency reachability.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied directly by *pgxpool.Pool. Dependencies that expose
// a differently-named readiness probe (redisstore.Store.Health) are
// adapted with PingerFunc at the call site.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a bare function to Pinger, the way http.HandlerFunc
// adapts a function to http.Handler.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that all dependencies are reachable.
type Checker struct {
	dependencies map[string]Pinger
	logger       *slog.Logger
	gauge        *prometheus.GaugeVec
}

// NewChecker creates a health checker over the given named dependencies
// and registers its Prometheus gauge.
func NewChecker(dependencies map[string]Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "taskrun",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		dependencies: dependencies,
		logger:       logger.With("component", "health"),
		gauge:        gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness pings every dependency and reports per-check status.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{Status: "up", Checks: make(map[string]CheckResult)}
	for name, dep := range c.dependencies {
		if err := dep.Ping(checkCtx); err != nil {
			c.logger.Warn("dependency health check failed", "dependency", name, "error", err)
			result.Status = "down"
			result.Checks[name] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues(name).Set(0)
		} else {
			result.Checks[name] = CheckResult{Status: "up"}
			c.gauge.WithLabelValues(name).Set(1)
		}
	}
	return result
}

// LivenessHandler and ReadinessHandler are plain net/http handlers so
// callers can mount them directly on metrics.NewServer's mux.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) { writeJSON(w, c.Liveness(r.Context())) }
}

func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := c.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		writeJSON(w, result)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
