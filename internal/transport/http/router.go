// Package httptransport is the admin-facing HTTP surface (SPEC_FULL.md §6):
// schedule/job CRUD over Gin, grounded on the teacher's internal/http
// router — same middleware chain (request-id, security headers, slog-gin
// access log, Prometheus), same JWT bearer auth.
package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/taskrun/internal/health"
	"github.com/ErlanBelekov/taskrun/internal/transport/http/handler"
	"github.com/ErlanBelekov/taskrun/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// NewRouter wires the admin API. jwtKey may be empty only when running with
// no auth configured (local development); callers decide whether that is
// acceptable for their environment.
func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, jobHandler *handler.JobHandler, checker *health.Checker, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", gin.WrapF(checker.LivenessHandler()))
	r.GET("/readyz", gin.WrapF(checker.ReadinessHandler()))

	authMW := middleware.Auth(jwtKey)

	schedules := r.Group("/schedules", authMW)
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.DELETE("/:id", scheduleHandler.Delete)

	jobs := r.Group("/jobs", authMW)
	jobs.POST("", jobHandler.Create)
	jobs.GET("/:id", jobHandler.GetByID)

	return r
}
