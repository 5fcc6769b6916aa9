package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/store"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	"github.com/ErlanBelekov/taskrun/internal/trigger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ScheduleHandler exposes create/read/delete over a store.Store, the way
// the teacher's ScheduleHandler sits on top of a ScheduleUsecase. This
// package plays both roles because store.Store already encapsulates the
// locking and conflict-policy rules a usecase layer would otherwise own.
type ScheduleHandler struct {
	st       store.Store
	registry *taskregistry.Registry
	codec    codec.Codec
	logger   *slog.Logger
}

func NewScheduleHandler(st store.Store, registry *taskregistry.Registry, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		st:       st,
		registry: registry,
		codec:    codec.NewGobCodec(),
		logger:   logger.With("component", "schedule_handler"),
	}
}

type triggerRequest struct {
	Type            string     `json:"type" binding:"required,oneof=cron interval date"`
	Expr            string     `json:"expr,omitempty"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	RunAt           *time.Time `json:"run_at,omitempty"`
}

func (r triggerRequest) build(now time.Time) (trigger.Trigger, error) {
	switch r.Type {
	case "cron":
		return trigger.NewCronTrigger(r.Expr, now)
	case "interval":
		if r.IntervalSeconds <= 0 {
			return nil, fmt.Errorf("interval_seconds must be positive")
		}
		return trigger.NewIntervalTrigger(time.Duration(r.IntervalSeconds)*time.Second, now, r.End)
	case "date":
		if r.RunAt == nil {
			return nil, fmt.Errorf("run_at is required for a date trigger")
		}
		return trigger.NewDateTrigger(*r.RunAt), nil
	default:
		return nil, fmt.Errorf("unknown trigger type %q", r.Type)
	}
}

type createScheduleRequest struct {
	ID                  string         `json:"id"`
	TaskID              string         `json:"task_id" binding:"required"`
	Args                []any          `json:"args"`
	Kwargs              map[string]any `json:"kwargs"`
	Trigger             triggerRequest `json:"trigger" binding:"required"`
	Coalesce            string         `json:"coalesce"`
	MisfireGraceSeconds int            `json:"misfire_grace_seconds"`
	Tags                []string       `json:"tags"`
	ConflictPolicy      string         `json:"conflict_policy"`
}

type scheduleResponse struct {
	ID           string         `json:"id"`
	TaskID       string         `json:"task_id"`
	Args         []any          `json:"args,omitempty"`
	Kwargs       map[string]any `json:"kwargs,omitempty"`
	Coalesce     domain.Coalesce `json:"coalesce"`
	Tags         []string       `json:"tags,omitempty"`
	NextFireTime *time.Time     `json:"next_fire_time,omitempty"`
	LastFireTime *time.Time     `json:"last_fire_time,omitempty"`
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:           s.ID,
		TaskID:       s.TaskID,
		Args:         s.Args,
		Kwargs:       s.Kwargs,
		Coalesce:     s.Coalesce,
		Tags:         s.Tags,
		NextFireTime: s.NextFireTime,
		LastFireTime: s.LastFireTime,
	}
}

func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.registry.Lookup(req.TaskID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnknownTask})
		return
	}

	now := time.Now().UTC()
	trig, err := req.Trigger.build(now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidTrigger + ": " + err.Error()})
		return
	}

	first, ok, err := trig.Next()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidTrigger + ": " + err.Error()})
		return
	}

	blob, err := h.codec.Serialize(trig)
	if err != nil {
		h.logger.Error("serialize trigger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	coalesce := domain.Coalesce(req.Coalesce)
	if coalesce == "" {
		coalesce = domain.CoalesceLatest
	}

	policy := domain.ConflictPolicy(req.ConflictPolicy)
	if policy == "" {
		policy = domain.ConflictException
	}

	s := &domain.Schedule{
		ID:                id,
		TaskID:            req.TaskID,
		Args:              req.Args,
		Kwargs:            req.Kwargs,
		SerializedTrigger: blob,
		Coalesce:          coalesce,
		Tags:              req.Tags,
	}
	if ok {
		s.NextFireTime = &first
	}
	if req.MisfireGraceSeconds > 0 {
		d := time.Duration(req.MisfireGraceSeconds) * time.Second
		s.MisfireGraceTime = &d
	}

	if err := h.st.AddSchedule(c.Request.Context(), s, policy); err != nil {
		switch {
		case errors.Is(err, domain.ErrConflictingID):
			c.JSON(http.StatusConflict, gin.H{"error": errConflictingID})
		default:
			h.logger.Error("add schedule", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusCreated, toScheduleResponse(s))
}

func (h *ScheduleHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	schedules, err := h.st.GetSchedules(c.Request.Context(), []string{id})
	if err != nil {
		h.logger.Error("get schedule", "schedule_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if len(schedules) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		return
	}

	c.JSON(http.StatusOK, toScheduleResponse(schedules[0]))
}

func (h *ScheduleHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.st.RemoveSchedules(c.Request.Context(), []string{id}); err != nil {
		h.logger.Error("remove schedule", "schedule_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.Status(http.StatusNoContent)
}
