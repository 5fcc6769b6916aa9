package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/store"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JobHandler exposes ad-hoc job creation and read-only lookup, grounded
// on the teacher's JobHandler.
type JobHandler struct {
	st       store.Store
	registry *taskregistry.Registry
	logger   *slog.Logger
}

func NewJobHandler(st store.Store, registry *taskregistry.Registry, logger *slog.Logger) *JobHandler {
	return &JobHandler{st: st, registry: registry, logger: logger.With("component", "job_handler")}
}

type createJobRequest struct {
	ID                  string         `json:"id"`
	TaskID              string         `json:"task_id" binding:"required"`
	Args                []any          `json:"args"`
	Kwargs              map[string]any `json:"kwargs"`
	MisfireGraceSeconds int            `json:"misfire_grace_seconds"`
	Tags                []string       `json:"tags"`
}

type jobResponse struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"task_id"`
	ScheduleID    *string        `json:"schedule_id,omitempty"`
	Args          []any          `json:"args,omitempty"`
	Kwargs        map[string]any `json:"kwargs,omitempty"`
	StartDeadline *time.Time     `json:"start_deadline,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		TaskID:        j.TaskID,
		ScheduleID:    j.ScheduleID,
		Args:          j.Args,
		Kwargs:        j.Kwargs,
		StartDeadline: j.StartDeadline,
		Tags:          j.Tags,
		CreatedAt:     j.CreatedAt,
	}
}

// Create enqueues an ad-hoc job with no owning schedule, run by whichever
// worker next has capacity.
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.registry.Lookup(req.TaskID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errUnknownTask})
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	j := &domain.Job{
		ID:        id,
		TaskID:    req.TaskID,
		Args:      req.Args,
		Kwargs:    req.Kwargs,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if req.MisfireGraceSeconds > 0 {
		deadline := j.CreatedAt.Add(time.Duration(req.MisfireGraceSeconds) * time.Second)
		j.StartDeadline = &deadline
	}

	if err := h.st.AddJob(c.Request.Context(), j); err != nil {
		h.logger.Error("add job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, toJobResponse(j))
}

func (h *JobHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	jobs, err := h.st.GetJobs(c.Request.Context(), []string{id})
	if err != nil {
		h.logger.Error("get job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if len(jobs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}

	c.JSON(http.StatusOK, toJobResponse(jobs[0]))
}
