package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ErlanBelekov/taskrun/internal/store/memstore"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	"github.com/ErlanBelekov/taskrun/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newScheduleEngine() *gin.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memstore.New(logger)
	registry := taskregistry.New()
	registry.Register("noop", func(context.Context, []any, map[string]any) (any, error) { return nil, nil })

	h := handler.NewScheduleHandler(st, registry, logger)
	r := gin.New()
	r.POST("/schedules", h.Create)
	r.GET("/schedules/:id", h.GetByID)
	r.DELETE("/schedules/:id", h.Delete)
	return r
}

func TestScheduleCreate_InvalidJSON_Returns400(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(`{bad json}`))
	req.Header.Set("Content-Type", "application/json")
	newScheduleEngine().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestScheduleCreate_UnknownTask_Returns400(t *testing.T) {
	body := `{"task_id":"unregistered","trigger":{"type":"date","run_at":"2030-01-01T00:00:00Z"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newScheduleEngine().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestScheduleCreate_InvalidTrigger_Returns400(t *testing.T) {
	body := `{"task_id":"noop","trigger":{"type":"interval","interval_seconds":0}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	newScheduleEngine().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestScheduleCreate_DateTrigger_Returns201AndIsReadable(t *testing.T) {
	engine := newScheduleEngine()

	body := `{"id":"s1","task_id":"noop","trigger":{"type":"date","run_at":"2030-01-01T00:00:00Z"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}

	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created["id"] != "s1" {
		t.Fatalf("expected id s1, got %v", created["id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/schedules/s1", nil)
	engine.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w2.Code)
	}
}

func TestScheduleCreate_DuplicateID_Returns409(t *testing.T) {
	engine := newScheduleEngine()
	body := `{"id":"dup","task_id":"noop","trigger":{"type":"date","run_at":"2030-01-01T00:00:00Z"}}`

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w1, req1)
	if w1.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w2, req2)
	if w2.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", w2.Code)
	}
}

func TestScheduleGetByID_NotFound_Returns404(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/schedules/missing", nil)
	newScheduleEngine().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestScheduleDelete_RemovesSchedule(t *testing.T) {
	engine := newScheduleEngine()
	body := `{"id":"to-delete","task_id":"noop","trigger":{"type":"date","run_at":"2030-01-01T00:00:00Z"}}`

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/schedules", strings.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w1, req1)
	if w1.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodDelete, "/schedules/to-delete", nil)
	engine.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w2.Code)
	}

	w3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodGet, "/schedules/to-delete", nil)
	engine.ServeHTTP(w3, req3)
	if w3.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", w3.Code)
	}
}
