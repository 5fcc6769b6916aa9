//go:build integration

package redisstore_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// newTestStore connects to TASKRUN_TEST_REDIS_ADDR and flushes the target
// database so each test starts clean. Skipped when unset.
func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	addr := os.Getenv("TASKRUN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TASKRUN_TEST_REDIS_ADDR not set, skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush db: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := redisstore.New(client, logger)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_AddAndAcquireSchedule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Second)
	sched := &domain.Schedule{
		ID:                "s1",
		TaskID:            "demo",
		Coalesce:          domain.CoalesceLatest,
		SerializedTrigger: []byte("trigger-blob"),
		NextFireTime:      &past,
	}
	if err := st.AddSchedule(ctx, sched, domain.ConflictException); err != nil {
		t.Fatalf("add schedule: %v", err)
	}

	got, err := st.AcquireSchedules(ctx, "scheduler-a", 10)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("expected to acquire s1, got %+v", got)
	}

	again, err := st.AcquireSchedules(ctx, "scheduler-b", 10)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if len(again) != 0 {
		t.Fatal("expected schedule to be locked out for a second acquirer")
	}
}

func TestRedisStore_ReleaseTerminalScheduleRemovesRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Second)
	sched := &domain.Schedule{
		ID:                "s1",
		TaskID:            "demo",
		Coalesce:          domain.CoalesceLatest,
		SerializedTrigger: []byte("trigger-blob"),
		NextFireTime:      &past,
	}
	if err := st.AddSchedule(ctx, sched, domain.ConflictException); err != nil {
		t.Fatalf("add schedule: %v", err)
	}

	acquired, err := st.AcquireSchedules(ctx, "scheduler-a", 10)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: got=%v err=%v", acquired, err)
	}

	acquired[0].NextFireTime = nil
	if err := st.ReleaseSchedules(ctx, "scheduler-a", acquired); err != nil {
		t.Fatalf("release: %v", err)
	}

	remaining, err := st.GetSchedules(ctx, nil)
	if err != nil {
		t.Fatalf("get schedules: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected terminal schedule removed, got %d rows", len(remaining))
	}
}

func TestRedisStore_HealthReportsLiveConnection(t *testing.T) {
	st := newTestStore(t)
	if err := st.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy redis connection, got %v", err)
	}
}

func TestRedisStore_AcquireJobsOrdersByCreatedAt(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"z", "a", "m"} {
		j := &domain.Job{ID: id, TaskID: "demo", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := st.AddJob(ctx, j); err != nil {
			t.Fatalf("add job %s: %v", id, err)
		}
	}

	got, err := st.AcquireJobs(ctx, "worker-a", 10)
	if err != nil {
		t.Fatalf("acquire jobs: %v", err)
	}
	want := []string{"z", "a", "m"}
	for i, j := range got {
		if j.ID != want[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, j.ID, want[i])
		}
	}
}
