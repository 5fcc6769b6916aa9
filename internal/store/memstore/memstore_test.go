package memstore_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/store/memstore"
)

func newStore() *memstore.Store {
	return memstore.New(slog.Default())
}

func dueSchedule(id string, fireTime time.Time) *domain.Schedule {
	return &domain.Schedule{
		ID:           id,
		TaskID:       "demo",
		Coalesce:     domain.CoalesceLatest,
		NextFireTime: &fireTime,
	}
}

func TestAddSchedule_ConflictDoNothing(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ft := time.Now().UTC()

	first := dueSchedule("s1", ft)
	if err := s.AddSchedule(ctx, first, domain.ConflictException); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := dueSchedule("s1", ft.Add(time.Hour))
	if err := s.AddSchedule(ctx, second, domain.ConflictDoNothing); err != nil {
		t.Fatalf("do_nothing insert: %v", err)
	}

	got, err := s.GetSchedules(ctx, []string{"s1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got[0].NextFireTime.Equal(ft) {
		t.Fatalf("do_nothing must not overwrite: got %v, want %v", got[0].NextFireTime, ft)
	}
}

func TestAddSchedule_ConflictReplace(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ft := time.Now().UTC()

	if err := s.AddSchedule(ctx, dueSchedule("s1", ft), domain.ConflictException); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	replacement := ft.Add(time.Hour)
	if err := s.AddSchedule(ctx, dueSchedule("s1", replacement), domain.ConflictReplace); err != nil {
		t.Fatalf("replace insert: %v", err)
	}

	got, _ := s.GetSchedules(ctx, []string{"s1"})
	if !got[0].NextFireTime.Equal(replacement) {
		t.Fatalf("replace must overwrite: got %v, want %v", got[0].NextFireTime, replacement)
	}
}

func TestAddSchedule_ConflictException(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ft := time.Now().UTC()

	if err := s.AddSchedule(ctx, dueSchedule("s1", ft), domain.ConflictException); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := s.AddSchedule(ctx, dueSchedule("s1", ft.Add(time.Hour)), domain.ConflictException)
	if err != domain.ErrConflictingID {
		t.Fatalf("expected ErrConflictingID, got %v", err)
	}

	got, _ := s.GetSchedules(ctx, []string{"s1"})
	if !got[0].NextFireTime.Equal(ft) {
		t.Fatal("original schedule must be retained on exception policy")
	}
}

func TestAcquireSchedules_MutualExclusion(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Second)

	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		if err := s.AddSchedule(ctx, dueSchedule(id, past), domain.ConflictException); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	results := make([][]*domain.Schedule, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			got, err := s.AcquireSchedules(ctx, "scheduler-x", 100)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			results[idx] = got
		}(i)
	}
	wg.Wait()

	seen := make(map[string]int)
	for _, got := range results {
		for _, sched := range got {
			seen[sched.ID]++
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("schedule %s acquired %d times concurrently, want 1", id, count)
		}
	}
	if len(seen) != 20 {
		t.Fatalf("expected all 20 schedules acquired exactly once, got %d", len(seen))
	}
}

func TestAcquireSchedules_LeaseRecovery(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Second)

	if err := s.AddSchedule(ctx, dueSchedule("s1", past), domain.ConflictException); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.AcquireSchedules(ctx, "scheduler-a", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("first acquire failed: got=%v err=%v", got, err)
	}

	// scheduler-a never releases; scheduler-b must not see it before lease expiry.
	again, err := s.AcquireSchedules(ctx, "scheduler-b", 10)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no schedules available before lease expiry, got %d", len(again))
	}
}

func TestAcquireSchedules_FIFOByFireTime(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	ids := []string{"z", "a", "m"}
	for i, id := range ids {
		ft := base.Add(time.Duration(i) * time.Minute)
		if err := s.AddSchedule(ctx, dueSchedule(id, ft), domain.ConflictException); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	got, err := s.AcquireSchedules(ctx, "scheduler-a", 10)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 schedules, got %d", len(got))
	}
	want := []string{"z", "a", "m"} // inserted in ascending fire-time order already
	for i, sched := range got {
		if sched.ID != want[i] {
			t.Fatalf("acquire order mismatch at %d: got %s, want %s", i, sched.ID, want[i])
		}
	}
}

func TestReleaseSchedules_TerminalIsRemoved(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Second)

	if err := s.AddSchedule(ctx, dueSchedule("s1", past), domain.ConflictException); err != nil {
		t.Fatalf("insert: %v", err)
	}
	acquired, err := s.AcquireSchedules(ctx, "scheduler-a", 10)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: got=%v err=%v", acquired, err)
	}

	acquired[0].NextFireTime = nil // terminalized by the scheduler
	if err := s.ReleaseSchedules(ctx, "scheduler-a", acquired); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, _ := s.GetSchedules(ctx, nil)
	if len(got) != 0 {
		t.Fatalf("expected terminal schedule to be removed, found %d", len(got))
	}
}

func TestReleaseSchedules_RedundantReleaseDoesNotResurrect(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Second)

	if err := s.AddSchedule(ctx, dueSchedule("s1", past), domain.ConflictException); err != nil {
		t.Fatalf("insert: %v", err)
	}
	acquired, _ := s.AcquireSchedules(ctx, "scheduler-a", 10)

	// Releasing a terminal schedule removes it; a second release of the same
	// schedule, which scheduler-a no longer holds, must be a no-op.
	acquired[0].NextFireTime = nil
	if err := s.ReleaseSchedules(ctx, "scheduler-a", acquired); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Releasing again (already gone) must not error or resurrect it.
	if err := s.ReleaseSchedules(ctx, "scheduler-a", acquired); err != nil {
		t.Fatalf("second release: %v", err)
	}
	got, _ := s.GetSchedules(ctx, nil)
	if len(got) != 0 {
		t.Fatalf("schedule resurrected by redundant release, found %d", len(got))
	}
}

func TestAcquireJobs_FIFOByCreatedAt(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i, id := range []string{"z", "a", "m"} {
		j := &domain.Job{ID: id, TaskID: "demo", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.AddJob(ctx, j); err != nil {
			t.Fatalf("add job %s: %v", id, err)
		}
	}

	got, err := s.AcquireJobs(ctx, "worker-a", 10)
	if err != nil {
		t.Fatalf("acquire jobs: %v", err)
	}
	want := []string{"z", "a", "m"}
	for i, j := range got {
		if j.ID != want[i] {
			t.Fatalf("FIFO order mismatch at %d: got %s, want %s", i, j.ID, want[i])
		}
	}
}

func TestReleaseJobs_DeletesOwnedRowsOnly(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	if err := s.AddJob(ctx, &domain.Job{ID: "j1", TaskID: "demo", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	acquired, err := s.AcquireJobs(ctx, "worker-a", 10)
	if err != nil || len(acquired) != 1 {
		t.Fatalf("acquire: got=%v err=%v", acquired, err)
	}

	// A different worker cannot release a job it doesn't own.
	if err := s.ReleaseJobs(ctx, "worker-b", acquired); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	stillThere, _ := s.GetJobs(ctx, []string{"j1"})
	if len(stillThere) != 1 {
		t.Fatal("job incorrectly released by non-owner")
	}

	if err := s.ReleaseJobs(ctx, "worker-a", acquired); err != nil {
		t.Fatalf("release by owner: %v", err)
	}
	gone, _ := s.GetJobs(ctx, []string{"j1"})
	if len(gone) != 0 {
		t.Fatal("job was not released by its owner")
	}
}

func TestClear_RemovesEverything(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	ft := time.Now().UTC()
	_ = s.AddSchedule(ctx, dueSchedule("s1", ft), domain.ConflictException)
	_ = s.AddJob(ctx, &domain.Job{ID: "j1", TaskID: "demo", CreatedAt: ft})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	schedules, _ := s.GetSchedules(ctx, nil)
	jobs, _ := s.GetJobs(ctx, nil)
	if len(schedules) != 0 || len(jobs) != 0 {
		t.Fatalf("expected empty store after clear, got %d schedules, %d jobs", len(schedules), len(jobs))
	}
}

func TestSubscribe_ReceivesScheduleEvents(t *testing.T) {
	s := newStore()
	defer s.Close()
	ctx := context.Background()

	events := make(chan domain.Event, 8)
	s.Subscribe(func(ev domain.Event) { events <- ev })

	ft := time.Now().UTC()
	if err := s.AddSchedule(ctx, dueSchedule("s1", ft), domain.ConflictException); err != nil {
		t.Fatalf("add schedule: %v", err)
	}

	select {
	case ev := <-events:
		if _, ok := ev.(domain.ScheduleAdded); !ok {
			t.Fatalf("expected ScheduleAdded, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive ScheduleAdded event")
	}
}
