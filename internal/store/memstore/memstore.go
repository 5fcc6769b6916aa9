// Package memstore is the in-memory reference back end for
// internal/store.Store, grounded directly on golly's
// chrono.InMemoryStorage: one mutex guarding a map of schedules and a map
// of jobs, with each record's lock owner and expiry kept on the record
// itself. It is the back
// end every unit test in this repository exercises.
package memstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
)

// Store is an in-memory Store implementation suitable for single-process
// deployments and tests. It is not suitable for multi-process
// coordination since its locks do not survive a process restart.
type Store struct {
	mu        sync.Mutex
	schedules map[string]*domain.Schedule
	jobs      map[string]*domain.Job

	hub            *eventhub.Hub
	lockExpiration time.Duration
}

// New returns an empty Store with its own Event Hub, defaulting its lease
// length to store.DefaultLockExpirationDelay. Call SetLockExpiration to
// override it (cmd/* wires it from config.Config.LockExpirationSec).
func New(logger *slog.Logger) *Store {
	return &Store{
		schedules:      make(map[string]*domain.Schedule),
		jobs:           make(map[string]*domain.Job),
		hub:            eventhub.New(logger, 256),
		lockExpiration: defaultLockExpiration,
	}
}

// SetLockExpiration overrides the lease length used by future Acquire*
// calls.
func (s *Store) SetLockExpiration(d time.Duration) {
	s.mu.Lock()
	s.lockExpiration = d
	s.mu.Unlock()
}

func (s *Store) Subscribe(cb eventhub.Callback, eventTypes ...domain.Event) eventhub.Token {
	return s.hub.Subscribe(cb, eventTypes...)
}

func (s *Store) Unsubscribe(token eventhub.Token) { s.hub.Unsubscribe(token) }

func (s *Store) Close() error {
	s.hub.Stop(context.Background())
	return nil
}

func cloneSchedule(s *domain.Schedule) *domain.Schedule {
	cp := *s
	return &cp
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	return &cp
}

// AddSchedule implements spec §4.1's insert-or-conflict-policy operation.
func (s *Store) AddSchedule(_ context.Context, sched *domain.Schedule, policy domain.ConflictPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		switch policy {
		case domain.ConflictDoNothing:
			return nil
		case domain.ConflictReplace:
			s.schedules[sched.ID] = cloneSchedule(sched)
			s.hub.Publish(domain.NewScheduleUpdated(sched.ID))
			return nil
		default:
			return domain.ErrConflictingID
		}
	}

	s.schedules[sched.ID] = cloneSchedule(sched)
	s.hub.Publish(domain.NewScheduleAdded(sched.ID))
	return nil
}

// RemoveSchedules removes the subset of ids whose lock has expired or is
// absent, emitting ScheduleRemoved for each one actually removed.
func (s *Store) RemoveSchedules(_ context.Context, ids []string) error {
	s.mu.Lock()
	var removed []string
	now := time.Now().UTC()
	for _, id := range ids {
		sched, ok := s.schedules[id]
		if !ok {
			continue
		}
		if sched.AcquiredUntil != nil && sched.AcquiredUntil.After(now) {
			continue // held by a live scheduler; skip
		}
		delete(s.schedules, id)
		removed = append(removed, id)
	}
	s.mu.Unlock()

	for _, id := range removed {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

// GetSchedules returns all, or the intersection with ids, ordered by id.
func (s *Store) GetSchedules(_ context.Context, ids []string) ([]*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var want map[string]struct{}
	if len(ids) > 0 {
		want = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
	}

	out := make([]*domain.Schedule, 0, len(s.schedules))
	for id, sched := range s.schedules {
		if want != nil {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		out = append(out, cloneSchedule(sched))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AcquireSchedules is the central lock primitive (spec §4.1): atomically
// selects up to limit due, unlocked schedules ordered by next_fire_time
// ascending (ties by id), stamps the lock fields, and returns them.
func (s *Store) AcquireSchedules(_ context.Context, schedulerID string, limit int) ([]*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*domain.Schedule
	for _, sched := range s.schedules {
		if sched.NextFireTime == nil || sched.NextFireTime.After(now) {
			continue
		}
		if sched.AcquiredUntil != nil && sched.AcquiredUntil.After(now) {
			continue
		}
		candidates = append(candidates, sched)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].NextFireTime.Equal(*candidates[j].NextFireTime) {
			return candidates[i].NextFireTime.Before(*candidates[j].NextFireTime)
		}
		return candidates[i].ID < candidates[j].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(s.lockExpiration)
	out := make([]*domain.Schedule, 0, len(candidates))
	for _, sched := range candidates {
		owner := schedulerID
		sched.AcquiredBy = &owner
		u := until
		sched.AcquiredUntil = &u
		out = append(out, cloneSchedule(sched))
	}
	return out, nil
}

// ReleaseSchedules implements spec §4.1's release semantics: terminal or
// unserializable schedules are deleted (ScheduleRemoved); others have
// their lock cleared and projected fields updated (ScheduleUpdated). Rows
// no longer owned by schedulerID (lease stolen) are silently skipped.
func (s *Store) ReleaseSchedules(_ context.Context, schedulerID string, schedules []*domain.Schedule) error {
	s.mu.Lock()
	var updated, removed []string
	for _, in := range schedules {
		cur, ok := s.schedules[in.ID]
		if !ok {
			continue
		}
		if cur.AcquiredBy == nil || *cur.AcquiredBy != schedulerID {
			continue // lease expired and stolen by another scheduler
		}

		if in.Terminal() {
			delete(s.schedules, in.ID)
			removed = append(removed, in.ID)
			continue
		}

		next := cloneSchedule(in)
		next.AcquiredBy = nil
		next.AcquiredUntil = nil
		s.schedules[in.ID] = next
		updated = append(updated, in.ID)
	}
	s.mu.Unlock()

	for _, id := range updated {
		s.hub.Publish(domain.NewScheduleUpdated(id))
	}
	for _, id := range removed {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

// AddJob inserts a job; colliding ids are an implementation error since
// ids are 128-bit unique identifiers minted by the caller.
func (s *Store) AddJob(_ context.Context, j *domain.Job) error {
	s.mu.Lock()
	s.jobs[j.ID] = cloneJob(j)
	s.mu.Unlock()
	s.hub.Publish(domain.NewJobAdded(j.ID, j.ScheduleID))
	return nil
}

func (s *Store) GetJobs(_ context.Context, ids []string) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var want map[string]struct{}
	if len(ids) > 0 {
		want = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			want[id] = struct{}{}
		}
	}

	out := make([]*domain.Job, 0, len(s.jobs))
	for id, j := range s.jobs {
		if want != nil {
			if _, ok := want[id]; !ok {
				continue
			}
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AcquireJobs selects up to limit jobs with an expired or absent lease,
// ordered by created_at ascending, and stamps them with workerID.
func (s *Store) AcquireJobs(_ context.Context, workerID string, limit int) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var candidates []*domain.Job
	for _, j := range s.jobs {
		if j.AcquiredUntil != nil && j.AcquiredUntil.After(now) {
			continue
		}
		candidates = append(candidates, j)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(s.lockExpiration)
	out := make([]*domain.Job, 0, len(candidates))
	for _, j := range candidates {
		owner := workerID
		j.AcquiredBy = &owner
		u := until
		j.AcquiredUntil = &u
		out = append(out, cloneJob(j))
	}
	return out, nil
}

// ReleaseJobs atomically deletes the rows still owned by workerID.
func (s *Store) ReleaseJobs(_ context.Context, workerID string, jobs []*domain.Job) error {
	s.mu.Lock()
	for _, in := range jobs {
		cur, ok := s.jobs[in.ID]
		if !ok {
			continue
		}
		if cur.AcquiredBy == nil || *cur.AcquiredBy != workerID {
			continue
		}
		delete(s.jobs, in.ID)
	}
	s.mu.Unlock()
	return nil
}

// Clear removes every schedule and job.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.schedules = make(map[string]*domain.Schedule)
	s.jobs = make(map[string]*domain.Job)
	s.mu.Unlock()
	return nil
}

const defaultLockExpiration = 30 * time.Second
