// Package scheduler implements the Scheduler main loop: translating due
// schedules into jobs, advancing trigger state, and parking on a wakeup
// latch between cycles. It is grounded on the teacher's
// internal/scheduler.Dispatcher — same ticker-adjacent shape, same
// computeNext-style trigger advancement — generalized from a single
// hard-coded cron expression per schedule to the pluggable
// internal/trigger.Trigger contract, and from "fire one job per tick" to
// the three coalescence policies.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
	"github.com/ErlanBelekov/taskrun/internal/latch"
	"github.com/ErlanBelekov/taskrun/internal/metrics"
	"github.com/ErlanBelekov/taskrun/internal/store"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
	"github.com/ErlanBelekov/taskrun/internal/trigger"
	"github.com/google/uuid"
)

const (
	stateStopped int32 = iota
	stateStarting
	stateStarted
	stateStopping
)

// batchSize mirrors the teacher's Dispatcher.dispatch, which claims 100
// schedules per tick.
const batchSize = 100

// Scheduler is the spec's Scheduler component.
type Scheduler struct {
	id       string
	store    store.Store
	registry *taskregistry.Registry
	codec    codec.Codec
	logger   *slog.Logger

	hub   *eventhub.Hub
	latch *latch.Latch

	state       atomic.Int32
	wakeupToken eventhub.Token
	relayToken  eventhub.Token
	wg          sync.WaitGroup
}

// New builds a Scheduler identified by id, backed by st, resolving task
// ids through registry.
func New(id string, st store.Store, registry *taskregistry.Registry, logger *slog.Logger) *Scheduler {
	logger = logger.With("component", "scheduler", "scheduler_id", id)
	return &Scheduler{
		id:       id,
		store:    st,
		registry: registry,
		codec:    codec.NewGobCodec(),
		logger:   logger,
		hub:      eventhub.New(logger, 256),
		latch:    latch.New(),
	}
}

// Subscribe registers cb against this Scheduler's own event hub.
func (s *Scheduler) Subscribe(cb eventhub.Callback, eventTypes ...domain.Event) eventhub.Token {
	return s.hub.Subscribe(cb, eventTypes...)
}

// Start opens the data store relay, subscribes the wakeup handler, and
// launches the main loop. It blocks until SchedulerStarted is published.
func (s *Scheduler) Start(ctx context.Context) error {
	s.state.Store(stateStarting)

	s.relayToken = s.store.Subscribe(s.hub.Publish)
	s.wakeupToken = s.store.Subscribe(
		func(domain.Event) { s.latch.Set() },
		domain.ScheduleAdded{}, domain.ScheduleUpdated{},
	)

	started := make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx, started)
	<-started
	return nil
}

// Stop sets state to stopping, wakes the loop, and joins it.
func (s *Scheduler) Stop(_ context.Context) error {
	s.state.Store(stateStopping)
	s.latch.Set()
	s.wg.Wait()

	s.store.Unsubscribe(s.wakeupToken)
	s.store.Unsubscribe(s.relayToken)
	s.hub.Stop(context.Background())
	return nil
}

func (s *Scheduler) run(ctx context.Context, started chan struct{}) {
	defer s.wg.Done()

	s.state.Store(stateStarted)
	s.hub.Publish(domain.NewSchedulerStarted())
	close(started)

	var loopErr error
	for s.state.Load() == stateStarted {
		if err := s.cycle(ctx); err != nil {
			loopErr = err
			s.logger.Error("scheduler cycle failed", "error", err)
			break
		}
		s.latch.Wait()
		s.latch.Rearm()
	}

	s.hub.Publish(domain.NewSchedulerStopped(loopErr))
}

// cycle implements one iteration of spec §4.2's main loop body.
func (s *Scheduler) cycle(ctx context.Context) error {
	cycleStart := time.Now()
	defer func() { metrics.SchedulerCycleDuration.Observe(time.Since(cycleStart).Seconds()) }()

	schedules, err := s.store.AcquireSchedules(ctx, s.id, batchSize)
	if err != nil {
		return fmt.Errorf("acquire schedules: %w", err)
	}
	if len(schedules) == 0 {
		return nil
	}
	metrics.SchedulesAcquiredTotal.Add(float64(len(schedules)))

	now := time.Now().UTC()
	var jobErrs []error
	for _, sched := range schedules {
		fireTimes := s.advance(sched, now)
		for _, ft := range fireTimes {
			sched.LastFireTime = &ft
			j := s.buildJob(sched, ft)
			if err := s.store.AddJob(ctx, j); err != nil {
				jobErrs = append(jobErrs, fmt.Errorf("add job for schedule %s: %w", sched.ID, err))
			}
		}
	}

	if err := s.store.ReleaseSchedules(ctx, s.id, schedules); err != nil {
		return fmt.Errorf("release schedules: %w", err)
	}
	for _, jerr := range jobErrs {
		s.logger.Error("failed to enqueue job", "error", jerr)
	}
	return nil
}

// advance mutates sched in place (NextFireTime, LastFireTime is left to
// the caller, SerializedTrigger) and returns the past-due fire times to
// materialize into jobs this cycle, per spec §4.2's coalescence table.
func (s *Scheduler) advance(sched *domain.Schedule, now time.Time) []time.Time {
	if _, ok := s.registry.Lookup(sched.TaskID); !ok {
		s.logger.Error("task lookup failed, terminalizing schedule",
			"schedule_id", sched.ID, "task_id", sched.TaskID)
		sched.NextFireTime = nil
		return nil
	}

	var trig trigger.Trigger
	if err := s.codec.Deserialize(sched.SerializedTrigger, &trig); err != nil {
		s.logger.Error("trigger deserialization failed, terminalizing schedule",
			"schedule_id", sched.ID, "error", err)
		s.hub.Publish(domain.NewScheduleDeserializationFailed(sched.ID, err))
		sched.NextFireTime = nil
		return nil
	}

	fireTimes := []time.Time{}
	if sched.NextFireTime != nil {
		fireTimes = append(fireTimes, *sched.NextFireTime)
	}

	for {
		t, ok, err := trig.Next()
		if err != nil {
			s.logger.Error("trigger raised, terminalizing schedule", "schedule_id", sched.ID, "error", err)
			sched.NextFireTime = nil
			return fireTimes
		}
		if !ok || t.IsZero() {
			sched.NextFireTime = nil
			return fireTimes
		}
		if t.After(now) {
			sched.NextFireTime = &t
			break
		}

		switch sched.Coalesce {
		case domain.CoalesceAll:
			fireTimes = append(fireTimes, t)
		case domain.CoalesceLatest:
			if len(fireTimes) == 0 {
				fireTimes = append(fireTimes, t)
			} else {
				fireTimes[0] = t
			}
		case domain.CoalesceEarliest:
			// discard t silently
		}
	}

	if blob, err := s.codec.Serialize(trig); err != nil {
		s.logger.Error("trigger re-serialization failed, terminalizing schedule",
			"schedule_id", sched.ID, "error", err)
		sched.NextFireTime = nil
	} else {
		sched.SerializedTrigger = blob
	}

	return fireTimes
}

func (s *Scheduler) buildJob(sched *domain.Schedule, ft time.Time) *domain.Job {
	scheduleID := sched.ID
	ftCopy := ft
	var deadline *time.Time
	if sched.MisfireGraceTime != nil {
		d := ft.Add(*sched.MisfireGraceTime)
		deadline = &d
	}
	return &domain.Job{
		ID:                uuid.NewString(),
		TaskID:            sched.TaskID,
		ScheduleID:        &scheduleID,
		Args:              sched.Args,
		Kwargs:            sched.Kwargs,
		ScheduledFireTime: &ftCopy,
		StartDeadline:     deadline,
		Tags:              sched.Tags,
		CreatedAt:         time.Now().UTC(),
	}
}
