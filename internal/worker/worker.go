// Package worker implements the Worker main loop: bounded-concurrency
// acquisition and execution of jobs, with start-deadline enforcement and
// per-job outcome events. It is grounded on the teacher's
// internal/scheduler.Worker — same worker-id-from-hostname-and-pid
// identity, same "claim a batch, run each concurrently" shape — replacing
// its fixed-size-WaitGroup-per-tick model and heartbeat goroutine with the
// spec's running-set-gated pool (heartbeating is dropped entirely: lease
// expiration is the only crash-recovery mechanism now, see DESIGN.md) and
// its HTTP-specific Executor with a taskregistry.Func dispatch.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
	"github.com/ErlanBelekov/taskrun/internal/latch"
	"github.com/ErlanBelekov/taskrun/internal/metrics"
	"github.com/ErlanBelekov/taskrun/internal/store"
	"github.com/ErlanBelekov/taskrun/internal/taskregistry"
)

const (
	stateStopped int32 = iota
	stateStarting
	stateStarted
	stateStopping
)

// Worker is the spec's Worker component.
type Worker struct {
	id                string
	store             store.Store
	registry          *taskregistry.Registry
	logger            *slog.Logger
	maxConcurrentJobs int

	hub   *eventhub.Hub
	latch *latch.Latch

	state       atomic.Int32
	wakeupToken eventhub.Token
	relayToken  eventhub.Token

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup // main loop
	jobsWG  sync.WaitGroup // in-flight job goroutines
}

// New builds a Worker identified by id, backed by st, with a bounded pool
// of maxConcurrentJobs. id defaults to "<hostname>-<pid>" when empty,
// matching the teacher's NewWorker identity scheme.
func New(id string, st store.Store, registry *taskregistry.Registry, maxConcurrentJobs int, logger *slog.Logger) *Worker {
	if id == "" {
		hostname, _ := os.Hostname()
		id = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	if maxConcurrentJobs < 1 {
		maxConcurrentJobs = 1
	}
	logger = logger.With("component", "worker", "worker_id", id)
	return &Worker{
		id:                id,
		store:             st,
		registry:          registry,
		logger:            logger,
		maxConcurrentJobs: maxConcurrentJobs,
		hub:               eventhub.New(logger, 256),
		latch:             latch.New(),
		running:           make(map[string]struct{}),
	}
}

// Subscribe registers cb against this Worker's own event hub.
func (w *Worker) Subscribe(cb eventhub.Callback, eventTypes ...domain.Event) eventhub.Token {
	return w.hub.Subscribe(cb, eventTypes...)
}

// Start opens the data store relay, subscribes the wakeup handler, and
// launches the main loop. It blocks until WorkerStarted is published.
func (w *Worker) Start(ctx context.Context) error {
	w.state.Store(stateStarting)

	w.relayToken = w.store.Subscribe(w.hub.Publish)
	w.wakeupToken = w.store.Subscribe(
		func(domain.Event) { w.latch.Set() },
		domain.JobAdded{},
	)

	started := make(chan struct{})
	w.wg.Add(1)
	go w.run(ctx, started)
	<-started
	return nil
}

// Stop sets state to stopping, wakes the loop, and joins it and any
// still-running job goroutines.
func (w *Worker) Stop(_ context.Context) error {
	w.state.Store(stateStopping)
	w.latch.Set()
	w.wg.Wait()
	w.jobsWG.Wait()

	w.store.Unsubscribe(w.wakeupToken)
	w.store.Unsubscribe(w.relayToken)
	w.hub.Stop(context.Background())
	return nil
}

func (w *Worker) run(ctx context.Context, started chan struct{}) {
	defer w.wg.Done()

	w.state.Store(stateStarted)
	metrics.WorkerStartTime.SetToCurrentTime()
	w.hub.Publish(domain.NewWorkerStarted())
	close(started)

	var loopErr error
	for w.state.Load() == stateStarted {
		if err := w.cycle(ctx); err != nil {
			loopErr = err
			w.logger.Error("worker cycle failed", "error", err)
			break
		}
		w.latch.Wait()
		w.latch.Rearm()
	}

	metrics.WorkerShutdownsTotal.Inc()
	w.hub.Publish(domain.NewWorkerStopped(loopErr))
}

// cycle implements one iteration of spec §4.3's main loop body.
func (w *Worker) cycle(ctx context.Context) error {
	available := w.availableCapacity()
	if available <= 0 {
		return nil
	}

	jobs, err := w.store.AcquireJobs(ctx, w.id, available)
	if err != nil {
		return fmt.Errorf("acquire jobs: %w", err)
	}

	for _, j := range jobs {
		w.mu.Lock()
		w.running[j.ID] = struct{}{}
		w.mu.Unlock()

		w.jobsWG.Add(1)
		go func(job *domain.Job) {
			defer w.jobsWG.Done()
			w.runJob(ctx, job)
		}(j)
	}
	return nil
}

func (w *Worker) availableCapacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxConcurrentJobs - len(w.running)
}

// runJob implements spec §4.3's run_job contract.
func (w *Worker) runJob(ctx context.Context, j *domain.Job) {
	defer w.finish(ctx, j)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	execStart := time.Now()
	metrics.JobPickupLatency.Observe(execStart.Sub(j.CreatedAt).Seconds())

	startTime := time.Now().UTC()
	if j.MissedDeadline(startTime) {
		w.outcome(ctx, j, "deadline_missed", execStart, "")
		w.hub.Publish(domain.NewJobDeadlineMissed(j.ID))
		return
	}

	w.hub.Publish(domain.NewJobStarted(j.ID))

	fn, ok := w.registry.Lookup(j.TaskID)
	if !ok {
		detail := fmt.Sprintf("task %q not registered", j.TaskID)
		w.outcome(ctx, j, "failed", execStart, detail)
		w.hub.Publish(domain.NewJobFailed(j.ID, "domain.ErrUnknownTask", detail))
		return
	}

	ret, err := w.invoke(ctx, fn, j)
	if err != nil {
		w.outcome(ctx, j, "failed", execStart, err.Error())
		w.hub.Publish(domain.NewJobFailed(j.ID, fmt.Sprintf("%T", err), err.Error()))
		return
	}
	w.outcome(ctx, j, "completed", execStart, "")
	w.hub.Publish(domain.NewJobCompleted(j.ID, ret))
}

// outcome records the terminal-outcome metrics (spec §8 property 6: one
// terminal outcome per acquire) and, when the store supports it,
// an audit-trail attempt row.
func (w *Worker) outcome(ctx context.Context, j *domain.Job, label string, execStart time.Time, detail string) {
	metrics.JobExecutionDuration.WithLabelValues(label).Observe(time.Since(execStart).Seconds())
	metrics.JobsCompletedTotal.WithLabelValues(label).Inc()

	if recorder, ok := w.store.(store.AttemptRecorder); ok {
		if err := recorder.RecordAttempt(ctx, j.ID, label, detail); err != nil {
			w.logger.Error("record attempt", "job_id", j.ID, "error", err)
		}
	}
}

// invoke recovers from a panicking task function the way eventhub.invoke
// recovers from a panicking subscriber, converting it into the same
// JobFailed shape as a returned error (spec §7: "never crashes the worker").
func (w *Worker) invoke(ctx context.Context, fn taskregistry.Func, j *domain.Job) (ret any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked", "job_id", j.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, j.Args, j.Kwargs)
}

// finish is the "guarantee against leaks" step: remove j.id from running
// and release the row regardless of how runJob above returned.
func (w *Worker) finish(ctx context.Context, j *domain.Job) {
	w.mu.Lock()
	delete(w.running, j.ID)
	w.mu.Unlock()

	if err := w.store.ReleaseJobs(ctx, w.id, []*domain.Job{j}); err != nil {
		w.logger.Error("failed to release job", "job_id", j.ID, "error", err)
	}
	w.latch.Set() // capacity freed up; the loop may have more room now
}
