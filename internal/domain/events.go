package domain

import "time"

// Event is an immutable value carrying a UTC timestamp assigned at
// construction. Events carry no lifecycle — they are delivered and
// discarded by internal/eventhub.
type Event interface {
	Timestamp() time.Time
}

type base struct {
	ts time.Time
}

func newBase() base { return base{ts: time.Now().UTC()} }

func (b base) Timestamp() time.Time { return b.ts }

// --- Data Store events (spec §4.1) ---

type ScheduleAdded struct {
	base
	ScheduleID string
}

type ScheduleUpdated struct {
	base
	ScheduleID string
}

type ScheduleRemoved struct {
	base
	ScheduleID string
}

type ScheduleDeserializationFailed struct {
	base
	ScheduleID string
	Err        error
}

type JobAdded struct {
	base
	JobID      string
	ScheduleID *string
}

type JobDeserializationFailed struct {
	base
	JobID string
	Err   error
}

// --- Scheduler lifecycle events (spec §4.2) ---

type SchedulerStarted struct{ base }

type SchedulerStopped struct {
	base
	Err error
}

// --- Worker lifecycle + per-job events (spec §4.3) ---

type WorkerStarted struct{ base }

type WorkerStopped struct {
	base
	Err error
}

type JobStarted struct {
	base
	JobID string
}

type JobCompleted struct {
	base
	JobID       string
	ReturnValue any
}

type JobFailed struct {
	base
	JobID      string
	Exception  string
	Traceback  string
}

type JobDeadlineMissed struct {
	base
	JobID string
}

func NewScheduleAdded(id string) ScheduleAdded     { return ScheduleAdded{newBase(), id} }
func NewScheduleUpdated(id string) ScheduleUpdated { return ScheduleUpdated{newBase(), id} }
func NewScheduleRemoved(id string) ScheduleRemoved { return ScheduleRemoved{newBase(), id} }
func NewScheduleDeserializationFailed(id string, err error) ScheduleDeserializationFailed {
	return ScheduleDeserializationFailed{newBase(), id, err}
}
func NewJobAdded(id string, scheduleID *string) JobAdded { return JobAdded{newBase(), id, scheduleID} }
func NewJobDeserializationFailed(id string, err error) JobDeserializationFailed {
	return JobDeserializationFailed{newBase(), id, err}
}
func NewSchedulerStarted() SchedulerStarted           { return SchedulerStarted{newBase()} }
func NewSchedulerStopped(err error) SchedulerStopped  { return SchedulerStopped{newBase(), err} }
func NewWorkerStarted() WorkerStarted                 { return WorkerStarted{newBase()} }
func NewWorkerStopped(err error) WorkerStopped        { return WorkerStopped{newBase(), err} }
func NewJobStarted(id string) JobStarted              { return JobStarted{newBase(), id} }
func NewJobCompleted(id string, ret any) JobCompleted { return JobCompleted{newBase(), id, ret} }
func NewJobFailed(id, exception, traceback string) JobFailed {
	return JobFailed{newBase(), id, exception, traceback}
}
func NewJobDeadlineMissed(id string) JobDeadlineMissed { return JobDeadlineMissed{newBase(), id} }
