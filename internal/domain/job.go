package domain

import "time"

// Job is a single scheduled invocation waiting to be executed. It is
// removed from the store exactly when it has been released after a run.
type Job struct {
	ID         string
	TaskID     string
	ScheduleID *string // nil for ad-hoc jobs
	Args       []any
	Kwargs     map[string]any

	ScheduledFireTime *time.Time
	StartDeadline     *time.Time
	Tags              []string
	CreatedAt         time.Time

	AcquiredBy    *string
	AcquiredUntil *time.Time
}

// MissedDeadline reports whether startTime is past j.StartDeadline. A job
// with no deadline can never miss it.
func (j *Job) MissedDeadline(startTime time.Time) bool {
	return j.StartDeadline != nil && startTime.After(*j.StartDeadline)
}
