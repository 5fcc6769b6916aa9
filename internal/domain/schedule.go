package domain

import "time"

// Coalesce governs what happens when a schedule has more than one past-due
// fire time at acquisition time.
type Coalesce string

const (
	CoalesceEarliest Coalesce = "earliest"
	CoalesceLatest   Coalesce = "latest"
	CoalesceAll      Coalesce = "all"
)

// ConflictPolicy controls AddSchedule behavior on primary-key collision.
type ConflictPolicy string

const (
	ConflictDoNothing ConflictPolicy = "do_nothing"
	ConflictReplace   ConflictPolicy = "replace"
	ConflictException ConflictPolicy = "exception"
)

// Schedule is a task + trigger + policy record that produces a sequence of
// jobs. SerializedTrigger is authoritative for trigger state; the structured
// fields (NextFireTime, LastFireTime) are projections used only for
// indexing and ordering, per the store's locking contract.
type Schedule struct {
	ID       string
	TaskID   string
	Args     []any
	Kwargs   map[string]any

	// SerializedTrigger is the codec-encoded trigger.Trigger. It is the
	// only durable record of trigger state; back ends must round-trip it
	// byte-for-byte.
	SerializedTrigger []byte

	Coalesce          Coalesce
	MisfireGraceTime  *time.Duration
	Tags              []string

	NextFireTime *time.Time
	LastFireTime *time.Time

	AcquiredBy    *string
	AcquiredUntil *time.Time
}

// IsAcquiredBy reports whether s is currently locked by schedulerID.
func (s *Schedule) IsAcquiredBy(schedulerID string, now time.Time) bool {
	return s.AcquiredBy != nil && *s.AcquiredBy == schedulerID &&
		s.AcquiredUntil != nil && s.AcquiredUntil.After(now)
}

// Terminal reports whether the schedule has no further fire times and is
// therefore eligible for removal on release.
func (s *Schedule) Terminal() bool {
	return s.NextFireTime == nil
}
