// Package trigger defines the Trigger contract (spec §6) and ships three
// reference implementations — cron, interval, and one-shot date — in the
// manner golly's chrono package ships IntervalSchedule/OneShotSchedule and
// the teacher ships robfig/cron usage directly in its Dispatcher.
package trigger

import "time"

// Trigger is a stateful generator of future firing times. It tracks its
// own cursor internally (the last fire time it produced, or its
// construction time for a trigger that has never fired); each call to
// Next advances that cursor and returns the next value in a
// non-decreasing sequence. ok is false (fireTime is the zero value) once
// the trigger is exhausted. Next never panics: malformed state is
// reported via err so the Scheduler can terminalize the owning schedule
// per spec §4.2/§7 instead of recovering from a panic.
type Trigger interface {
	Next() (fireTime time.Time, ok bool, err error)
}

// Named is implemented by triggers that know their own kind name. The
// codec does not use it: the concrete type behind a
// Schedule.SerializedTrigger blob is recovered through the gob
// registrations in registry.go.
type Named interface {
	TriggerName() string
}
