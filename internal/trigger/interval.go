package trigger

import (
	"errors"
	"time"
)

// ErrInvalidInterval mirrors golly's chrono.ErrInvalidInterval sentinel.
var ErrInvalidInterval = errors.New("trigger: interval must be positive")

// IntervalTrigger fires every fixed interval, generalizing golly's
// IntervalSchedule (Next(from) = from + interval) into the zero-arg,
// self-advancing Trigger contract used here.
type IntervalTrigger struct {
	interval time.Duration
	cursor   time.Time
	end      *time.Time
}

// NewIntervalTrigger creates a trigger that fires every interval starting
// at start. If end is non-nil, Next reports exhaustion once the computed
// fire time would be after it.
func NewIntervalTrigger(interval time.Duration, start time.Time, end *time.Time) (*IntervalTrigger, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	return &IntervalTrigger{interval: interval, cursor: start, end: end}, nil
}

func (t *IntervalTrigger) Next() (time.Time, bool, error) {
	next := t.cursor.Add(t.interval)
	if t.end != nil && next.After(*t.end) {
		return time.Time{}, false, nil
	}
	t.cursor = next
	return next, true, nil
}

func (t *IntervalTrigger) TriggerName() string { return "interval" }

type intervalGob struct {
	Interval time.Duration
	Cursor   time.Time
	End      *time.Time
}

func (t *IntervalTrigger) GobEncode() ([]byte, error) {
	return gobEncode(intervalGob{Interval: t.interval, Cursor: t.cursor, End: t.end})
}

func (t *IntervalTrigger) GobDecode(data []byte) error {
	var g intervalGob
	if err := gobDecode(data, &g); err != nil {
		return err
	}
	t.interval, t.cursor, t.end = g.Interval, g.Cursor, g.End
	return nil
}
