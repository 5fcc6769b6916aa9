package trigger

import "time"

// DateTrigger fires exactly once at a fixed time, generalizing golly's
// OneShotSchedule (Next returns the zero time once `from` is past runAt).
type DateTrigger struct {
	runAt time.Time
	fired bool
}

// NewDateTrigger returns a trigger that fires once at runAt.
func NewDateTrigger(runAt time.Time) *DateTrigger {
	return &DateTrigger{runAt: runAt}
}

func (t *DateTrigger) Next() (time.Time, bool, error) {
	if t.fired {
		return time.Time{}, false, nil
	}
	t.fired = true
	return t.runAt, true, nil
}

func (t *DateTrigger) TriggerName() string { return "date" }

type dateGob struct {
	RunAt time.Time
	Fired bool
}

func (t *DateTrigger) GobEncode() ([]byte, error) {
	return gobEncode(dateGob{RunAt: t.runAt, Fired: t.fired})
}

func (t *DateTrigger) GobDecode(data []byte) error {
	var g dateGob
	if err := gobDecode(data, &g); err != nil {
		return err
	}
	t.runAt, t.fired = g.RunAt, g.Fired
	return nil
}
