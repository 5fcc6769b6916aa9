package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTrigger fires on a standard 5-field cron expression, exactly as
// parsed by the teacher's Dispatcher (robfig/cron/v3, ParseStandard).
// Unlike the teacher's computeNext helper — which silently skips past-due
// runs in a loop — CronTrigger returns every due fire time one call at a
// time; coalescence across multiple past-due fires is the Scheduler's
// responsibility (spec §4.2), not the trigger's.
type CronTrigger struct {
	expr     string
	schedule cron.Schedule
	cursor   time.Time
}

// NewCronTrigger parses expr (standard 5-field cron syntax, including the
// @yearly/@monthly/... macros) and starts the cursor at now.
func NewCronTrigger(expr string, now time.Time) (*CronTrigger, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return &CronTrigger{expr: expr, schedule: sched, cursor: now}, nil
}

func (t *CronTrigger) Next() (time.Time, bool, error) {
	next := t.schedule.Next(t.cursor)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	t.cursor = next
	return next, true, nil
}

func (t *CronTrigger) TriggerName() string { return "cron" }

// Expr returns the configured cron expression, for display/debugging.
func (t *CronTrigger) Expr() string { return t.expr }

type cronGob struct {
	Expr   string
	Cursor time.Time
}

// GobEncode lets codec.GobCodec round-trip CronTrigger through
// Schedule.SerializedTrigger — the expression is re-parsed on decode since
// robfig/cron's cron.Schedule is not itself serializable.
func (t *CronTrigger) GobEncode() ([]byte, error) {
	return gobEncode(cronGob{Expr: t.expr, Cursor: t.cursor})
}

func (t *CronTrigger) GobDecode(data []byte) error {
	var g cronGob
	if err := gobDecode(data, &g); err != nil {
		return err
	}
	sched, err := cron.ParseStandard(g.Expr)
	if err != nil {
		return fmt.Errorf("parse cron expression %q: %w", g.Expr, err)
	}
	t.expr = g.Expr
	t.schedule = sched
	t.cursor = g.Cursor
	return nil
}
