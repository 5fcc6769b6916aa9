package pgstore

import (
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/domain"
)

// rowScanner is satisfied by both pgx.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sched domain.Schedule
	var argsBlob, kwargsBlob []byte
	var misfireSecs *float64

	if err := row.Scan(
		&sched.ID, &sched.TaskID, &argsBlob, &kwargsBlob, &sched.SerializedTrigger,
		&sched.Coalesce, &misfireSecs, &sched.Tags, &sched.NextFireTime, &sched.LastFireTime,
		&sched.AcquiredBy, &sched.AcquiredUntil,
	); err != nil {
		return nil, fmt.Errorf("scan schedule row: %w", err)
	}

	if misfireSecs != nil {
		d := time.Duration(*misfireSecs * float64(time.Second))
		sched.MisfireGraceTime = &d
	}
	if argsBlob != nil {
		if err := s.codec.Deserialize(argsBlob, &sched.Args); err != nil {
			return nil, fmt.Errorf("deserialize schedule %s args: %w", sched.ID, err)
		}
	}
	if kwargsBlob != nil {
		if err := s.codec.Deserialize(kwargsBlob, &sched.Kwargs); err != nil {
			return nil, fmt.Errorf("deserialize schedule %s kwargs: %w", sched.ID, err)
		}
	}
	return &sched, nil
}

// scanJob has no codec dependency on Store since jobs carry no trigger
// state; it is a free function so AcquireJobs's RETURNING-clause rows can
// use it without threading a *Store through.
func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var argsBlob, kwargsBlob []byte

	if err := row.Scan(
		&j.ID, &j.TaskID, &j.ScheduleID, &argsBlob, &kwargsBlob,
		&j.ScheduledFireTime, &j.StartDeadline, &j.Tags, &j.CreatedAt,
		&j.AcquiredBy, &j.AcquiredUntil,
	); err != nil {
		return nil, fmt.Errorf("scan job row: %w", err)
	}

	codec := codec.NewGobCodec()
	if argsBlob != nil {
		if err := codec.Deserialize(argsBlob, &j.Args); err != nil {
			return nil, fmt.Errorf("deserialize job %s args: %w", j.ID, err)
		}
	}
	if kwargsBlob != nil {
		if err := codec.Deserialize(kwargsBlob, &j.Kwargs); err != nil {
			return nil, fmt.Errorf("deserialize job %s kwargs: %w", j.ID, err)
		}
	}
	return &j, nil
}
