package domain

import "errors"

var (
	ErrConflictingID      = errors.New("schedule with this id already exists")
	ErrScheduleNotFound   = errors.New("schedule not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrNotOwner           = errors.New("caller does not own the lock on this row")
	ErrSerializeFailed    = errors.New("serialize schedule or job")
	ErrDeserializeFailed  = errors.New("deserialize schedule or job")
	ErrUnknownTask        = errors.New("task id is not registered")
	ErrSchedulerStopped   = errors.New("scheduler is not running")
	ErrWorkerStopped      = errors.New("worker is not running")
)
