package handler

const (
	errInternalServer    = "Internal server error"
	errScheduleNotFound  = "Schedule not found"
	errJobNotFound       = "Job not found"
	errConflictingID     = "Schedule with this id already exists"
	errUnknownTask       = "task_id is not registered"
	errInvalidTrigger    = "invalid trigger"
)
