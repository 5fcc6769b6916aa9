package redisstore

const (
	keyPrefix = "taskrun:"

	scheduleZSet = keyPrefix + "schedules:due"
	jobZSet      = keyPrefix + "jobs:fifo"
)

func scheduleKey(id string) string     { return keyPrefix + "schedule:" + id }
func scheduleLockKey(id string) string { return keyPrefix + "schedule:lock:" + id }
func jobKey(id string) string          { return keyPrefix + "job:" + id }
func jobLockKey(id string) string      { return keyPrefix + "job:lock:" + id }
