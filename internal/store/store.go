// Package store defines the Data Store contract (spec §4.1): atomic
// acquire/release of schedules and jobs across cooperating scheduler and
// worker instances, with lease expiration for crash tolerance. Concrete
// back ends (internal/store/memstore, internal/store/pgstore,
// internal/store/redisstore) are plug-ins of this interface, the way the
// teacher's internal/repository interfaces are implemented by its
// internal/infrastructure/postgres package.
package store

import (
	"context"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
)

// Store is the synchronous, from-the-caller's-perspective Data Store
// contract. Back ends may block on I/O; they must uphold the four
// invariants in spec §4.1: (1) mutual exclusion on acquired rows, (2)
// lease-based crash recovery, (3) events emitted only after commit, (4)
// per-row deserialization failures never abort a batch.
type Store interface {
	AddSchedule(ctx context.Context, s *domain.Schedule, policy domain.ConflictPolicy) error
	RemoveSchedules(ctx context.Context, ids []string) error
	GetSchedules(ctx context.Context, ids []string) ([]*domain.Schedule, error)
	AcquireSchedules(ctx context.Context, schedulerID string, limit int) ([]*domain.Schedule, error)
	ReleaseSchedules(ctx context.Context, schedulerID string, schedules []*domain.Schedule) error

	AddJob(ctx context.Context, j *domain.Job) error
	GetJobs(ctx context.Context, ids []string) ([]*domain.Job, error)
	AcquireJobs(ctx context.Context, workerID string, limit int) ([]*domain.Job, error)
	ReleaseJobs(ctx context.Context, workerID string, jobs []*domain.Job) error

	Clear(ctx context.Context) error

	Subscribe(cb eventhub.Callback, eventTypes ...domain.Event) eventhub.Token
	Unsubscribe(token eventhub.Token)

	Close() error
}

// DefaultLockExpirationDelay bounds the time a crashed instance can hold a row
// (spec §5). 30s, matching spec's stated default.
const DefaultLockExpirationDelay = 30 * time.Second

// AttemptRecorder is an optional capability: back ends that keep an audit
// trail of job attempts implement it (pgstore only — see SPEC_FULL.md §3).
// It is not part of the core Store contract.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, jobID string, outcome string, detail string) error
}
