// Package pgstore is the relational reference back end for
// internal/store.Store, grounded directly on the teacher's
// internal/infrastructure/postgres package: same pgxpool.Pool, same
// `FOR UPDATE SKIP LOCKED` claim pattern as ScheduleRepository.ClaimAndFire
// and JobRepository.Claim, generalized from "claim and immediately fire a
// job" to the spec's separate AcquireSchedules/ReleaseSchedules pair.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaVersion is recorded in the metadata singleton row per spec §6.
const SchemaVersion = 1

// Store is a Postgres-backed Store implementation.
type Store struct {
	pool           *pgxpool.Pool
	codec          codec.Codec
	logger         *slog.Logger
	hub            *eventhub.Hub
	lockExpiration time.Duration
}

// New wraps an already-connected pool. Callers are expected to have run
// the Schema migration (see schema.go) before use. Lease length defaults
// to lockExpirationDelay; call SetLockExpiration to override it (cmd/*
// wires it from config.Config.LockExpirationSec).
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	logger = logger.With("component", "pgstore")
	return &Store{
		pool:           pool,
		codec:          codec.NewGobCodec(),
		logger:         logger,
		hub:            eventhub.New(logger, 256),
		lockExpiration: lockExpirationDelay,
	}
}

// SetLockExpiration overrides the lease length used by future Acquire*
// calls.
func (s *Store) SetLockExpiration(d time.Duration) { s.lockExpiration = d }

func (s *Store) Subscribe(cb eventhub.Callback, eventTypes ...domain.Event) eventhub.Token {
	return s.hub.Subscribe(cb, eventTypes...)
}

func (s *Store) Unsubscribe(token eventhub.Token) { s.hub.Unsubscribe(token) }

func (s *Store) Close() error {
	s.hub.Stop(context.Background())
	s.pool.Close()
	return nil
}

// AddSchedule mirrors the teacher's ScheduleRepository.Create conflict
// handling (pgErr.Code == "23505" => domain error) generalized to the
// three-way spec conflict policy.
func (s *Store) AddSchedule(ctx context.Context, sched *domain.Schedule, policy domain.ConflictPolicy) error {
	argsBlob, kwargsBlob, err := s.encodeArgsKwargs(sched.Args, sched.Kwargs)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO schedules (id, task_id, args_blob, kwargs_blob, trigger_blob,
			coalesce_policy, misfire_grace_seconds, tags, next_fire_time, last_fire_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		sched.ID, sched.TaskID, argsBlob, kwargsBlob, sched.SerializedTrigger, sched.Coalesce,
		misfireSeconds(sched.MisfireGraceTime), sched.Tags,
		sched.NextFireTime, sched.LastFireTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return s.resolveConflict(ctx, sched, policy, argsBlob, kwargsBlob)
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.resolveConflict(ctx, sched, policy, argsBlob, kwargsBlob)
	}

	s.hub.Publish(domain.NewScheduleAdded(sched.ID))
	return nil
}

func (s *Store) encodeArgsKwargs(args []any, kwargs map[string]any) (argsBlob, kwargsBlob []byte, err error) {
	if len(args) > 0 {
		if argsBlob, err = s.codec.Serialize(args); err != nil {
			return nil, nil, fmt.Errorf("serialize args: %w", err)
		}
	}
	if len(kwargs) > 0 {
		if kwargsBlob, err = s.codec.Serialize(kwargs); err != nil {
			return nil, nil, fmt.Errorf("serialize kwargs: %w", err)
		}
	}
	return argsBlob, kwargsBlob, nil
}

func (s *Store) resolveConflict(ctx context.Context, sched *domain.Schedule, policy domain.ConflictPolicy, argsBlob, kwargsBlob []byte) error {
	switch policy {
	case domain.ConflictDoNothing:
		return nil
	case domain.ConflictReplace:
		_, err := s.pool.Exec(ctx, `
			UPDATE schedules
			SET task_id = $2, args_blob = $3, kwargs_blob = $4, trigger_blob = $5,
			    coalesce_policy = $6, misfire_grace_seconds = $7, tags = $8,
			    next_fire_time = $9, last_fire_time = $10
			WHERE id = $1`,
			sched.ID, sched.TaskID, argsBlob, kwargsBlob, sched.SerializedTrigger, sched.Coalesce,
			misfireSeconds(sched.MisfireGraceTime), sched.Tags,
			sched.NextFireTime, sched.LastFireTime,
		)
		if err != nil {
			return fmt.Errorf("replace schedule: %w", err)
		}
		s.hub.Publish(domain.NewScheduleUpdated(sched.ID))
		return nil
	default:
		return domain.ErrConflictingID
	}
}

// RemoveSchedules resolves Open Question 2 from spec §9: pre-select
// candidates with FOR UPDATE SKIP LOCKED inside the same transaction that
// deletes them, so the "removed ids" set is always known precisely —
// there is no dialect-dependent RETURNING fallback to get wrong.
func (s *Store) RemoveSchedules(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id FROM schedules
		WHERE id = ANY($1) AND (acquired_until IS NULL OR acquired_until < NOW())
		FOR UPDATE SKIP LOCKED`, ids)
	if err != nil {
		return fmt.Errorf("select removable schedules: %w", err)
	}
	var removable []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan removable id: %w", err)
		}
		removable = append(removable, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate removable ids: %w", err)
	}

	if len(removable) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM schedules WHERE id = ANY($1)`, removable); err != nil {
			return fmt.Errorf("delete schedules: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, id := range removable {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

func (s *Store) GetSchedules(ctx context.Context, ids []string) ([]*domain.Schedule, error) {
	var rows pgx.Rows
	var err error
	if len(ids) > 0 {
		rows, err = s.pool.Query(ctx, scheduleSelectCols+` FROM schedules WHERE id = ANY($1) ORDER BY id`, ids)
	} else {
		rows, err = s.pool.Query(ctx, scheduleSelectCols+` FROM schedules ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("select schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Schedule
	for rows.Next() {
		sched, failErr := s.scanSchedule(rows)
		if failErr != nil {
			s.hub.Publish(domain.NewScheduleDeserializationFailed("", failErr))
			continue
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// AcquireSchedules is the central lock primitive, generalizing the
// teacher's ClaimAndFire's claim half (FOR UPDATE SKIP LOCKED, ordered by
// next_fire_time) without the job-insertion half — job emission is the
// Scheduler's job, not the store's, per spec §4.2.
func (s *Store) AcquireSchedules(ctx context.Context, schedulerID string, limit int) ([]*domain.Schedule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, scheduleSelectCols+` FROM schedules
		WHERE next_fire_time IS NOT NULL AND next_fire_time <= NOW()
		  AND (acquired_until IS NULL OR acquired_until < NOW())
		ORDER BY next_fire_time ASC, id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim schedules: %w", err)
	}
	var claimed []*domain.Schedule
	var deserFailures []error
	for rows.Next() {
		sched, failErr := s.scanSchedule(rows)
		if failErr != nil {
			deserFailures = append(deserFailures, failErr)
			continue
		}
		claimed = append(claimed, sched)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed schedules: %w", err)
	}

	until := time.Now().UTC().Add(s.lockExpiration)
	for _, sched := range claimed {
		if _, err := tx.Exec(ctx,
			`UPDATE schedules SET acquired_by = $2, acquired_until = $3 WHERE id = $1`,
			sched.ID, schedulerID, until); err != nil {
			return nil, fmt.Errorf("stamp lock on schedule %s: %w", sched.ID, err)
		}
		owner := schedulerID
		sched.AcquiredBy = &owner
		u := until
		sched.AcquiredUntil = &u
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	for _, failErr := range deserFailures {
		s.hub.Publish(domain.NewScheduleDeserializationFailed("", failErr))
	}
	if claimed == nil {
		claimed = []*domain.Schedule{}
	}
	return claimed, nil
}

// ReleaseSchedules mirrors spec §4.1's release rule set.
func (s *Store) ReleaseSchedules(ctx context.Context, schedulerID string, schedules []*domain.Schedule) error {
	var updated, removed []string
	for _, sched := range schedules {
		tag, err := s.releaseOne(ctx, schedulerID, sched)
		if err != nil {
			return err
		}
		switch tag {
		case "updated":
			updated = append(updated, sched.ID)
		case "removed":
			removed = append(removed, sched.ID)
		}
	}
	for _, id := range updated {
		s.hub.Publish(domain.NewScheduleUpdated(id))
	}
	for _, id := range removed {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

func (s *Store) releaseOne(ctx context.Context, schedulerID string, sched *domain.Schedule) (string, error) {
	if sched.Terminal() {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM schedules WHERE id = $1 AND acquired_by = $2`, sched.ID, schedulerID)
		if err != nil {
			return "", fmt.Errorf("delete schedule %s on release: %w", sched.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return "", nil // lease was stolen; silently skip
		}
		return "removed", nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE schedules
		SET trigger_blob = $3, next_fire_time = $4, last_fire_time = $5,
		    acquired_by = NULL, acquired_until = NULL
		WHERE id = $1 AND acquired_by = $2`,
		sched.ID, schedulerID, sched.SerializedTrigger, sched.NextFireTime, sched.LastFireTime,
	)
	if err != nil {
		return "", fmt.Errorf("update schedule %s on release: %w", sched.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return "", nil
	}
	return "updated", nil
}

func (s *Store) AddJob(ctx context.Context, j *domain.Job) error {
	argsBlob, kwargsBlob, err := s.encodeArgsKwargs(j.Args, j.Kwargs)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, task_id, schedule_id, args_blob, kwargs_blob,
			scheduled_fire_time, start_deadline, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.TaskID, j.ScheduleID, argsBlob, kwargsBlob,
		j.ScheduledFireTime, j.StartDeadline, j.Tags, j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", j.ID, err)
	}
	s.hub.Publish(domain.NewJobAdded(j.ID, j.ScheduleID))
	return nil
}

func (s *Store) GetJobs(ctx context.Context, ids []string) ([]*domain.Job, error) {
	var rows pgx.Rows
	var err error
	if len(ids) > 0 {
		rows, err = s.pool.Query(ctx, jobSelectCols+` FROM jobs WHERE id = ANY($1) ORDER BY id`, ids)
	} else {
		rows, err = s.pool.Query(ctx, jobSelectCols+` FROM jobs ORDER BY id`)
	}
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, failErr := scanJob(rows)
		if failErr != nil {
			s.hub.Publish(domain.NewJobDeserializationFailed("", failErr))
			continue
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// AcquireJobs always returns a non-nil slice (possibly empty), resolving
// Open Question 1 from spec §9.
func (s *Store) AcquireJobs(ctx context.Context, workerID string, limit int) ([]*domain.Job, error) {
	until := time.Now().UTC().Add(s.lockExpiration)
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs
		SET acquired_by = $1, acquired_until = $2
		WHERE id IN (
			SELECT id FROM jobs
			WHERE acquired_until IS NULL OR acquired_until < NOW()
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobReturningCols, workerID, until, limit)
	if err != nil {
		return nil, fmt.Errorf("acquire jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*domain.Job{}
	var deserFailures []error
	for rows.Next() {
		j, failErr := scanJob(rows)
		if failErr != nil {
			deserFailures = append(deserFailures, failErr)
			continue
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, failErr := range deserFailures {
		s.hub.Publish(domain.NewJobDeserializationFailed("", failErr))
	}
	return jobs, nil
}

func (s *Store) ReleaseJobs(ctx context.Context, workerID string, jobs []*domain.Job) error {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1) AND acquired_by = $2`, ids, workerID)
	if err != nil {
		return fmt.Errorf("release jobs: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE schedules, jobs`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

// RecordAttempt implements store.AttemptRecorder, repurposing the
// teacher's job_attempts table as pure audit trail (see SPEC_FULL.md §3).
func (s *Store) RecordAttempt(ctx context.Context, jobID string, outcome string, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_attempts (job_id, outcome, detail, recorded_at)
		VALUES ($1, $2, $3, NOW())`, jobID, outcome, detail)
	if err != nil {
		return fmt.Errorf("record attempt for job %s: %w", jobID, err)
	}
	return nil
}

const lockExpirationDelay = 30 * time.Second

func misfireSeconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	v := d.Seconds()
	return &v
}
