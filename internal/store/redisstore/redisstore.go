// Package redisstore is the document-store reference back end for
// internal/store.Store. No MongoDB (or other document database) driver
// appears anywhere in the retrieved corpus, so this back end repurposes
// the Redis TTL-keyed blob pattern from target-mmk-ui-api's
// internal/data.RedisCacheRepo as the document-store stand-in: each
// Schedule/Job is one gob-encoded blob under its own key, fire-time
// ordering comes from a parallel sorted set, and the exclusive lock per
// row is target-mmk-ui-api's SetArgs{Mode: "NX", TTL: ...} pattern applied
// to a dedicated lock key instead of to the row itself — see DESIGN.md
// for why this substitution was made instead of dropping the back end.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/taskrun/internal/codec"
	"github.com/ErlanBelekov/taskrun/internal/domain"
	"github.com/ErlanBelekov/taskrun/internal/eventhub"
	"github.com/redis/go-redis/v9"
)

const lockExpirationDelay = 30 * time.Second

// Store is a Redis-backed Store implementation.
type Store struct {
	client         redis.UniversalClient
	codec          codec.Codec
	logger         *slog.Logger
	hub            *eventhub.Hub
	lockExpiration time.Duration
}

// New wraps an already-connected client. Lease length defaults to
// lockExpirationDelay; call SetLockExpiration to override it (cmd/*
// wires it from config.Config.LockExpirationSec).
func New(client redis.UniversalClient, logger *slog.Logger) *Store {
	logger = logger.With("component", "redisstore")
	return &Store{
		client:         client,
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
	return s.client.Close()
}

// Health checks the Redis connection, mirroring target-mmk-ui-api's
// RedisCacheRepo.Health.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// AddSchedule implements spec §4.1's insert-or-conflict-policy operation.
func (s *Store) AddSchedule(ctx context.Context, sched *domain.Schedule, policy domain.ConflictPolicy) error {
	blob, err := s.codec.Serialize(sched)
	if err != nil {
		return fmt.Errorf("serialize schedule %s: %w", sched.ID, err)
	}

	ok, err := s.client.SetArgs(ctx, scheduleKey(sched.ID), blob, redis.SetArgs{Mode: "NX"}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis set nx schedule %s: %w", sched.ID, err)
	}
	if err == nil && ok == "OK" {
		if err := s.indexSchedule(ctx, sched); err != nil {
			return err
		}
		s.hub.Publish(domain.NewScheduleAdded(sched.ID))
		return nil
	}

	switch policy {
	case domain.ConflictDoNothing:
		return nil
	case domain.ConflictReplace:
		if err := s.client.Set(ctx, scheduleKey(sched.ID), blob, 0).Err(); err != nil {
			return fmt.Errorf("replace schedule %s: %w", sched.ID, err)
		}
		if err := s.indexSchedule(ctx, sched); err != nil {
			return err
		}
		s.hub.Publish(domain.NewScheduleUpdated(sched.ID))
		return nil
	default:
		return domain.ErrConflictingID
	}
}

// indexSchedule places (or removes) sched.ID in the due-time sorted set.
func (s *Store) indexSchedule(ctx context.Context, sched *domain.Schedule) error {
	if sched.NextFireTime == nil {
		return s.client.ZRem(ctx, scheduleZSet, sched.ID).Err()
	}
	return s.client.ZAdd(ctx, scheduleZSet, redis.Z{
		Score:  float64(sched.NextFireTime.UnixNano()),
		Member: sched.ID,
	}).Err()
}

// RemoveSchedules removes ids whose lock key is absent, skipping any held
// by a live scheduler.
func (s *Store) RemoveSchedules(ctx context.Context, ids []string) error {
	var removed []string
	for _, id := range ids {
		held, err := s.client.Exists(ctx, scheduleLockKey(id)).Result()
		if err != nil {
			return fmt.Errorf("check schedule lock %s: %w", id, err)
		}
		if held > 0 {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, scheduleKey(id))
		pipe.ZRem(ctx, scheduleZSet, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("remove schedule %s: %w", id, err)
		}
		removed = append(removed, id)
	}
	for _, id := range removed {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

func (s *Store) GetSchedules(ctx context.Context, ids []string) ([]*domain.Schedule, error) {
	if len(ids) == 0 {
		members, err := s.client.ZRange(ctx, scheduleZSet, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list schedule ids: %w", err)
		}
		ids = members
	}
	return s.fetchSchedules(ctx, ids)
}

func (s *Store) fetchSchedules(ctx context.Context, ids []string) ([]*domain.Schedule, error) {
	out := make([]*domain.Schedule, 0, len(ids))
	for _, id := range ids {
		blob, err := s.client.Get(ctx, scheduleKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get schedule %s: %w", id, err)
		}
		var sched domain.Schedule
		if err := s.codec.Deserialize(blob, &sched); err != nil {
			s.hub.Publish(domain.NewScheduleDeserializationFailed(id, err))
			continue
		}
		out = append(out, &sched)
	}
	return out, nil
}

// AcquireSchedules scans the due-time sorted set ascending (ties broken
// lexicographically by id, matching ZRANGEBYSCORE's member ordering) and
// claims rows one at a time via a NX+PX lock key, skipping any already
// held, until limit rows are claimed or the candidate set is exhausted.
func (s *Store) AcquireSchedules(ctx context.Context, schedulerID string, limit int) ([]*domain.Schedule, error) {
	now := time.Now().UTC()
	candidates, err := s.client.ZRangeByScore(ctx, scheduleZSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixNano()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan due schedules: %w", err)
	}

	claimed := make([]*domain.Schedule, 0, limit)
	for _, id := range candidates {
		if len(claimed) >= limit {
			break
		}
		ok, err := s.client.SetArgs(ctx, scheduleLockKey(id), schedulerID, redis.SetArgs{
			Mode: "NX", TTL: s.lockExpiration,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("lock schedule %s: %w", id, err)
		}
		if !(err == nil && ok == "OK") {
			continue // already locked by another scheduler
		}

		blob, err := s.client.Get(ctx, scheduleKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			_ = s.client.Del(ctx, scheduleLockKey(id)).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get schedule %s: %w", id, err)
		}
		var sched domain.Schedule
		if err := s.codec.Deserialize(blob, &sched); err != nil {
			s.hub.Publish(domain.NewScheduleDeserializationFailed(id, err))
			_ = s.client.Del(ctx, scheduleLockKey(id)).Err()
			continue
		}

		owner := schedulerID
		until := now.Add(s.lockExpiration)
		sched.AcquiredBy = &owner
		sched.AcquiredUntil = &until
		claimed = append(claimed, &sched)
	}
	return claimed, nil
}

// ReleaseSchedules implements spec §4.1's release semantics: the lock key
// doubles as the ownership check (absent or mismatched value => lease was
// stolen; skip silently).
func (s *Store) ReleaseSchedules(ctx context.Context, schedulerID string, schedules []*domain.Schedule) error {
	var updated, removed []string
	for _, sched := range schedules {
		owner, err := s.client.Get(ctx, scheduleLockKey(sched.ID)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get schedule lock %s: %w", sched.ID, err)
		}
		if owner != schedulerID {
			continue
		}

		if sched.Terminal() {
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, scheduleKey(sched.ID))
			pipe.ZRem(ctx, scheduleZSet, sched.ID)
			pipe.Del(ctx, scheduleLockKey(sched.ID))
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("delete schedule %s on release: %w", sched.ID, err)
			}
			removed = append(removed, sched.ID)
			continue
		}

		next := *sched
		next.AcquiredBy = nil
		next.AcquiredUntil = nil
		blob, err := s.codec.Serialize(&next)
		if err != nil {
			return fmt.Errorf("serialize schedule %s on release: %w", sched.ID, err)
		}
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, scheduleKey(sched.ID), blob, 0)
		if next.NextFireTime != nil {
			pipe.ZAdd(ctx, scheduleZSet, redis.Z{Score: float64(next.NextFireTime.UnixNano()), Member: sched.ID})
		} else {
			pipe.ZRem(ctx, scheduleZSet, sched.ID)
		}
		pipe.Del(ctx, scheduleLockKey(sched.ID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("update schedule %s on release: %w", sched.ID, err)
		}
		updated = append(updated, sched.ID)
	}

	for _, id := range updated {
		s.hub.Publish(domain.NewScheduleUpdated(id))
	}
	for _, id := range removed {
		s.hub.Publish(domain.NewScheduleRemoved(id))
	}
	return nil
}

func (s *Store) AddJob(ctx context.Context, j *domain.Job) error {
	blob, err := s.codec.Serialize(j)
	if err != nil {
		return fmt.Errorf("serialize job %s: %w", j.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKey(j.ID), blob, 0)
	pipe.ZAdd(ctx, jobZSet, redis.Z{Score: float64(j.CreatedAt.UnixNano()), Member: j.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add job %s: %w", j.ID, err)
	}
	s.hub.Publish(domain.NewJobAdded(j.ID, j.ScheduleID))
	return nil
}

func (s *Store) GetJobs(ctx context.Context, ids []string) ([]*domain.Job, error) {
	if len(ids) == 0 {
		members, err := s.client.ZRange(ctx, jobZSet, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list job ids: %w", err)
		}
		ids = members
	}
	out := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		blob, err := s.client.Get(ctx, jobKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get job %s: %w", id, err)
		}
		var j domain.Job
		if err := s.codec.Deserialize(blob, &j); err != nil {
			s.hub.Publish(domain.NewJobDeserializationFailed(id, err))
			continue
		}
		out = append(out, &j)
	}
	return out, nil
}

// AcquireJobs scans the creation-order sorted set (FIFO) and claims up to
// limit jobs via the same NX+PX lock-key pattern as AcquireSchedules.
func (s *Store) AcquireJobs(ctx context.Context, workerID string, limit int) ([]*domain.Job, error) {
	candidates, err := s.client.ZRange(ctx, jobZSet, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}

	acquired := make([]*domain.Job, 0, limit)
	until := time.Now().UTC().Add(s.lockExpiration)
	for _, id := range candidates {
		if len(acquired) >= limit {
			break
		}
		ok, err := s.client.SetArgs(ctx, jobLockKey(id), workerID, redis.SetArgs{
			Mode: "NX", TTL: s.lockExpiration,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("lock job %s: %w", id, err)
		}
		if !(err == nil && ok == "OK") {
			continue
		}

		blob, err := s.client.Get(ctx, jobKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			_ = s.client.Del(ctx, jobLockKey(id)).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get job %s: %w", id, err)
		}
		var j domain.Job
		if err := s.codec.Deserialize(blob, &j); err != nil {
			s.hub.Publish(domain.NewJobDeserializationFailed(id, err))
			_ = s.client.Del(ctx, jobLockKey(id)).Err()
			continue
		}

		owner := workerID
		u := until
		j.AcquiredBy = &owner
		j.AcquiredUntil = &u
		acquired = append(acquired, &j)
	}
	return acquired, nil
}

// ReleaseJobs deletes the rows still owned by workerID, per the lock key.
func (s *Store) ReleaseJobs(ctx context.Context, workerID string, jobs []*domain.Job) error {
	for _, j := range jobs {
		owner, err := s.client.Get(ctx, jobLockKey(j.ID)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get job lock %s: %w", j.ID, err)
		}
		if owner != workerID {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, jobKey(j.ID))
		pipe.ZRem(ctx, jobZSet, j.ID)
		pipe.Del(ctx, jobLockKey(j.ID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("release job %s: %w", j.ID, err)
		}
	}
	return nil
}

// Clear removes every key this back end owns, scanning by prefix rather
// than issuing FLUSHDB so a shared Redis instance stays safe to use.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}
