package pgstore

import "context"

// Schema is the migration applied by cmd/schedulerd and cmd/workerd on
// startup, grounded on the teacher's internal/infrastructure/postgres
// migration files: one metadata singleton row recording schema_version,
// generalized from the teacher's webhook-specific columns to the
// Schedule/Job domain types, with args/kwargs/trigger state kept as
// opaque gob blobs since Postgres has no native arbitrary-Go-value column.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
	id INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	schema_version INT NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	args_blob BYTEA,
	kwargs_blob BYTEA,
	trigger_blob BYTEA NOT NULL,
	coalesce_policy TEXT NOT NULL,
	misfire_grace_seconds DOUBLE PRECISION,
	tags TEXT[],
	next_fire_time TIMESTAMPTZ,
	last_fire_time TIMESTAMPTZ,
	acquired_by TEXT,
	acquired_until TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_schedules_next_fire_time ON schedules (next_fire_time);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	schedule_id TEXT,
	args_blob BYTEA,
	kwargs_blob BYTEA,
	scheduled_fire_time TIMESTAMPTZ,
	start_deadline TIMESTAMPTZ,
	tags TEXT[],
	created_at TIMESTAMPTZ NOT NULL,
	acquired_by TEXT,
	acquired_until TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at);

CREATE TABLE IF NOT EXISTS job_attempts (
	id BIGSERIAL PRIMARY KEY,
	job_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_attempts_job_id ON job_attempts (job_id);

INSERT INTO metadata (id, schema_version) VALUES (1, 1)
ON CONFLICT (id) DO NOTHING;
`

// Migrate applies Schema. It is idempotent and safe to call on every
// process start, matching the teacher's own startup migration call.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

const scheduleSelectCols = `SELECT id, task_id, args_blob, kwargs_blob, trigger_blob,
	coalesce_policy, misfire_grace_seconds, tags, next_fire_time, last_fire_time,
	acquired_by, acquired_until`

const jobSelectCols = `SELECT id, task_id, schedule_id, args_blob, kwargs_blob,
	scheduled_fire_time, start_deadline, tags, created_at, acquired_by, acquired_until`

const jobReturningCols = `id, task_id, schedule_id, args_blob, kwargs_blob,
	scheduled_fire_time, start_deadline, tags, created_at, acquired_by, acquired_until`
