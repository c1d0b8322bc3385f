package bus

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/signal"
)

// JobStore persists recompute jobs in SQLite. The queue lives in the same
// database as the ledger so that Emit can append the signal and enqueue
// its job in a single transaction.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// CreateIn inserts a job via the given querier, usually the Emit
// transaction.
func (s *JobStore) CreateIn(ctx context.Context, q signal.Querier, job *RecomputeJob) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO recompute_jobs (id, entity_id, claim_type, origin_signal_id, status, error, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.EntityID, job.ClaimType, job.OriginSignalID, job.Status, job.Error, job.RetryCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to enqueue recompute job for %s/%s", job.EntityID, job.ClaimType)
	}
	return nil
}

// NextQueued claims the oldest queued job by flipping it to running.
// Returns nil when the queue is empty.
func (s *JobStore) NextQueued(ctx context.Context) (*RecomputeJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin dequeue transaction")
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx, `
		SELECT id, entity_id, claim_type, origin_signal_id, status, error, retry_count, created_at, updated_at
		FROM recompute_jobs
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT 1
	`, JobStatusQueued))
	if errors.Is(err, errors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Status = JobStatusRunning
	job.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE recompute_jobs SET status = ?, updated_at = ? WHERE id = ?
	`, job.Status, job.UpdatedAt, job.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to claim job %s", job.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit dequeue")
	}
	return job, nil
}

// Complete marks a job done.
func (s *JobStore) Complete(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recompute_jobs SET status = ?, error = '', updated_at = ? WHERE id = ?
	`, JobStatusCompleted, time.Now().UTC(), jobID)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", jobID)
	}
	return nil
}

// Fail records the error. Under the retry budget the job goes back to
// queued; past it the job fails terminally.
func (s *JobStore) Fail(ctx context.Context, jobID string, jobErr error) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	status := JobStatusFailed
	retries := job.RetryCount
	if retries < MaxJobRetries {
		status = JobStatusQueued
		retries++
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE recompute_jobs SET status = ?, error = ?, retry_count = ?, updated_at = ? WHERE id = ?
	`, status, jobErr.Error(), retries, time.Now().UTC(), jobID)
	if err != nil {
		return errors.Wrapf(err, "failed to record failure for job %s", jobID)
	}
	return nil
}

// Get loads one job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*RecomputeJob, error) {
	return scanJob(s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, claim_type, origin_signal_id, status, error, retry_count, created_at, updated_at
		FROM recompute_jobs WHERE id = ?
	`, jobID))
}

// RequeueRunning flips every running job back to queued. Called once at
// startup; running jobs at that point were orphaned by a crash.
func (s *JobStore) RequeueRunning(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recompute_jobs SET status = ?, error = '', updated_at = ?
		WHERE status = ?
	`, JobStatusQueued, time.Now().UTC(), JobStatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue orphaned jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Counts returns how many jobs sit queued and running.
func (s *JobStore) Counts(ctx context.Context) (queued, running int, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM recompute_jobs
		WHERE status IN (?, ?) GROUP BY status
	`, JobStatusQueued, JobStatusRunning)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, errors.Wrap(err, "failed to scan job count")
		}
		switch status {
		case JobStatusQueued:
			queued = n
		case JobStatusRunning:
			running = n
		}
	}
	return queued, running, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*RecomputeJob, error) {
	var job RecomputeJob
	err := row.Scan(&job.ID, &job.EntityID, &job.ClaimType, &job.OriginSignalID,
		&job.Status, &job.Error, &job.RetryCount, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan recompute job")
	}
	return &job, nil
}
