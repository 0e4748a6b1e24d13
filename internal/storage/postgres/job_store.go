package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

const (
	insertJobSQL = `INSERT INTO rebuild_jobs (id, status, submitted_at, error_text, parameters, counters)
VALUES ($1, $2, $3, $4, $5, $6)`

	updateJobSQL = `UPDATE rebuild_jobs SET
	status = $2,
	error_text = $3,
	counters = $4,
	started_at = CASE WHEN $5 AND started_at IS NULL THEN $7 ELSE started_at END,
	finished_at = CASE WHEN $6 THEN $7 ELSE finished_at END
WHERE id = $1`

	selectJobSQL = `SELECT id, status, submitted_at, started_at, finished_at, error_text, parameters, counters
FROM rebuild_jobs WHERE id = $1`
)

// JobStore implements crawler.JobStore on the rebuild_jobs table.
type JobStore struct {
	pool  Pool
	clock crawler.Clock
}

// NewJobStore wraps an existing pool.
func NewJobStore(pool Pool, clock crawler.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, clock: clock}, nil
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("encode job parameters: %w", err)
	}
	counters, err := json.Marshal(job.Counters)
	if err != nil {
		return fmt.Errorf("encode job counters: %w", err)
	}
	if _, err := s.pool.Exec(ctx, insertJobSQL,
		job.ID,
		string(job.Status),
		job.Submitted,
		job.ErrorText,
		params,
		counters,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus records a status transition, stamping started_at on the
// first running update and finished_at on terminal ones.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	errText string,
	counters crawler.JobCounters,
) error {
	encoded, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("encode job counters: %w", err)
	}
	tag, err := s.pool.Exec(ctx, updateJobSQL,
		jobID,
		string(status),
		errText,
		encoded,
		status == crawler.JobStatusRunning,
		status.Terminal(),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	var (
		job      crawler.Job
		status   string
		params   []byte
		counters []byte
	)
	err := s.pool.QueryRow(ctx, selectJobSQL, jobID).Scan(
		&job.ID,
		&status,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&job.ErrorText,
		&params,
		&counters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Job{}, fmt.Errorf("job %s: %w", jobID, storage.ErrNotFound)
		}
		return crawler.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = crawler.JobStatus(status)
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return crawler.Job{}, fmt.Errorf("decode job parameters: %w", err)
	}
	if err := json.Unmarshal(counters, &job.Counters); err != nil {
		return crawler.Job{}, fmt.Errorf("decode job counters: %w", err)
	}
	return job, nil
}

func (s *JobStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}
