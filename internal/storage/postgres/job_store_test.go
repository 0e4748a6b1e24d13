package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestJobStoreCreateAndUpdate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store, err := NewJobStore(mock, fixedClock{t: now})
	require.NoError(t, err)

	job := crawler.Job{
		ID:         "job-1",
		Status:     crawler.JobStatusQueued,
		Submitted:  now,
		Parameters: crawler.JobParameters{BaseURL: "https://guide.example.com", MaxPages: 5},
	}
	mock.ExpectExec("INSERT INTO rebuild_jobs").
		WithArgs("job-1", "queued", now, "",
			[]byte(`{"base_url":"https://guide.example.com","max_pages":5}`),
			[]byte(`{"pages":0,"chunks":0,"pages_failed":0,"deleted":0}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.CreateJob(context.Background(), job))

	mock.ExpectExec("UPDATE rebuild_jobs").
		WithArgs("job-1", "succeeded", "",
			[]byte(`{"pages":3,"chunks":7,"pages_failed":1,"deleted":2}`),
			false, true, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	err = store.UpdateJobStatus(context.Background(), "job-1", crawler.JobStatusSucceeded, "",
		crawler.JobCounters{Pages: 3, Chunks: 7, PagesFailed: 1, Deleted: 2})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE rebuild_jobs").
		WithArgs("ghost", "running", "", pgxmock.AnyArg(), true, false, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = store.UpdateJobStatus(context.Background(), "ghost", crawler.JobStatusRunning, "", crawler.JobCounters{})
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewJobStore(mock, nil)
	require.NoError(t, err)

	submitted := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	started := submitted.Add(time.Second)
	rows := pgxmock.NewRows([]string{"id", "status", "submitted_at", "started_at", "finished_at", "error_text", "parameters", "counters"}).
		AddRow("job-1", "running", submitted, &started, (*time.Time)(nil), "",
			[]byte(`{"base_url":"https://guide.example.com","max_pages":5}`),
			[]byte(`{"pages":1,"chunks":2,"pages_failed":0,"deleted":4}`))
	mock.ExpectQuery("SELECT id, status").WithArgs("job-1").WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusRunning, job.Status)
	require.Equal(t, started, *job.Started)
	require.Nil(t, job.Finished)
	require.Equal(t, "https://guide.example.com", job.Parameters.BaseURL)
	require.Equal(t, 4, job.Counters.Deleted)

	mock.ExpectQuery("SELECT id, status").WithArgs("nope").WillReturnError(pgx.ErrNoRows)
	_, err = store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
