// Package dispatcher contains tests for job submission and worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/queue/memory"
	storemem "github.com/JakeFAU/guidecrawler/internal/storage/memory"
	"github.com/JakeFAU/guidecrawler/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, nil, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w}, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	queue := &errorQueue{err: errors.New("boom")}
	dispatch := New(queue, nil, nil, nil, nil, nil)

	err := dispatch.Enqueue(context.Background(), crawler.QueueItem{JobID: "job"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestDispatcherSubmitQueuesJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{now: now}
	jobs := storemem.NewJobStore(clock)
	queue := memory.NewQueue(1)
	dispatch := New(queue, nil, jobs, &fixedIDs{id: "job-1"}, clock, nil)

	params := crawler.JobParameters{BaseURL: "https://guide.example.com", MaxPages: 25}
	job, err := dispatch.Submit(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, crawler.JobStatusQueued, job.Status)

	stored, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusQueued, stored.Status)
	require.Equal(t, params, stored.Parameters)

	item, err := queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "job-1", item.JobID)
	require.Equal(t, params, item.Params)
	require.Equal(t, now.UnixNano(), item.Submitted)
}

func TestDispatcherSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(10, 0).UTC()}
	jobs := storemem.NewJobStore(clock)
	dispatch := New(&errorQueue{err: errors.New("full")}, nil, jobs, &fixedIDs{id: "job-2"}, clock, nil)

	_, err := dispatch.Submit(context.Background(), crawler.JobParameters{BaseURL: "https://x.test"})
	require.EqualError(t, err, "queue enqueue: full")

	stored, err := jobs.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, crawler.JobStatusFailed, stored.Status)
	require.Equal(t, "queue enqueue: full", stored.ErrorText)
}

func TestDispatcherSubmitLogsStatusUpdateFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	jobs := &failingJobStore{updateErr: errors.New("db down")}
	dispatch := New(&errorQueue{err: errors.New("full")}, nil, jobs, &fixedIDs{id: "job-3"}, fixedClock{}, zap.New(core))

	_, err := dispatch.Submit(context.Background(), crawler.JobParameters{BaseURL: "https://x.test"})
	require.EqualError(t, err, "queue enqueue: full")
	require.Equal(t, 1, jobs.updates)

	entries := logs.FilterMessage("failed to mark unqueued job failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "job-3", fields["job_id"])
	require.Equal(t, "db down", fields["error"])
}

func TestDispatcherSubmitIDFailure(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{}, nil, nil, &fixedIDs{err: errors.New("entropy")}, fixedClock{}, nil)
	_, err := dispatch.Submit(context.Background(), crawler.JobParameters{})
	require.EqualError(t, err, "generate job id: entropy")
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(_ context.Context, _ crawler.QueueItem) error {
	select {
	case q.started <- struct{}{}:
	default:
	}
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.QueueItem) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.QueueItem, error) {
	return crawler.QueueItem{}, nil
}

type failingJobStore struct {
	updateErr error
	updates   int
}

func (s *failingJobStore) CreateJob(context.Context, crawler.Job) error {
	return nil
}

func (s *failingJobStore) UpdateJobStatus(context.Context, string, crawler.JobStatus, string, crawler.JobCounters) error {
	s.updates++
	return s.updateErr
}

func (s *failingJobStore) GetJob(context.Context, string) (crawler.Job, error) {
	return crawler.Job{}, errors.New("not stored")
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type fixedIDs struct {
	id  string
	err error
}

func (f *fixedIDs) NewID() (string, error) {
	return f.id, f.err
}
