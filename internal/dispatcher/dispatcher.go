// Package dispatcher manages rebuild job submission and worker fan-out over
// the job queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue    crawler.Queue
	workers  []*worker.Worker
	jobStore crawler.JobStore
	ids      crawler.IDGenerator
	clock    crawler.Clock
	logger   *zap.Logger
}

// New creates a Dispatcher. A nil logger discards output.
func New(
	queue crawler.Queue,
	workers []*worker.Worker,
	jobStore crawler.JobStore,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		workers:  workers,
		jobStore: jobStore,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit records a queued job for params and enqueues it. A job whose
// enqueue fails is marked failed before the error is returned.
func (d *Dispatcher) Submit(ctx context.Context, params crawler.JobParameters) (crawler.Job, error) {
	jobID, err := d.ids.NewID()
	if err != nil {
		return crawler.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := crawler.Job{
		ID:         jobID,
		Status:     crawler.JobStatusQueued,
		Submitted:  d.clock.Now(),
		Parameters: params,
	}
	if err := d.jobStore.CreateJob(ctx, job); err != nil {
		return crawler.Job{}, fmt.Errorf("create job: %w", err)
	}
	item := crawler.QueueItem{
		JobID:     job.ID,
		Params:    params,
		Submitted: job.Submitted.UnixNano(),
	}
	if err := d.Enqueue(ctx, item); err != nil {
		if updateErr := d.jobStore.UpdateJobStatus(
			context.WithoutCancel(ctx),
			job.ID,
			crawler.JobStatusFailed,
			err.Error(),
			crawler.JobCounters{},
		); updateErr != nil {
			d.logger.Error("failed to mark unqueued job failed",
				zap.String("job_id", job.ID),
				zap.Error(updateErr),
			)
		}
		return crawler.Job{}, err
	}
	return job, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
