// Package worker implements the rebuild job execution loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/guidecrawler/internal/crawler"
	"github.com/JakeFAU/guidecrawler/internal/ingest"
	"github.com/JakeFAU/guidecrawler/internal/metrics"
)

// Rebuilder re-crawls and re-ingests one domain.
type Rebuilder interface {
	Rebuild(ctx context.Context, baseURL string, maxPages int, progress ingest.ProgressFunc) (ingest.RebuildReport, error)
}

// Config controls Worker behavior.
type Config struct {
	// ProgressInterval is the minimum gap between persisted counter
	// updates while a job runs. Zero persists after every page.
	ProgressInterval time.Duration
}

// Worker consumes queue items and runs domain rebuilds.
type Worker struct {
	queue     crawler.Queue
	jobStore  crawler.JobStore
	rebuilder Rebuilder
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue crawler.Queue,
	jobStore crawler.JobStore,
	rebuilder Rebuilder,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		rebuilder: rebuilder,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			if !w.waitBeforeRetry(ctx) {
				return
			}
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.Duration("queue_wait", w.queueWait(item)),
		)
		w.processJob(ctx, item)
	}
}

func (w *Worker) waitBeforeRetry(ctx context.Context) bool {
	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) queueWait(item crawler.QueueItem) time.Duration {
	if item.Submitted == 0 {
		return 0
	}
	return w.now().Sub(time.Unix(0, item.Submitted))
}

func (w *Worker) processJob(ctx context.Context, item crawler.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("base_url", item.Params.BaseURL))
	if w.rebuilder == nil {
		logger.Error("no rebuilder configured")
		w.finish(ctx, item.JobID, crawler.JobStatusFailed, "no rebuilder configured", crawler.JobCounters{})
		return
	}

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", crawler.JobCounters{}); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}
	logger.Info("rebuild job started", zap.Int("max_pages", item.Params.MaxPages))

	var lastPersist time.Time
	progress := func(report ingest.RebuildReport) {
		now := w.now()
		if !lastPersist.IsZero() && now.Sub(lastPersist) < w.cfg.ProgressInterval {
			return
		}
		lastPersist = now
		if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, crawler.JobStatusRunning, "", countersFrom(report)); err != nil {
			logger.Warn("progress update failed", zap.Error(err))
		}
	}

	report, err := w.rebuilder.Rebuild(ctx, item.Params.BaseURL, item.Params.MaxPages, progress)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	counters := countersFrom(report)
	status, errText := w.deriveFinalStatus(ctx, counters, errText)

	logger.Info("rebuild job finished",
		zap.String("status", string(status)),
		zap.Int("pages", counters.Pages),
		zap.Int("chunks", counters.Chunks),
		zap.Int("pages_failed", counters.PagesFailed),
	)
	w.finish(ctx, item.JobID, status, errText, counters)
}

// finish persists the terminal state even when ctx is already canceled.
func (w *Worker) finish(ctx context.Context, jobID string, status crawler.JobStatus, errText string, counters crawler.JobCounters) {
	metrics.ObserveJob(string(status))
	if err := w.jobStore.UpdateJobStatus(context.WithoutCancel(ctx), jobID, status, errText, counters); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) deriveFinalStatus(
	ctx context.Context,
	counters crawler.JobCounters,
	errText string,
) (crawler.JobStatus, string) {
	if counters.Pages == 0 && errText == "" {
		errText = "no pages were ingested"
	}

	switch {
	case ctx.Err() != nil:
		return crawler.JobStatusCanceled, errText
	case counters.Pages == 0:
		return crawler.JobStatusFailed, errText
	default:
		return crawler.JobStatusSucceeded, errText
	}
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}

func countersFrom(report ingest.RebuildReport) crawler.JobCounters {
	return crawler.JobCounters{
		Pages:       report.Pages,
		Chunks:      report.Chunks,
		PagesFailed: report.Failed,
		Deleted:     report.Deleted,
	}
}
