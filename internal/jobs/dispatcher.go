package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sevigo/extpr/internal/core"
)

// dispatcher implements core.JobDispatcher and manages a pool of worker goroutines
// for processing pull request events.
type dispatcher struct {
	job        core.Job                    // Job implementation executed by each worker.
	jobQueue   chan *core.PullRequestEvent // Queue of accepted events.
	maxWorkers int                         // Number of concurrent workers.
	wg         sync.WaitGroup              // Tracks active workers for graceful shutdown.
	mu         sync.RWMutex                // Guards stopped against concurrent Dispatch.
	stopped    bool
	logger     *slog.Logger
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers or queueSize is 0 or negative, it defaults to 1 and 100.
func NewDispatcher(job core.Job, maxWorkers, queueSize int, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &dispatcher{
		job:        job,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.PullRequestEvent, queueSize),
		logger:     logger,
	}
	d.startWorkers()
	return d
}

// startWorkers launches maxWorkers goroutines to process jobs from the queue.
func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes events from the queue until it's closed.
func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting dispatch worker", "id", workerID)

	for event := range d.jobQueue {
		d.processEvent(workerID, event)
	}

	d.logger.Info("shutting down dispatch worker", "id", workerID)
}

// processEvent runs the job for an event. The job outlives the webhook
// request, so it gets its own context.
func (d *dispatcher) processEvent(workerID int, event *core.PullRequestEvent) {
	d.logger.Info("worker processing job",
		"worker_id", workerID,
		"event_id", event.EventID,
		"repo", event.RepoFullName,
	)

	report, err := d.job.Run(context.Background(), event)
	if err != nil {
		d.logger.Error("dispatch job failed",
			"repo", event.RepoFullName,
			"pr", event.PRNumber,
			"error", err,
		)
		return
	}
	if report.Skipped {
		d.logger.Info("dispatch skipped", "repo", event.RepoFullName, "pr", event.PRNumber, "reason", report.SkipReason)
	}
	if err := report.Err(); err != nil {
		d.logger.Warn("dispatch finished with errors",
			"repo", event.RepoFullName,
			"pr", event.PRNumber,
			"error", err,
		)
	}
}

// Dispatch queues an event for processing by a worker.
func (d *dispatcher) Dispatch(_ context.Context, event *core.PullRequestEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return core.ErrQueueFull
	}

	select {
	case d.jobQueue <- event:
		d.logger.Info("queued dispatch job", "event_id", event.EventID, "repo", event.RepoFullName, "pr", event.PRNumber)
		return nil
	default:
		return core.ErrQueueFull
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	d.wg.Wait()
	d.logger.Info("all dispatch jobs have finished")
}
