// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"context"
)

//go:generate mockgen -destination=../../mocks/mock_job_runner.go -package=mocks . JobRunner,JobDispatcher,Job

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. This interface decouples the
// webhook handler from the job execution mechanism.
type JobDispatcher interface {
	// Dispatch accepts a PullRequestEvent and queues it for processing.
	// It returns ErrQueueFull if the job cannot be queued, providing a
	// mechanism for backpressure.
	Dispatch(ctx context.Context, event *PullRequestEvent) error

	// Stop drains the queue and waits for in-flight jobs.
	Stop()
}

// Job represents a single, executable unit of work that can be processed by the
// application's job dispatcher. Each job is triggered by a PullRequestEvent.
type Job interface {
	// Run executes the job's logic. The returned report describes what was
	// written and triggered, including failures that were not escalated.
	Run(ctx context.Context, event *PullRequestEvent) (*DispatchReport, error)
}

// JobRunner triggers a named build job on the external job execution system.
// It only requests the build; the outcome is reported later through the
// status callback.
type JobRunner interface {
	BuildWithParams(ctx context.Context, job string, params map[string]string) error
}
