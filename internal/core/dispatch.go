package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrQueueFull is returned by a JobDispatcher that cannot accept more work.
var ErrQueueFull = errors.New("job queue is full")

// Outcome summarises what happened to a single build target.
type Outcome string

const (
	// OutcomeTriggered means pending was written and the job runner accepted the build.
	OutcomeTriggered Outcome = "triggered"
	// OutcomePendingFailed means the pending status could not be written; nothing was triggered.
	OutcomePendingFailed Outcome = "pending_failed"
	// OutcomeTriggerFailed means the build could not be started; an error status was attempted.
	OutcomeTriggerFailed Outcome = "trigger_failed"
)

// TargetResult records the dispatch of one build target.
type TargetResult struct {
	Target  BuildTarget
	Outcome Outcome
	// TokenID is the id of the status token handed to the job runner, if one was minted.
	TokenID string

	PendingErr     error
	TriggerErr     error
	ErrorStatusErr error
}

// DispatchReport is the result of running the dispatcher for one event.
// Failures the dispatcher deliberately does not escalate are kept here so
// callers can observe them.
type DispatchReport struct {
	Event      *PullRequestEvent
	Skipped    bool
	SkipReason string
	// FetchErr is set when qualification could not read the manifest and the
	// configured policy chose to skip instead of failing.
	FetchErr error
	Targets  []TargetResult
}

// Err joins every non-escalated failure in the report, or returns nil.
func (r *DispatchReport) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.FetchErr != nil {
		errs = append(errs, fmt.Errorf("manifest fetch: %w", r.FetchErr))
	}
	for _, t := range r.Targets {
		if t.PendingErr != nil {
			errs = append(errs, fmt.Errorf("%s: pending status: %w", t.Target.Name, t.PendingErr))
		}
		if t.TriggerErr != nil {
			errs = append(errs, fmt.Errorf("%s: trigger: %w", t.Target.Name, t.TriggerErr))
		}
		if t.ErrorStatusErr != nil {
			errs = append(errs, fmt.Errorf("%s: error status: %w", t.Target.Name, t.ErrorStatusErr))
		}
	}
	return errors.Join(errs...)
}

// DispatchRecord is a persisted row describing one target dispatch.
type DispatchRecord struct {
	ID           int64     `db:"id" json:"id"`
	EventID      string    `db:"event_id" json:"event_id"`
	RepoFullName string    `db:"repo_full_name" json:"repo_full_name"`
	PRNumber     int       `db:"pr_number" json:"pr_number"`
	HeadSHA      string    `db:"head_sha" json:"head_sha"`
	Context      string    `db:"context" json:"context"`
	Job          string    `db:"job" json:"job"`
	Outcome      Outcome   `db:"outcome" json:"outcome"`
	TokenID      string    `db:"token_id" json:"token_id,omitempty"`
	Error        string    `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Records flattens the report into one DispatchRecord per target.
func (r *DispatchReport) Records(now time.Time) []*DispatchRecord {
	if r == nil || r.Event == nil {
		return nil
	}
	records := make([]*DispatchRecord, 0, len(r.Targets))
	for _, t := range r.Targets {
		rec := &DispatchRecord{
			EventID:      r.Event.EventID,
			RepoFullName: r.Event.RepoFullName,
			PRNumber:     r.Event.PRNumber,
			HeadSHA:      r.Event.HeadSHA,
			Context:      t.Target.Name,
			Job:          t.Target.Job,
			Outcome:      t.Outcome,
			TokenID:      t.TokenID,
			CreatedAt:    now,
		}
		if err := errors.Join(t.PendingErr, t.TriggerErr, t.ErrorStatusErr); err != nil {
			rec.Error = err.Error()
		}
		records = append(records, rec)
	}
	return records
}
