// Package jobs defines the background work started by pull request events.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/github"
	"github.com/sevigo/extpr/internal/qualify"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
)

// SkipReasonFetchFailed is reported when the manifest could not be read and
// the fetch error policy chose to skip the event.
const SkipReasonFetchFailed = "manifest could not be fetched"

// TokenIssuer mints the status token handed to a build.
type TokenIssuer interface {
	Issue(p statustoken.Payload) (*statustoken.Issued, error)
}

// ExtensionCIJob qualifies a pull request as an extension and starts one
// build per enabled target, writing a pending status before each trigger.
type ExtensionCIJob struct {
	clients  github.ClientFactory
	runner   core.JobRunner
	tokens   TokenIssuer
	store    storage.Store
	checker  *qualify.Checker
	plan     core.BuildPlan
	policy   config.FetchErrorPolicy
	timeout  time.Duration
	parallel int
	logger   *slog.Logger
}

// NewExtensionCIJob creates the dispatch job. A nil store disables persistence.
func NewExtensionCIJob(
	cfg *config.Config,
	clients github.ClientFactory,
	runner core.JobRunner,
	tokens TokenIssuer,
	store storage.Store,
	logger *slog.Logger,
) core.Job {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if clients == nil {
		panic("GitHub client factory cannot be nil")
	}
	if runner == nil {
		panic("job runner cannot be nil")
	}
	if tokens == nil {
		panic("token issuer cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	parallel := cfg.Dispatch.Concurrency
	if parallel <= 0 {
		parallel = 1
	}
	return &ExtensionCIJob{
		clients:  clients,
		runner:   runner,
		tokens:   tokens,
		store:    store,
		checker:  qualify.NewChecker(cfg.Qualification.ManifestPath),
		plan:     cfg.BuildPlan,
		policy:   cfg.Qualification.FetchErrorPolicy,
		timeout:  cfg.Dispatch.CallTimeout,
		parallel: parallel,
		logger:   logger,
	}
}

// Run dispatches every enabled build target for the event. Per-target
// failures are recorded in the report and never stop the remaining targets.
func (j *ExtensionCIJob) Run(ctx context.Context, event *core.PullRequestEvent) (*core.DispatchReport, error) {
	if err := ValidateEvent(event); err != nil {
		j.logger.Error("Input validation failed", "error", err)
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	logger := j.logger.With("event_id", event.EventID, "repo", event.RepoFullName, "pr", event.PRNumber, "sha", event.HeadSHA)
	report := &core.DispatchReport{Event: event}

	clientCtx, cancel := j.callContext(ctx)
	ghClient, err := j.clients.ForInstallation(clientCtx, event.InstallationID)
	cancel()
	if err != nil {
		logger.Error("Failed to create GitHub client", "error", err)
		return report, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	checkCtx, cancel := j.callContext(ctx)
	result, err := j.checker.Check(checkCtx, ghClient, qualify.RepoRef{
		Owner: event.RepoOwner,
		Repo:  event.RepoName,
		Ref:   event.HeadSHA,
	})
	cancel()
	if err != nil {
		var fetchErr *qualify.FetchError
		if errors.As(err, &fetchErr) && j.policy != config.FetchErrorFail {
			logger.Warn("Manifest could not be fetched, skipping event", "path", fetchErr.Path, "error", err)
			report.Skipped = true
			report.SkipReason = SkipReasonFetchFailed
			report.FetchErr = err
			return report, nil
		}
		logger.Error("Qualification failed", "error", err)
		return report, fmt.Errorf("failed to qualify pull request: %w", err)
	}
	if !result.Qualified {
		logger.Info("Pull request does not qualify, skipping", "reason", result.Reason)
		report.Skipped = true
		report.SkipReason = result.Reason
		return report, nil
	}

	targets := j.plan.Enabled()
	report.Targets = make([]core.TargetResult, len(targets))
	updater := github.NewStatusUpdater(ghClient)

	// With a limit of one, Go blocks until the previous target finishes, so
	// targets run in plan order.
	var g errgroup.Group
	g.SetLimit(j.parallel)
	for i, target := range targets {
		g.Go(func() error {
			report.Targets[i] = j.dispatchTarget(ctx, logger, updater, event, target)
			return nil
		})
	}
	// Target failures live in the report; an error here is a bug in the fan-out.
	if err := g.Wait(); err != nil {
		logger.Error("Dispatch fan-out failed", "error", err)
		return report, fmt.Errorf("failed to dispatch targets: %w", err)
	}

	j.persist(ctx, logger, report)
	logger.Info("Dispatch finished", "targets", len(targets))
	return report, nil
}

// dispatchTarget writes pending, then triggers the build. If the trigger
// fails, it attempts an error status on the same context.
func (j *ExtensionCIJob) dispatchTarget(
	ctx context.Context,
	logger *slog.Logger,
	updater github.StatusUpdater,
	event *core.PullRequestEvent,
	target core.BuildTarget,
) core.TargetResult {
	res := core.TargetResult{Target: target}
	tpl := core.TemplateFor(event, target)
	logger = logger.With("context", target.Name, "job", target.Job)

	if err := j.withTimeout(ctx, func(ctx context.Context) error { return updater.Pending(ctx, tpl) }); err != nil {
		logger.Error("Failed to write pending status, build not triggered", "error", err)
		res.Outcome = core.OutcomePendingFailed
		res.PendingErr = err
		return res
	}

	tokenID, err := j.trigger(ctx, event, target, tpl)
	res.TokenID = tokenID
	if err == nil {
		logger.Info("Build triggered")
		res.Outcome = core.OutcomeTriggered
		return res
	}

	logger.Error("Failed to trigger build", "error", err)
	res.Outcome = core.OutcomeTriggerFailed
	res.TriggerErr = err
	if err := j.withTimeout(ctx, func(ctx context.Context) error { return updater.TriggerFailed(ctx, tpl) }); err != nil {
		logger.Error("Failed to write error status", "error", err)
		res.ErrorStatusErr = err
	}
	return res
}

func (j *ExtensionCIJob) trigger(ctx context.Context, event *core.PullRequestEvent, target core.BuildTarget, tpl core.StatusTemplate) (string, error) {
	issued, err := j.tokens.Issue(statustoken.Payload{
		EventID:        event.EventID,
		InstallationID: event.InstallationID,
		Template:       tpl,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign status token: %w", err)
	}

	params := target.JobParams(event.GitURL, event.HeadSHA, issued.Token)
	err = j.withTimeout(ctx, func(ctx context.Context) error {
		return j.runner.BuildWithParams(ctx, target.Job, params)
	})
	return issued.ID, err
}

// persist stores one record per target. Failures are logged only.
func (j *ExtensionCIJob) persist(ctx context.Context, logger *slog.Logger, report *core.DispatchReport) {
	if j.store == nil || len(report.Targets) == 0 {
		return
	}
	storeCtx, cancel := j.callContext(ctx)
	defer cancel()
	if err := j.store.SaveDispatches(storeCtx, report.Records(time.Now().UTC())); err != nil {
		logger.Warn("Failed to save dispatch records", "error", err)
	}
}

func (j *ExtensionCIJob) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, j.timeout)
}

func (j *ExtensionCIJob) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := j.callContext(ctx)
	defer cancel()
	return fn(callCtx)
}
