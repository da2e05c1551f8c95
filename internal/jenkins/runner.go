// Package jenkins triggers parameterised builds on a Jenkins server.
package jenkins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/bndr/gojenkins"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
)

// ErrEmptyJob is returned without contacting Jenkins when no job is named.
var ErrEmptyJob = errors.New("job name is empty")

// builder is the part of gojenkins the runner uses.
type builder interface {
	BuildJob(ctx context.Context, name string, params map[string]string) (int64, error)
}

// Runner implements core.JobRunner on top of gojenkins.
type Runner struct {
	jenkins builder
	logger  *slog.Logger
}

// NewRunner creates a Runner for the configured Jenkins server. No request is
// made until the first build so an unreachable Jenkins does not block startup.
func NewRunner(cfg *config.Config, logger *slog.Logger) core.JobRunner {
	client := &http.Client{Timeout: 60 * time.Second}

	var j *gojenkins.Jenkins
	if cfg.Jenkins.User != "" {
		j = gojenkins.CreateJenkins(client, cfg.Jenkins.URL, cfg.Jenkins.User, cfg.Jenkins.Token)
	} else {
		j = gojenkins.CreateJenkins(client, cfg.Jenkins.URL)
	}
	return &Runner{jenkins: j, logger: logger}
}

// BuildWithParams queues a build of job with the given parameters.
func (r *Runner) BuildWithParams(ctx context.Context, job string, params map[string]string) error {
	if strings.Trim(job, "/") == "" {
		return ErrEmptyJob
	}

	queueID, err := r.jenkins.BuildJob(ctx, jobPath(job), params)
	if err != nil {
		r.logger.Error("failed to trigger jenkins build", "job", job, "params", redact(params), "error", err)
		return fmt.Errorf("failed to trigger jenkins job %s: %w", job, err)
	}

	r.logger.Info("jenkins build queued", "job", job, "queue_id", queueID, "params", redact(params))
	return nil
}

// jobPath turns "folder/job" into the "folder/job/job" form gojenkins
// prefixes with "/job/".
func jobPath(name string) string {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	return strings.Join(parts, "/job/")
}

// redact hides the status token from logs.
func redact(params map[string]string) map[string]string {
	out := maps.Clone(params)
	if _, ok := out[core.ParamStatusToken]; ok {
		out[core.ParamStatusToken] = "[redacted]"
	}
	return out
}
