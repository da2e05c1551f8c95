// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"

	"github.com/sevigo/extpr/internal/core"
)

// StatusUpdater writes the commit statuses of the extension CI protocol.
type StatusUpdater interface {
	Pending(ctx context.Context, tpl core.StatusTemplate) error
	TriggerFailed(ctx context.Context, tpl core.StatusTemplate) error
	Report(ctx context.Context, tpl core.StatusTemplate, state core.StatusState, targetURL, description string) error
}

type statusUpdater struct {
	client Client
}

// NewStatusUpdater creates and returns a new instance of a statusUpdater.
func NewStatusUpdater(client Client) StatusUpdater {
	return &statusUpdater{client: client}
}

// Pending marks the check as waiting for its build to start.
func (s *statusUpdater) Pending(ctx context.Context, tpl core.StatusTemplate) error {
	return s.client.CreateStatus(ctx, core.StatusUpdate{
		StatusTemplate: tpl,
		State:          core.StatePending,
		Description:    core.DescriptionPending,
	})
}

// TriggerFailed marks the check as errored because its build could not be started.
func (s *statusUpdater) TriggerFailed(ctx context.Context, tpl core.StatusTemplate) error {
	return s.client.CreateStatus(ctx, core.StatusUpdate{
		StatusTemplate: tpl,
		State:          core.StateError,
		Description:    core.DescriptionTriggerError,
	})
}

// Report applies a state reported by a build through its status token.
func (s *statusUpdater) Report(ctx context.Context, tpl core.StatusTemplate, state core.StatusState, targetURL, description string) error {
	return s.client.CreateStatus(ctx, core.StatusUpdate{
		StatusTemplate: tpl,
		State:          state,
		TargetURL:      targetURL,
		Description:    truncateDescription(description),
	})
}

// truncateDescription cuts a description to GitHub's limit on a rune boundary.
func truncateDescription(s string) string {
	runes := []rune(s)
	if len(runes) <= core.MaxDescriptionLength {
		return s
	}
	return string(runes[:core.MaxDescriptionLength-1]) + "…"
}
