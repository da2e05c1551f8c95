package jobs

import (
	"fmt"

	"github.com/sevigo/extpr/internal/core"
)

// ValidateEvent ensures the event carries every field a dispatch reads.
func ValidateEvent(event *core.PullRequestEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.EventID == "" {
		return fmt.Errorf("event ID cannot be empty")
	}
	if event.RepoOwner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if event.RepoName == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if event.GitURL == "" {
		return fmt.Errorf("repository git URL cannot be empty")
	}
	if event.HeadSHA == "" {
		return fmt.Errorf("head SHA cannot be empty")
	}
	if event.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	}
	if event.InstallationID <= 0 {
		return fmt.Errorf("installation ID must be positive, got: %d", event.InstallationID)
	}
	return nil
}
