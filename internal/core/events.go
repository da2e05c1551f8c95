package core

import (
	"fmt"
	"slices"

	"github.com/google/go-github/v73/github"
)

// PullRequestEvent represents a simplified, internal view of a GitHub
// pull_request webhook delivery. It is read-only once constructed.
type PullRequestEvent struct {
	// EventID is the webhook delivery GUID (X-GitHub-Delivery).
	EventID        string
	InstallationID int64
	Action         string

	// Repository details
	RepoOwner    string
	RepoName     string
	RepoFullName string
	GitURL       string

	PRNumber int
	HeadSHA  string
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the application's
// internal PullRequestEvent representation. It acts as an anti-corruption layer: the
// delivery is rejected unless its action is one of triggerActions and it carries
// everything a dispatch needs.
func EventFromPullRequest(deliveryID string, event *github.PullRequestEvent, triggerActions []string) (*PullRequestEvent, error) {
	action := event.GetAction()
	if !slices.Contains(triggerActions, action) {
		return nil, fmt.Errorf("pull request action %q does not trigger builds", action)
	}

	if deliveryID == "" {
		return nil, fmt.Errorf("delivery ID is missing from the request")
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}

	pr := event.GetPullRequest()
	if pr == nil || pr.GetHead() == nil || pr.GetHead().GetSHA() == "" {
		return nil, fmt.Errorf("pull request head SHA is missing from the event")
	}

	if event.GetInstallation() == nil || event.GetInstallation().GetID() == 0 {
		return nil, fmt.Errorf("installation ID is missing from the event")
	}

	// git_url is what the build jobs clone from; clone_url covers
	// repositories where the git protocol URL is not published.
	gitURL := repo.GetGitURL()
	if gitURL == "" {
		gitURL = repo.GetCloneURL()
	}

	number := event.GetNumber()
	if number == 0 {
		number = pr.GetNumber()
	}

	return &PullRequestEvent{
		EventID:        deliveryID,
		InstallationID: event.GetInstallation().GetID(),
		Action:         action,
		RepoOwner:      repo.GetOwner().GetLogin(),
		RepoName:       repo.GetName(),
		RepoFullName:   repo.GetFullName(),
		GitURL:         gitURL,
		PRNumber:       number,
		HeadSHA:        pr.GetHead().GetSHA(),
	}, nil
}
