package core

import "fmt"

// StatusState is the state of a commit status on GitHub.
type StatusState string

const (
	StatePending StatusState = "pending"
	StateSuccess StatusState = "success"
	StateFailure StatusState = "failure"
	StateError   StatusState = "error"
)

// Fixed descriptions written by the dispatcher.
const (
	DescriptionPending      = "Waiting for tests to start"
	DescriptionTriggerError = "Failed to initiate test job. Please consult infrastructure support channel."
)

// MaxDescriptionLength is the longest description GitHub accepts on a status.
const MaxDescriptionLength = 140

// ParseStatusState validates a state string received from outside.
func ParseStatusState(s string) (StatusState, error) {
	switch st := StatusState(s); st {
	case StatePending, StateSuccess, StateFailure, StateError:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status state %q", s)
	}
}

// IsTerminal reports whether no further update is expected after this state.
func (s StatusState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateError
}

// StatusTemplate identifies one logical CI check: a named status context on a
// specific commit of a repository.
type StatusTemplate struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	SHA     string `json:"sha"`
	Context string `json:"context"`
}

// Validate checks that every part of the key is present.
func (t StatusTemplate) Validate() error {
	if t.Owner == "" || t.Repo == "" {
		return fmt.Errorf("status template is missing the repository")
	}
	if t.SHA == "" {
		return fmt.Errorf("status template is missing the commit SHA")
	}
	if t.Context == "" {
		return fmt.Errorf("status template is missing the check name")
	}
	return nil
}

// FullName returns "owner/repo".
func (t StatusTemplate) FullName() string {
	return t.Owner + "/" + t.Repo
}

// StatusUpdate is a single write to the commit status API.
type StatusUpdate struct {
	StatusTemplate
	State       StatusState
	TargetURL   string
	Description string
}

// TemplateFor builds the status key for a build target of the given event.
func TemplateFor(event *PullRequestEvent, target BuildTarget) StatusTemplate {
	return StatusTemplate{
		Owner:   event.RepoOwner,
		Repo:    event.RepoName,
		SHA:     event.HeadSHA,
		Context: target.Name,
	}
}
