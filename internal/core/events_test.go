package core

import (
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultActions = []string{"opened", "synchronize", "reopened"}

func newPREvent(action string) *github.PullRequestEvent {
	return &github.PullRequestEvent{
		Action: github.Ptr(action),
		Number: github.Ptr(42),
		Repo: &github.Repository{
			Name:     github.Ptr("org.example.myext"),
			FullName: github.Ptr("civicrm/org.example.myext"),
			Owner:    &github.User{Login: github.Ptr("civicrm")},
			GitURL:   github.Ptr("git://github.com/civicrm/org.example.myext.git"),
			CloneURL: github.Ptr("https://github.com/civicrm/org.example.myext.git"),
		},
		PullRequest: &github.PullRequest{
			Number: github.Ptr(42),
			Head:   &github.PullRequestBranch{SHA: github.Ptr("abc123")},
		},
		Installation: &github.Installation{ID: github.Ptr(int64(99))},
	}
}

func TestEventFromPullRequest(t *testing.T) {
	ev, err := EventFromPullRequest("delivery-1", newPREvent("opened"), defaultActions)
	require.NoError(t, err)

	assert.Equal(t, "delivery-1", ev.EventID)
	assert.Equal(t, int64(99), ev.InstallationID)
	assert.Equal(t, "civicrm", ev.RepoOwner)
	assert.Equal(t, "org.example.myext", ev.RepoName)
	assert.Equal(t, "civicrm/org.example.myext", ev.RepoFullName)
	assert.Equal(t, "git://github.com/civicrm/org.example.myext.git", ev.GitURL)
	assert.Equal(t, 42, ev.PRNumber)
	assert.Equal(t, "abc123", ev.HeadSHA)
}

func TestEventFromPullRequest_CloneURLFallback(t *testing.T) {
	raw := newPREvent("synchronize")
	raw.Repo.GitURL = nil

	ev, err := EventFromPullRequest("delivery-2", raw, defaultActions)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/civicrm/org.example.myext.git", ev.GitURL)
}

func TestEventFromPullRequest_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		delivery string
		mutate   func(e *github.PullRequestEvent)
	}{
		{name: "closed action", delivery: "d", mutate: func(e *github.PullRequestEvent) { e.Action = github.Ptr("closed") }},
		{name: "missing delivery", delivery: "", mutate: func(*github.PullRequestEvent) {}},
		{name: "missing owner", delivery: "d", mutate: func(e *github.PullRequestEvent) { e.Repo.Owner = nil }},
		{name: "missing head", delivery: "d", mutate: func(e *github.PullRequestEvent) { e.PullRequest.Head = nil }},
		{name: "missing installation", delivery: "d", mutate: func(e *github.PullRequestEvent) { e.Installation = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := newPREvent("opened")
			tt.mutate(raw)
			_, err := EventFromPullRequest(tt.delivery, raw, defaultActions)
			assert.Error(t, err)
		})
	}
}
