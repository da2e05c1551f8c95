// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/sevigo/extpr/internal/core"
)

// ErrFileNotFound is returned by GetFileContent when the path does not name a
// file at the requested ref.
var ErrFileNotFound = errors.New("file not found")

// Client defines the operations the dispatcher and callback need from GitHub:
// reading a single file and writing commit statuses.
//
//go:generate mockgen -destination=../../mocks/mock_github_client.go -package=mocks . Client,ClientFactory
type Client interface {
	// GetFileContent returns the decoded content of path at ref, or
	// ErrFileNotFound if there is no such file. Any other error is a
	// transport or API failure.
	GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error)
	CreateStatus(ctx context.Context, update core.StatusUpdate) error
}

// ClientFactory returns clients authenticated as a specific app installation.
type ClientFactory interface {
	ForInstallation(ctx context.Context, installationID int64) (Client, error)
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client to provide a focused,
// testable interface for application-specific GitHub operations.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a new GitHub client authenticated with a Personal Access Token (PAT).
// This is useful for CLI tools or local development where an App installation is not available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newTransportClient())
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{client: github.NewClient(tc), logger: logger}
}

// NewClientWithBaseURL creates a Client against a custom API base URL.
// It is used for GitHub Enterprise and for tests backed by an httptest server.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string, logger *slog.Logger) (Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client := github.NewClient(httpClient)
	client.BaseURL = u
	return &gitHubClient{client: client, logger: logger}, nil
}

// GetFileContent retrieves a single file from the repository at the given ref.
func (g *gitHubClient) GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error) {
	file, _, _, err := g.client.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return "", ErrFileNotFound
		}
		g.logger.Error("failed to get file content", "owner", owner, "repo", repo, "ref", ref, "path", path, "error", err)
		return "", fmt.Errorf("failed to get %s from %s/%s@%s: %w", path, owner, repo, ref, err)
	}

	// A directory at the path comes back as a listing, not a file.
	if file == nil || file.GetType() != "file" {
		return "", ErrFileNotFound
	}

	// Files over 1 MB come back without inline content.
	if file.GetEncoding() == "none" {
		return g.getRawContent(ctx, owner, repo, ref, path)
	}

	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode %s from %s/%s@%s: %w", path, owner, repo, ref, err)
	}
	return content, nil
}

// getRawContent downloads a file through the raw media type, which the
// contents API serves for files up to 100 MB.
func (g *gitHubClient) getRawContent(ctx context.Context, owner, repo, ref, path string) (string, error) {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	u := fmt.Sprintf("repos/%s/%s/contents/%s?ref=%s", owner, repo, strings.Join(segments, "/"), url.QueryEscape(ref))

	req, err := g.client.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build raw request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github.raw+json")

	var buf bytes.Buffer
	if _, err := g.client.Do(ctx, req, &buf); err != nil {
		return "", fmt.Errorf("failed to download %s from %s/%s@%s: %w", path, owner, repo, ref, err)
	}
	return buf.String(), nil
}

// CreateStatus writes a commit status.
func (g *gitHubClient) CreateStatus(ctx context.Context, update core.StatusUpdate) error {
	status := &github.RepoStatus{
		State:       github.Ptr(string(update.State)),
		Description: github.Ptr(update.Description),
		Context:     github.Ptr(update.Context),
	}
	if update.TargetURL != "" {
		status.TargetURL = github.Ptr(update.TargetURL)
	}

	_, _, err := g.client.Repositories.CreateStatus(ctx, update.Owner, update.Repo, update.SHA, status)
	if err != nil {
		g.logger.Error("failed to create commit status",
			"repo", update.FullName(), "sha", update.SHA, "context", update.Context, "state", update.State, "error", err)
		return fmt.Errorf("failed to create %s status for %s@%s: %w", update.State, update.FullName(), update.SHA, err)
	}
	return nil
}
