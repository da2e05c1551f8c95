// Package github provides functionality for interacting with the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v73/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/sevigo/extpr/internal/config"
)

// newTransportClient builds the shared HTTP stack for REST calls:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
func newTransportClient() *http.Client {
	return github_ratelimit.NewClient(httpcache.NewMemoryCacheTransport())
}

type installationFactory struct {
	appClient *github.Client
	base      *http.Client
	logger    *slog.Logger
}

// NewClientFactory creates a ClientFactory for the configured GitHub App.
// The private key is read once here so a bad key path fails at startup.
func NewClientFactory(cfg *config.Config, logger *slog.Logger) (ClientFactory, error) {
	privateKey, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.GitHub.PrivateKeyPath, err)
	}

	// We use the apps transport to interact with the GitHub App API (e.g. to get installation tokens)
	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.GitHub.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}

	return &installationFactory{
		appClient: github.NewClient(&http.Client{Transport: appTransport}),
		base:      newTransportClient(),
		logger:    logger,
	}, nil
}

// ForInstallation creates a GitHub client that is authenticated as a specific application installation.
func (f *installationFactory) ForInstallation(ctx context.Context, installationID int64) (Client, error) {
	token, _, err := f.appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token for installation ID %d: %w", installationID, err)
	}
	if token.GetToken() == "" {
		return nil, fmt.Errorf("received an empty installation token")
	}
	f.logger.Debug("created installation token", "installation_id", installationID, "expires_at", token.GetExpiresAt())

	// The token source must outlive the request context that created it.
	clientCtx := context.WithValue(context.Background(), oauth2.HTTPClient, f.base)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	tc := oauth2.NewClient(clientCtx, ts)

	return NewGitHubClient(github.NewClient(tc), f.logger), nil
}
