// Package handler provides HTTP handlers for the extension CI service.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
)

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	cfg        *config.Config
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration and dispatcher.
func NewWebhookHandler(cfg *config.Config, dispatcher core.JobDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.GitHub.WebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PullRequestEvent:
		h.handlePullRequest(r.Context(), w, github.DeliveryID(r), e)
	case *github.PingEvent:
		_, _ = fmt.Fprint(w, "pong")
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// handlePullRequest queues qualifying pull request events for dispatch.
func (h *WebhookHandler) handlePullRequest(ctx context.Context, w http.ResponseWriter, deliveryID string, event *github.PullRequestEvent) {
	prEvent, err := core.EventFromPullRequest(deliveryID, event, h.cfg.GitHub.TriggerActions)
	if err != nil {
		h.logger.Debug("ignoring pull request event", "reason", err.Error(), "repo", event.GetRepo().GetFullName())
		_, _ = fmt.Fprint(w, "Event ignored")
		return
	}

	if err := h.dispatcher.Dispatch(ctx, prEvent); err != nil {
		h.logger.Error("failed to dispatch job", "error", err, "repo", prEvent.RepoFullName)
		if errors.Is(err, core.ErrQueueFull) {
			http.Error(w, "Dispatch queue is full", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to queue dispatch job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("dispatch job queued", "repo", prEvent.RepoFullName, "pr", prEvent.PRNumber, "sha", prEvent.HeadSHA)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Dispatch job accepted")
}
