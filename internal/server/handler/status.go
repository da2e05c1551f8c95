package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sevigo/extpr/internal/callback"
	"github.com/sevigo/extpr/internal/storage"
)

const maxStatusBody = 64 << 10

// StatusApplier applies a status report carried by a build.
type StatusApplier interface {
	Apply(ctx context.Context, req callback.Request) (*callback.Result, error)
}

// StatusHandler receives commit status reports from builds.
type StatusHandler struct {
	applier StatusApplier
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(applier StatusApplier, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{applier: applier, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle decodes a report and applies it. The token may be sent in the body
// or as a bearer token.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req callback.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStatusBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	res, err := h.applier.Apply(r.Context(), req)
	if err != nil {
		status := statusCode(err)
		h.logger.Warn("status report rejected", "status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: publicMessage(status)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, callback.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, callback.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrTokenConsumed):
		return http.StatusConflict
	case errors.Is(err, callback.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps verification details out of responses.
func publicMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid or expired status token"
	case http.StatusBadRequest:
		return "state must be one of pending, success, failure, error"
	case http.StatusConflict:
		return "status token already used for a final state"
	case http.StatusBadGateway:
		return "failed to update commit status on GitHub"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
