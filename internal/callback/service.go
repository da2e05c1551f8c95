// Package callback applies commit status updates reported by builds that
// hold a status token.
package callback

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/github"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
)

var (
	ErrInvalidToken = errors.New("invalid status token")
	ErrInvalidState = errors.New("invalid status state")
	// ErrUpstream means GitHub rejected or never received the update. The
	// token stays usable so the build can retry.
	ErrUpstream = errors.New("failed to update commit status")
)

// TokenVerifier checks a status token and returns what it binds.
type TokenVerifier interface {
	Verify(token string) (*statustoken.Claims, error)
}

// Request is a status report from a build.
type Request struct {
	Token       string `json:"token"`
	State       string `json:"state"`
	TargetURL   string `json:"target_url"`
	Description string `json:"description"`
}

// Result describes the applied update.
type Result struct {
	Template core.StatusTemplate `json:"template"`
	State    core.StatusState    `json:"state"`
}

// tokenLockStripes is the number of locks reports for the same token id
// are serialised on.
const tokenLockStripes = 64

// Service applies status reports.
type Service struct {
	verifier TokenVerifier
	clients  github.ClientFactory
	store    storage.Store
	timeout  time.Duration
	logger   *slog.Logger

	locks [tokenLockStripes]sync.Mutex
}

// NewService creates a callback Service. timeout bounds each GitHub call.
func NewService(verifier TokenVerifier, clients github.ClientFactory, store storage.Store, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		verifier: verifier,
		clients:  clients,
		store:    store,
		timeout:  timeout,
		logger:   logger,
	}
}

// Apply verifies the token and writes the reported state to the commit and
// check the token names. Terminal states consume the token so it can only
// finish a check once. Pending updates leave it usable until then, and are
// rejected with storage.ErrTokenConsumed afterwards.
func (s *Service) Apply(ctx context.Context, req Request) (*Result, error) {
	claims, err := s.verifier.Verify(req.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	state, err := core.ParseStatusState(req.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: token has no id or expiry", ErrInvalidToken)
	}

	tpl := claims.Template
	logger := s.logger.With("event_id", claims.EventID, "repo", tpl.FullName(), "sha", tpl.SHA, "context", tpl.Context, "state", state)

	// A pending report must not interleave with the terminal report of the
	// same token, or it could land after it.
	lock := s.lockFor(claims.ID)
	lock.Lock()
	defer lock.Unlock()

	consumed := false
	if state.IsTerminal() {
		if err := s.store.ConsumeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			if errors.Is(err, storage.ErrTokenConsumed) {
				logger.Warn("status token replayed", "token_id", claims.ID)
			}
			return nil, err
		}
		consumed = true
	} else {
		used, err := s.store.TokenConsumed(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if used {
			logger.Warn("status update after the check finished", "token_id", claims.ID)
			return nil, storage.ErrTokenConsumed
		}
	}

	if err := s.report(ctx, claims, state, req); err != nil {
		logger.Error("failed to apply status update", "error", err)
		if consumed {
			if relErr := s.store.ReleaseToken(context.WithoutCancel(ctx), claims.ID); relErr != nil {
				logger.Error("failed to release status token", "token_id", claims.ID, "error", relErr)
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	logger.Info("status update applied")
	return &Result{Template: tpl, State: state}, nil
}

func (s *Service) lockFor(tokenID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tokenID))
	return &s.locks[h.Sum32()%tokenLockStripes]
}

func (s *Service) report(ctx context.Context, claims *statustoken.Claims, state core.StatusState, req Request) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	client, err := s.clients.ForInstallation(ctx, claims.InstallationID)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return github.NewStatusUpdater(client).Report(ctx, claims.Template, state, req.TargetURL, req.Description)
}
