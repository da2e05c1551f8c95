// Package app initializes and orchestrates the main components of the
// extension CI service. It wires together the configuration, server, and
// other services.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/server"
	"github.com/sevigo/extpr/internal/storage"
)

// TokenPurgeInterval is how often consumed tokens past their expiry are forgotten.
const TokenPurgeInterval = time.Hour

// App holds the main application components.
type App struct {
	cfg        *config.Config
	server     *server.Server
	dispatcher core.JobDispatcher
	store      storage.Store
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp sets up the application with all its dependencies.
func NewApp(cfg *config.Config, srv *server.Server, dispatcher core.JobDispatcher, store storage.Store, logger *slog.Logger) *App {
	return &App{
		cfg:        cfg,
		server:     srv,
		dispatcher: dispatcher,
		store:      store,
		logger:     logger,
	}
}

// Start runs the token purge loop and the HTTP server. It blocks until the
// server stops.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("starting extension CI service",
		"server_port", a.cfg.Server.Port,
		"max_workers", a.cfg.Dispatch.MaxWorkers,
		"targets", len(a.cfg.BuildPlan.Enabled()),
		"db_driver", a.cfg.Database.Driver)

	purgeCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.wg.Done()
		a.purgeTokens(purgeCtx, TokenPurgeInterval)
	}()

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down extension CI services")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	// Stop the job dispatcher, allowing in-flight jobs to finish.
	a.dispatcher.Stop()

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()

	if serverErr != nil {
		a.logger.Error("extension CI service stopped with errors", "error", serverErr)
		return serverErr
	}

	a.logger.Info("extension CI service stopped successfully")
	return nil
}

// purgeTokens periodically deletes consumed tokens that can no longer verify.
func (a *App) purgeTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.store.PurgeExpiredTokens(ctx, time.Now())
			if err != nil {
				a.logger.Warn("failed to purge expired status tokens", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("purged expired status tokens", "count", n)
			}
		}
	}
}
