package wire

import (
	"log/slog"

	"github.com/google/wire"

	"github.com/sevigo/extpr/internal/app"
	"github.com/sevigo/extpr/internal/callback"
	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/db"
	"github.com/sevigo/extpr/internal/github"
	"github.com/sevigo/extpr/internal/jenkins"
	"github.com/sevigo/extpr/internal/jobs"
	"github.com/sevigo/extpr/internal/logger"
	"github.com/sevigo/extpr/internal/server"
	"github.com/sevigo/extpr/internal/server/handler"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
)

var AppSet = wire.NewSet(
	app.NewApp,
	server.NewServer,
	config.LoadConfig,
	provideSlogLogger,
	provideStore,
	provideTokenCodec,
	provideClientFactory,
	provideJobRunner,
	provideExtensionCIJob,
	provideDispatcher,
	provideCallbackService,
	wire.Bind(new(jobs.TokenIssuer), new(*statustoken.Codec)),
	wire.Bind(new(callback.TokenVerifier), new(*statustoken.Codec)),
	wire.Bind(new(handler.StatusApplier), new(*callback.Service)),
)

func provideSlogLogger(cfg *config.Config) *slog.Logger {
	l := logger.NewLogger(cfg.Logging, logger.OutputWriter(cfg.Logging))
	slog.SetDefault(l)
	return l
}

// provideStore opens the dispatch store for the configured driver.
func provideStore(cfg *config.Config, l *slog.Logger) (storage.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		l.Warn("using in-memory dispatch store; consumed tokens are forgotten on restart")
		return storage.NewMemoryStore(), func() {}, nil
	}
	conn, cleanup, err := db.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewStore(conn.DB), cleanup, nil
}

func provideTokenCodec(cfg *config.Config) (*statustoken.Codec, error) {
	return statustoken.NewCodec(cfg.StatusToken.Secret, statustoken.WithTTL(cfg.StatusToken.TTL))
}

func provideClientFactory(cfg *config.Config, l *slog.Logger) (github.ClientFactory, error) {
	return github.NewClientFactory(cfg, logger.WithComponent(l, "github"))
}

func provideJobRunner(cfg *config.Config, l *slog.Logger) core.JobRunner {
	return jenkins.NewRunner(cfg, logger.WithComponent(l, "jenkins"))
}

func provideExtensionCIJob(
	cfg *config.Config,
	clients github.ClientFactory,
	runner core.JobRunner,
	tokens jobs.TokenIssuer,
	store storage.Store,
	l *slog.Logger,
) core.Job {
	return jobs.NewExtensionCIJob(cfg, clients, runner, tokens, store, logger.WithComponent(l, "dispatch"))
}

func provideDispatcher(cfg *config.Config, job core.Job, l *slog.Logger) core.JobDispatcher {
	return jobs.NewDispatcher(job, cfg.Dispatch.MaxWorkers, cfg.Dispatch.QueueSize, logger.WithComponent(l, "dispatcher"))
}

func provideCallbackService(
	cfg *config.Config,
	verifier callback.TokenVerifier,
	clients github.ClientFactory,
	store storage.Store,
	l *slog.Logger,
) *callback.Service {
	return callback.NewService(verifier, clients, store, cfg.Dispatch.CallTimeout, logger.WithComponent(l, "callback"))
}
