package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/logger"
)

// FetchErrorPolicy decides what happens when the manifest cannot be read for
// a reason other than it not existing.
type FetchErrorPolicy string

const (
	// FetchErrorSkip treats the pull request as not qualifying.
	FetchErrorSkip FetchErrorPolicy = "skip"
	// FetchErrorFail fails the job without writing any status.
	FetchErrorFail FetchErrorPolicy = "fail"
)

// Config holds the application's configuration values.
type Config struct {
	Server        ServerConfig
	GitHub        GitHubConfig
	Jenkins       JenkinsConfig
	StatusToken   StatusTokenConfig
	Dispatch      DispatchConfig
	Qualification QualificationConfig
	BuildPlan     core.BuildPlan
	Database      DBConfig
	Logging       logger.Config
}

type ServerConfig struct {
	Port string
}

type GitHubConfig struct {
	AppID          int64
	WebhookSecret  string
	PrivateKeyPath string
	// TriggerActions are the pull_request actions that start a dispatch.
	TriggerActions []string
}

type JenkinsConfig struct {
	URL   string
	User  string
	Token string
}

type StatusTokenConfig struct {
	Secret string
	TTL    time.Duration
}

type DispatchConfig struct {
	// CallTimeout bounds every external call made while dispatching.
	CallTimeout time.Duration
	// Concurrency is how many build targets of one event are dispatched at once.
	Concurrency int
	MaxWorkers  int
	QueueSize   int
}

type QualificationConfig struct {
	ManifestPath     string
	FetchErrorPolicy FetchErrorPolicy
}

// DBConfig describes the dispatch store.
type DBConfig struct {
	// Driver is one of "postgres", "sqlite" or "memory".
	Driver          string
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	Path            string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults, and validates required fields. It uses the Viper
// library to handle configuration loading and precedence.
func LoadConfig() (*Config, error) {
	v := newViper()

	if v.GetInt64("GITHUB_APP_ID") == 0 {
		return nil, fmt.Errorf("GITHUB_APP_ID must be set")
	}
	if v.GetString("GITHUB_WEBHOOK_SECRET") == "" {
		return nil, fmt.Errorf("GITHUB_WEBHOOK_SECRET must be set")
	}
	if strings.TrimSpace(v.GetString("STATUS_SECRET")) == "" {
		return nil, fmt.Errorf("STATUS_SECRET must be set")
	}

	plan := core.DefaultBuildPlan()
	if path := v.GetString("BUILD_PLAN_PATH"); path != "" {
		loaded, err := LoadBuildPlan(path)
		if err != nil {
			return nil, err
		}
		plan = *loaded
	}

	cfg := &Config{
		Server: ServerConfig{Port: v.GetString("SERVER_PORT")},
		GitHub: GitHubConfig{
			AppID:          v.GetInt64("GITHUB_APP_ID"),
			WebhookSecret:  v.GetString("GITHUB_WEBHOOK_SECRET"),
			PrivateKeyPath: v.GetString("GITHUB_PRIVATE_KEY_PATH"),
			TriggerActions: splitList(v.GetString("GITHUB_TRIGGER_ACTIONS")),
		},
		Jenkins: JenkinsConfig{
			URL:   v.GetString("JENKINS_URL"),
			User:  v.GetString("JENKINS_USER"),
			Token: v.GetString("JENKINS_TOKEN"),
		},
		StatusToken: StatusTokenConfig{
			Secret: v.GetString("STATUS_SECRET"),
			TTL:    v.GetDuration("STATUS_TOKEN_TTL"),
		},
		Dispatch: DispatchConfig{
			CallTimeout: v.GetDuration("DISPATCH_CALL_TIMEOUT"),
			Concurrency: v.GetInt("DISPATCH_CONCURRENCY"),
			MaxWorkers:  v.GetInt("MAX_WORKERS"),
			QueueSize:   v.GetInt("QUEUE_SIZE"),
		},
		Qualification: QualificationConfig{
			ManifestPath:     v.GetString("MANIFEST_PATH"),
			FetchErrorPolicy: FetchErrorPolicy(strings.ToLower(v.GetString("FETCH_ERROR_POLICY"))),
		},
		BuildPlan: plan,
		Database:  databaseConfig(v),
		Logging: logger.Config{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
			File:   v.GetString("LOG_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance with the defaults applied and the .env
// file, if any, read in.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/extpr-app.private-key.pem")
	v.SetDefault("GITHUB_TRIGGER_ACTIONS", "opened,synchronize,reopened")
	v.SetDefault("JENKINS_URL", "http://localhost:8081")
	v.SetDefault("STATUS_TOKEN_TTL", "24h")
	v.SetDefault("DISPATCH_CALL_TIMEOUT", "30s")
	v.SetDefault("DISPATCH_CONCURRENCY", 1)
	v.SetDefault("MAX_WORKERS", 5)
	v.SetDefault("QUEUE_SIZE", 100)
	v.SetDefault("MANIFEST_PATH", "info.xml")
	v.SetDefault("FETCH_ERROR_POLICY", string(FetchErrorSkip))
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "extpr")
	v.SetDefault("DB_NAME", "extpr")
	v.SetDefault("DB_PATH", "extpr.db")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to read config file", "error", err)
		}
	}

	return v
}

// LoadDatabaseConfig reads only the dispatch store settings. The CLI uses it
// to inspect the store without the server's required settings.
func LoadDatabaseConfig() (*DBConfig, error) {
	cfg := databaseConfig(newViper())
	if !slices.Contains([]string{"postgres", "sqlite", "memory"}, cfg.Driver) {
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.Driver)
	}
	return &cfg, nil
}

// LoadStatusTokenConfig reads only the status token settings.
func LoadStatusTokenConfig() (*StatusTokenConfig, error) {
	v := newViper()
	if strings.TrimSpace(v.GetString("STATUS_SECRET")) == "" {
		return nil, fmt.Errorf("STATUS_SECRET must be set")
	}
	return &StatusTokenConfig{
		Secret: v.GetString("STATUS_SECRET"),
		TTL:    v.GetDuration("STATUS_TOKEN_TTL"),
	}, nil
}

func databaseConfig(v *viper.Viper) DBConfig {
	return DBConfig{
		Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		Username:        v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Database:        v.GetString("DB_NAME"),
		Path:            v.GetString("DB_PATH"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
	}
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if len(c.GitHub.TriggerActions) == 0 {
		return fmt.Errorf("GITHUB_TRIGGER_ACTIONS must name at least one action")
	}
	if c.Dispatch.CallTimeout <= 0 {
		return fmt.Errorf("DISPATCH_CALL_TIMEOUT must be positive, got: %s", c.Dispatch.CallTimeout)
	}
	if c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("DISPATCH_CONCURRENCY must be positive, got: %d", c.Dispatch.Concurrency)
	}
	if c.Qualification.ManifestPath == "" {
		return fmt.Errorf("MANIFEST_PATH must not be empty")
	}
	switch c.Qualification.FetchErrorPolicy {
	case FetchErrorSkip, FetchErrorFail:
	default:
		return fmt.Errorf("FETCH_ERROR_POLICY must be %q or %q, got: %q", FetchErrorSkip, FetchErrorFail, c.Qualification.FetchErrorPolicy)
	}
	if !slices.Contains([]string{"postgres", "sqlite", "memory"}, c.Database.Driver) {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver)
	}
	return ValidateBuildPlan(c.BuildPlan)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
