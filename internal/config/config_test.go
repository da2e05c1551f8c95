package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/extpr/internal/core"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GITHUB_APP_ID", "12345")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "webhook-secret")
	t.Setenv("STATUS_SECRET", "status-secret-0123456789")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(12345), cfg.GitHub.AppID)
	assert.Equal(t, []string{"opened", "synchronize", "reopened"}, cfg.GitHub.TriggerActions)
	assert.Equal(t, 24*time.Hour, cfg.StatusToken.TTL)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.CallTimeout)
	assert.Equal(t, 1, cfg.Dispatch.Concurrency)
	assert.Equal(t, "info.xml", cfg.Qualification.ManifestPath)
	assert.Equal(t, FetchErrorSkip, cfg.Qualification.FetchErrorPolicy)
	assert.Equal(t, core.DefaultBuildPlan(), cfg.BuildPlan)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "app id", unset: "GITHUB_APP_ID"},
		{name: "webhook secret", unset: "GITHUB_WEBHOOK_SECRET"},
		{name: "status secret", unset: "STATUS_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.unset)
		})
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "policy", key: "FETCH_ERROR_POLICY", value: "retry"},
		{name: "concurrency", key: "DISPATCH_CONCURRENCY", value: "0"},
		{name: "driver", key: "DB_DRIVER", value: "mysql"},
		{name: "actions", key: "GITHUB_TRIGGER_ACTIONS", value: " , "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_BuildPlanFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - name: "CiviCRM @ Master"
    job: Extension-SHA
    params:
      CIVI_VER: master
    enabled: true
  - name: "CiviCRM @ Stable"
    job: Extension-SHA
    params:
      CIVI_VER: "5.3"
`), 0o600))
	t.Setenv("BUILD_PLAN_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.BuildPlan.Targets, 2)
	assert.False(t, cfg.BuildPlan.Targets[1].Enabled)
	assert.Equal(t, "5.3", cfg.BuildPlan.Targets[1].Params["CIVI_VER"])
	assert.Len(t, cfg.BuildPlan.Enabled(), 1)
}

func TestValidateBuildPlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    core.BuildPlan
		wantErr bool
	}{
		{name: "default", plan: core.DefaultBuildPlan()},
		{name: "empty", plan: core.BuildPlan{}},
		{
			name:    "missing name",
			plan:    core.BuildPlan{Targets: []core.BuildTarget{{Job: "J"}}},
			wantErr: true,
		},
		{
			name:    "missing job",
			plan:    core.BuildPlan{Targets: []core.BuildTarget{{Name: "n"}}},
			wantErr: true,
		},
		{
			name: "duplicate",
			plan: core.BuildPlan{Targets: []core.BuildTarget{
				{Name: "n", Job: "J"}, {Name: "n", Job: "K"},
			}},
			wantErr: true,
		},
		{
			name: "reserved param",
			plan: core.BuildPlan{Targets: []core.BuildTarget{
				{Name: "n", Job: "J", Params: map[string]string{core.ParamStatusToken: "x"}},
			}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBuildPlan(tt.plan)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBuildPlan)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadBuildPlan_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte("targets: [unterminated"), 0o600))

	_, err := LoadBuildPlan(path)
	assert.ErrorIs(t, err, ErrInvalidBuildPlan)
}

func TestLoadDatabaseConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_PATH", "/tmp/extpr-test.db")

	cfg, err := LoadDatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "/tmp/extpr-test.db", cfg.Path)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)

	t.Setenv("DB_DRIVER", "mysql")
	_, err = LoadDatabaseConfig()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestLoadStatusTokenConfig(t *testing.T) {
	t.Setenv("STATUS_SECRET", "")
	_, err := LoadStatusTokenConfig()
	assert.ErrorContains(t, err, "STATUS_SECRET")

	t.Setenv("STATUS_SECRET", "status-secret-0123456789")
	t.Setenv("STATUS_TOKEN_TTL", "2h")
	cfg, err := LoadStatusTokenConfig()
	require.NoError(t, err)
	assert.Equal(t, "status-secret-0123456789", cfg.Secret)
	assert.Equal(t, 2*time.Hour, cfg.TTL)
}
