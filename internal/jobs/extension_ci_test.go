package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/extpr/internal/config"
	"github.com/sevigo/extpr/internal/core"
	"github.com/sevigo/extpr/internal/github"
	"github.com/sevigo/extpr/internal/statustoken"
	"github.com/sevigo/extpr/internal/storage"
	"github.com/sevigo/extpr/mocks"
)

const testSecret = "extension-ci-test-secret"

func testEvent() *core.PullRequestEvent {
	return &core.PullRequestEvent{
		EventID:        "72d3162e-cc78-11e3-81ab-4c9367dc0958",
		InstallationID: 99,
		Action:         "opened",
		RepoOwner:      "civicrm",
		RepoName:       "org.civicrm.myext",
		RepoFullName:   "civicrm/org.civicrm.myext",
		GitURL:         "git://github.com/civicrm/org.civicrm.myext.git",
		PRNumber:       42,
		HeadSHA:        "abc123",
	}
}

func testConfig(plan core.BuildPlan) *config.Config {
	return &config.Config{
		Dispatch: config.DispatchConfig{CallTimeout: time.Second, Concurrency: 1},
		Qualification: config.QualificationConfig{
			ManifestPath:     "info.xml",
			FetchErrorPolicy: config.FetchErrorSkip,
		},
		BuildPlan: plan,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	factory *mocks.MockClientFactory
	client  *mocks.MockClient
	runner  *mocks.MockJobRunner
	codec   *statustoken.Codec
	store   storage.Store
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	codec, err := statustoken.NewCodec(testSecret)
	require.NoError(t, err)
	f := &fixture{
		factory: mocks.NewMockClientFactory(ctrl),
		client:  mocks.NewMockClient(ctrl),
		runner:  mocks.NewMockJobRunner(ctrl),
		codec:   codec,
		store:   storage.NewMemoryStore(),
	}
	f.factory.EXPECT().ForInstallation(gomock.Any(), int64(99)).Return(f.client, nil).AnyTimes()
	return f
}

func (f *fixture) job(cfg *config.Config) core.Job {
	return NewExtensionCIJob(cfg, f.factory, f.runner, f.codec, f.store, discardLogger())
}

func (f *fixture) expectManifest(content string, err error) {
	f.client.EXPECT().
		GetFileContent(gomock.Any(), "civicrm", "org.civicrm.myext", "abc123", "info.xml").
		Return(content, err)
}

func pendingUpdate(tpl core.StatusTemplate) core.StatusUpdate {
	return core.StatusUpdate{StatusTemplate: tpl, State: core.StatePending, Description: core.DescriptionPending}
}

func errorUpdate(tpl core.StatusTemplate) core.StatusUpdate {
	return core.StatusUpdate{StatusTemplate: tpl, State: core.StateError, Description: core.DescriptionTriggerError}
}

func TestExtensionCIJob_TriggersMasterBuild(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	master := core.DefaultBuildPlan().Enabled()[0]
	tpl := core.TemplateFor(event, master)

	var params map[string]string
	f.expectManifest("<extension key=\"org.civicrm.myext\"/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(tpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), "Extension-SHA", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, p map[string]string) error {
				params = p
				return nil
			}),
	)

	report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), event)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Targets, 1)
	assert.Equal(t, core.OutcomeTriggered, report.Targets[0].Outcome)

	assert.Equal(t, "master", params["CIVI_VER"])
	assert.Equal(t, event.GitURL, params[core.ParamGitURL])
	assert.Equal(t, "abc123", params[core.ParamGitCommit])

	claims, err := f.codec.Verify(params[core.ParamStatusToken])
	require.NoError(t, err)
	assert.Equal(t, tpl, claims.Template)
	assert.Equal(t, event.EventID, claims.EventID)
	assert.Equal(t, int64(99), claims.InstallationID)
	assert.Equal(t, report.Targets[0].TokenID, claims.ID)

	records, err := f.store.ListDispatches(context.Background(), event.RepoFullName, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CiviCRM @ Master", records[0].Context)
	assert.Equal(t, core.OutcomeTriggered, records[0].Outcome)
}

func TestExtensionCIJob_TriggerFailureWritesErrorStatus(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	tpl := core.TemplateFor(event, core.DefaultBuildPlan().Enabled()[0])
	errJenkins := errors.New("jenkins unreachable")

	f.expectManifest("<extension/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(tpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), "Extension-SHA", gomock.Any()).Return(errJenkins),
		f.client.EXPECT().CreateStatus(gomock.Any(), errorUpdate(tpl)).Return(nil),
	)

	report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, report.Targets, 1)
	assert.Equal(t, core.OutcomeTriggerFailed, report.Targets[0].Outcome)
	assert.ErrorIs(t, report.Targets[0].TriggerErr, errJenkins)
	assert.NoError(t, report.Targets[0].ErrorStatusErr)
	assert.ErrorIs(t, report.Err(), errJenkins)
}

func TestExtensionCIJob_ErrorStatusFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	tpl := core.TemplateFor(event, core.DefaultBuildPlan().Enabled()[0])
	errGitHub := errors.New("502 bad gateway")

	f.expectManifest("<extension/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(tpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("boom")),
		f.client.EXPECT().CreateStatus(gomock.Any(), errorUpdate(tpl)).Return(errGitHub),
	)

	report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), event)
	require.NoError(t, err)
	assert.ErrorIs(t, report.Targets[0].ErrorStatusErr, errGitHub)
	assert.ErrorIs(t, report.Err(), errGitHub)
}

func TestExtensionCIJob_NotQualified(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		reason  string
	}{
		{name: "manifest missing", err: github.ErrFileNotFound, reason: "manifest not found"},
		{name: "manifest empty", content: "", reason: "manifest empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.expectManifest(tt.content, tt.err)
			// No CreateStatus or BuildWithParams expectations: any call fails the test.

			report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), testEvent())
			require.NoError(t, err)
			assert.True(t, report.Skipped)
			assert.Equal(t, tt.reason, report.SkipReason)
			assert.Empty(t, report.Targets)

			records, err := f.store.ListDispatches(context.Background(), "", 10)
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestExtensionCIJob_FetchErrorPolicy(t *testing.T) {
	errNet := errors.New("connection reset by peer")

	t.Run("skip", func(t *testing.T) {
		f := newFixture(t)
		f.expectManifest("", errNet)

		report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), testEvent())
		require.NoError(t, err)
		assert.True(t, report.Skipped)
		assert.Equal(t, SkipReasonFetchFailed, report.SkipReason)
		assert.ErrorIs(t, report.FetchErr, errNet)
		assert.ErrorIs(t, report.Err(), errNet)
	})

	t.Run("fail", func(t *testing.T) {
		f := newFixture(t)
		f.expectManifest("", errNet)
		cfg := testConfig(core.DefaultBuildPlan())
		cfg.Qualification.FetchErrorPolicy = config.FetchErrorFail

		report, err := f.job(cfg).Run(context.Background(), testEvent())
		require.ErrorIs(t, err, errNet)
		require.NotNil(t, report)
		assert.False(t, report.Skipped)
		assert.Empty(t, report.Targets)
	})
}

func twoTargetPlan() core.BuildPlan {
	return core.BuildPlan{Targets: []core.BuildTarget{
		{Name: "CiviCRM @ RC", Job: "Extension-RC", Params: map[string]string{"CIVI_VER": "5.4"}, Enabled: true},
		{Name: "CiviCRM @ Stable", Job: "Extension-Stable", Params: map[string]string{"CIVI_VER": "5.3"}, Enabled: false},
		{Name: "CiviCRM @ Master", Job: "Extension-SHA", Params: map[string]string{"CIVI_VER": "master"}, Enabled: true},
	}}
}

func TestExtensionCIJob_PendingFailureDoesNotBlockNextTarget(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	plan := twoTargetPlan()
	enabled := plan.Enabled()
	rcTpl := core.TemplateFor(event, enabled[0])
	masterTpl := core.TemplateFor(event, enabled[1])

	f.expectManifest("<extension/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(rcTpl)).Return(errors.New("rate limited")),
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(masterTpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), "Extension-SHA", gomock.Any()).Return(nil),
	)

	report, err := f.job(testConfig(plan)).Run(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, report.Targets, 2)
	assert.Equal(t, core.OutcomePendingFailed, report.Targets[0].Outcome)
	assert.Empty(t, report.Targets[0].TokenID)
	assert.Equal(t, core.OutcomeTriggered, report.Targets[1].Outcome)

	records, err := f.store.ListDispatches(context.Background(), event.RepoFullName, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtensionCIJob_TriggerFailureDoesNotBlockNextTarget(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	enabled := twoTargetPlan().Enabled()
	rcTpl := core.TemplateFor(event, enabled[0])
	masterTpl := core.TemplateFor(event, enabled[1])

	f.expectManifest("<extension/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(rcTpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), "Extension-RC", gomock.Any()).Return(errors.New("no such job")),
		f.client.EXPECT().CreateStatus(gomock.Any(), errorUpdate(rcTpl)).Return(nil),
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(masterTpl)).Return(nil),
		f.runner.EXPECT().BuildWithParams(gomock.Any(), "Extension-SHA", gomock.Any()).Return(nil),
	)

	report, err := f.job(testConfig(twoTargetPlan())).Run(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTriggerFailed, report.Targets[0].Outcome)
	assert.Equal(t, core.OutcomeTriggered, report.Targets[1].Outcome)
}

func TestExtensionCIJob_ConcurrentTargets(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	cfg := testConfig(twoTargetPlan())
	cfg.Dispatch.Concurrency = 2

	var mu sync.Mutex
	pending := map[string]bool{}
	f.expectManifest("<extension/>", nil)
	f.client.EXPECT().CreateStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u core.StatusUpdate) error {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, core.StatePending, u.State)
			pending[u.Context] = true
			return nil
		}).Times(2)
	f.runner.EXPECT().BuildWithParams(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p map[string]string) error {
			claims, err := f.codec.Verify(p[core.ParamStatusToken])
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if !pending[claims.Template.Context] {
				return errors.New("triggered before pending was written")
			}
			return nil
		}).Times(2)

	report, err := f.job(cfg).Run(context.Background(), event)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, "CiviCRM @ RC", report.Targets[0].Target.Name)
	assert.Equal(t, "CiviCRM @ Master", report.Targets[1].Target.Name)
}

func TestExtensionCIJob_ClientFactoryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	factory := mocks.NewMockClientFactory(ctrl)
	runner := mocks.NewMockJobRunner(ctrl)
	codec, err := statustoken.NewCodec(testSecret)
	require.NoError(t, err)

	factory.EXPECT().ForInstallation(gomock.Any(), int64(99)).Return(nil, errors.New("installation suspended"))

	job := NewExtensionCIJob(testConfig(core.DefaultBuildPlan()), factory, runner, codec, nil, discardLogger())
	_, err = job.Run(context.Background(), testEvent())
	assert.ErrorContains(t, err, "installation suspended")
}

func TestExtensionCIJob_InvalidEvent(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	event.HeadSHA = ""

	report, err := f.job(testConfig(core.DefaultBuildPlan())).Run(context.Background(), event)
	assert.ErrorContains(t, err, "input validation failed")
	assert.Nil(t, report)
}

type failingIssuer struct{}

func (failingIssuer) Issue(statustoken.Payload) (*statustoken.Issued, error) {
	return nil, errors.New("clock skew")
}

func TestExtensionCIJob_TokenFailureWritesErrorStatus(t *testing.T) {
	f := newFixture(t)
	event := testEvent()
	tpl := core.TemplateFor(event, core.DefaultBuildPlan().Enabled()[0])

	f.expectManifest("<extension/>", nil)
	gomock.InOrder(
		f.client.EXPECT().CreateStatus(gomock.Any(), pendingUpdate(tpl)).Return(nil),
		f.client.EXPECT().CreateStatus(gomock.Any(), errorUpdate(tpl)).Return(nil),
	)

	job := NewExtensionCIJob(testConfig(core.DefaultBuildPlan()), f.factory, f.runner, failingIssuer{}, nil, discardLogger())
	report, err := job.Run(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeTriggerFailed, report.Targets[0].Outcome)
	assert.ErrorContains(t, report.Targets[0].TriggerErr, "status token")
}
