package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBuildPlan_OnlyMasterEnabled(t *testing.T) {
	enabled := DefaultBuildPlan().Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "CiviCRM @ Master", enabled[0].Name)
	assert.Equal(t, "Extension-SHA", enabled[0].Job)
	assert.Equal(t, map[string]string{"CIVI_VER": "master"}, enabled[0].Params)
}

func TestBuildPlan_EnabledKeepsOrder(t *testing.T) {
	plan := BuildPlan{Targets: []BuildTarget{
		{Name: "a", Enabled: true},
		{Name: "b"},
		{Name: "c", Enabled: true},
	}}
	var names []string
	for _, tgt := range plan.Enabled() {
		names = append(names, tgt.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestBuildTarget_JobParams(t *testing.T) {
	target := BuildTarget{Params: map[string]string{"CIVI_VER": "master", ParamGitCommit: "stale"}}

	params := target.JobParams("git://example/repo.git", "abc123", "tok")

	assert.Equal(t, map[string]string{
		"CIVI_VER":       "master",
		ParamGitURL:      "git://example/repo.git",
		ParamGitCommit:   "abc123",
		ParamStatusToken: "tok",
	}, params)
	assert.Equal(t, "stale", target.Params[ParamGitCommit], "static params must not be mutated")
}

func TestParseStatusState(t *testing.T) {
	for _, s := range []string{"pending", "success", "failure", "error"} {
		st, err := ParseStatusState(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(st))
	}
	_, err := ParseStatusState("done")
	assert.Error(t, err)

	assert.False(t, StatePending.IsTerminal())
	assert.True(t, StateFailure.IsTerminal())
}

func TestDispatchReport_ErrAndRecords(t *testing.T) {
	ev := &PullRequestEvent{EventID: "d1", RepoFullName: "o/r", PRNumber: 7, HeadSHA: "abc"}
	report := &DispatchReport{
		Event: ev,
		Targets: []TargetResult{
			{Target: BuildTarget{Name: "ok", Job: "J"}, Outcome: OutcomeTriggered, TokenID: "t1"},
			{Target: BuildTarget{Name: "bad", Job: "J"}, Outcome: OutcomeTriggerFailed, TriggerErr: errors.New("boom")},
		},
	}

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: trigger: boom")

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	recs := report.Records(now)
	require.Len(t, recs, 2)
	assert.Equal(t, "ok", recs[0].Context)
	assert.Empty(t, recs[0].Error)
	assert.Equal(t, "boom", recs[1].Error)
	assert.Equal(t, now, recs[1].CreatedAt)

	assert.NoError(t, (&DispatchReport{Event: ev, Skipped: true}).Err())
}
