package core

import "maps"

// Parameters the dispatcher adds to every build. A build plan may not set them.
const (
	ParamGitURL      = "GIT_URL"
	ParamGitCommit   = "GIT_COMMIT"
	ParamStatusToken = "STATUS_TOKEN"
)

// BuildTarget is one named CI check and the job that produces it.
type BuildTarget struct {
	// Name is the commit status context shown on GitHub, e.g. "CiviCRM @ Master".
	Name    string            `yaml:"name"`
	Job     string            `yaml:"job"`
	Params  map[string]string `yaml:"params"`
	Enabled bool              `yaml:"enabled"`
}

// JobParams merges the target's static parameters with the per-dispatch ones.
// Dynamic values win over static ones with the same key.
func (t BuildTarget) JobParams(gitURL, commit, token string) map[string]string {
	params := make(map[string]string, len(t.Params)+3)
	maps.Copy(params, t.Params)
	params[ParamGitURL] = gitURL
	params[ParamGitCommit] = commit
	params[ParamStatusToken] = token
	return params
}

// BuildPlan is the ordered list of build targets.
type BuildPlan struct {
	Targets []BuildTarget `yaml:"targets"`
}

// Enabled returns the enabled targets in plan order.
func (p BuildPlan) Enabled() []BuildTarget {
	var out []BuildTarget
	for _, t := range p.Targets {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}

// DefaultBuildPlan returns the compiled-in plan. Only master is tested today;
// the RC and stable lines are kept for when the test matrix is widened.
func DefaultBuildPlan() BuildPlan {
	return BuildPlan{Targets: []BuildTarget{
		{Name: "CiviCRM @ RC", Job: "Extension-SHA", Params: map[string]string{"CIVI_VER": "5.4"}, Enabled: false},
		{Name: "CiviCRM @ Stable", Job: "Extension-SHA", Params: map[string]string{"CIVI_VER": "5.3"}, Enabled: false},
		{Name: "CiviCRM @ Master", Job: "Extension-SHA", Params: map[string]string{"CIVI_VER": "master"}, Enabled: true},
	}}
}
