package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/extpr/internal/core"
)

var ErrInvalidBuildPlan = errors.New("invalid build plan")

var reservedParams = []string{core.ParamGitURL, core.ParamGitCommit, core.ParamStatusToken}

// LoadBuildPlan loads and validates a build plan YAML file:
//
//	targets:
//	  - name: "CiviCRM @ Master"
//	    job: Extension-SHA
//	    params: {CIVI_VER: master}
//	    enabled: true
func LoadBuildPlan(path string) (*core.BuildPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build plan %s: %w", path, err)
	}

	var plan core.BuildPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBuildPlan, err)
	}
	if err := ValidateBuildPlan(plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ValidateBuildPlan checks names are unique, every target has a job, and no
// target overrides a parameter the dispatcher sets itself.
func ValidateBuildPlan(plan core.BuildPlan) error {
	seen := make(map[string]struct{}, len(plan.Targets))
	for i, t := range plan.Targets {
		if t.Name == "" {
			return fmt.Errorf("%w: target %d has no name", ErrInvalidBuildPlan, i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("%w: duplicate target name %q", ErrInvalidBuildPlan, t.Name)
		}
		seen[t.Name] = struct{}{}

		if t.Job == "" {
			return fmt.Errorf("%w: target %q has no job", ErrInvalidBuildPlan, t.Name)
		}
		for _, key := range reservedParams {
			if _, ok := t.Params[key]; ok {
				return fmt.Errorf("%w: target %q sets reserved parameter %s", ErrInvalidBuildPlan, t.Name, key)
			}
		}
	}
	return nil
}
