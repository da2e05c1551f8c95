// Package gitutil parses the repository references accepted on the command line.
package gitutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	prURLRegex   = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)
	repoURLRegex = regexp.MustCompile(`^(?:(?:https?|git|ssh)://)?(?:git@)?github\.com[/:]([^/]+)/([^/]+?)(?:\.git)?$`)
	shortRegex   = regexp.MustCompile(`^([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+)$`)
)

// ParsePullRequestURL parses a GitHub Pull Request URL and extracts the owner, repo, and PR number.
// Supported format: https://github.com/{owner}/{repo}/pull/{number}
func ParsePullRequestURL(url string) (owner, repo string, prNumber int, err error) {
	url = strings.TrimSuffix(url, "/")

	matches := prURLRegex.FindStringSubmatch(url)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid pull request URL format: %s", url)
	}

	owner = matches[1]
	repo = matches[2]
	prNumberStr := matches[3]

	prNumber, err = strconv.Atoi(prNumberStr)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number '%s': %w", prNumberStr, err)
	}

	return owner, repo, prNumber, nil
}

// ParseRepository accepts "owner/repo" or any GitHub clone or web URL,
// including the git:// form the build jobs clone from.
func ParseRepository(s string) (owner, repo string, err error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")

	if m := shortRegex.FindStringSubmatch(s); m != nil {
		return m[1], strings.TrimSuffix(m[2], ".git"), nil
	}
	if m := repoURLRegex.FindStringSubmatch(s); m != nil {
		return m[1], m[2], nil
	}
	if owner, repo, _, err := ParsePullRequestURL(s); err == nil {
		return owner, repo, nil
	}
	return "", "", fmt.Errorf("invalid repository reference: %s", s)
}
