// Package qualify decides whether a pull request belongs to a CiviCRM
// extension by looking for the extension manifest at the head commit.
package qualify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sevigo/extpr/internal/github"
)

// DefaultManifestPath is the manifest every CiviCRM extension carries.
const DefaultManifestPath = "info.xml"

// Reasons a pull request does not qualify.
const (
	ReasonManifestMissing = "manifest not found"
	ReasonManifestEmpty   = "manifest empty"
)

// ContentFetcher reads a single file from a repository at a ref.
type ContentFetcher interface {
	GetFileContent(ctx context.Context, owner, repo, ref, path string) (string, error)
}

// RepoRef names a commit of a repository.
type RepoRef struct {
	Owner string
	Repo  string
	Ref   string
}

// Result is the qualification decision.
type Result struct {
	Qualified bool
	Reason    string
}

// FetchError reports that the manifest could not be read for a reason other
// than it not existing. It is kept apart from a miss so the caller can pick
// the policy.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Checker looks for the manifest file.
type Checker struct {
	manifestPath string
}

// NewChecker returns a Checker for the given manifest path.
func NewChecker(manifestPath string) *Checker {
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	return &Checker{manifestPath: manifestPath}
}

// ManifestPath returns the path the checker reads.
func (c *Checker) ManifestPath() string {
	return c.manifestPath
}

// Check fetches the manifest at ref. A missing or blank manifest is a normal
// negative result; transport failures come back as *FetchError.
func (c *Checker) Check(ctx context.Context, fetcher ContentFetcher, ref RepoRef) (Result, error) {
	content, err := fetcher.GetFileContent(ctx, ref.Owner, ref.Repo, ref.Ref, c.manifestPath)
	if err != nil {
		if errors.Is(err, github.ErrFileNotFound) {
			return Result{Reason: ReasonManifestMissing}, nil
		}
		return Result{}, &FetchError{Path: c.manifestPath, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return Result{Reason: ReasonManifestEmpty}, nil
	}
	return Result{Qualified: true}, nil
}
