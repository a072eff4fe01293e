// Package forge is the narrow external boundary the heartbeat invokes
// for two things the core itself never implements the mechanics of:
// checking whether a newer release exists, and running a best-effort
// git auto-commit over the workspace. The core calls these two
// functions and reacts to their result; it never drives the update
// application or the commit's conflict resolution itself. Grounded on
// internal/forge/github.go's client construction (token
// auth via go-github) adapted from its issue/PR surface down to a
// single read-only release lookup.
package forge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v69/github"
)

// UpdateInfo is the result of a single update check.
type UpdateInfo struct {
	CurrentVersion string
	LatestVersion  string
	HasUpdate      bool
	ReleaseURL     string
}

// UpdateChecker checks a GitHub repository's latest release against a
// running version.
type UpdateChecker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewUpdateChecker builds a checker for owner/repo using httpClient.
// An empty token is valid: unauthenticated requests work for public repositories, just
// at a lower rate limit. baseURL is empty in production (api.github.com);
// tests point it at an httptest server the same way
// NewGitHub does for Enterprise URLs.
func NewUpdateChecker(httpClient *http.Client, token, owner, repo, baseURL string) (*UpdateChecker, error) {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(baseURL, baseURL)
		if err != nil {
			return nil, fmt.Errorf("forge: configure base URL: %w", err)
		}
	}
	return &UpdateChecker{client: client, owner: owner, repo: repo}, nil
}

// CheckUpdate fetches the latest release and compares it to
// currentVersion. A bare string comparison is intentional: versions
// here are "vMAJOR.MINOR.PATCH" tags, not semver ranges.
func (c *UpdateChecker) CheckUpdate(ctx context.Context, currentVersion string) (UpdateInfo, error) {
	release, _, err := c.client.Repositories.GetLatestRelease(ctx, c.owner, c.repo)
	if err != nil {
		return UpdateInfo{}, fmt.Errorf("forge: get latest release: %w", err)
	}
	latest := release.GetTagName()
	return UpdateInfo{
		CurrentVersion: currentVersion,
		LatestVersion:  latest,
		HasUpdate:      latest != "" && latest != currentVersion,
		ReleaseURL:     release.GetHTMLURL(),
	}, nil
}

// AutoCommitResult is the outcome of one auto-commit attempt.
type AutoCommitResult struct {
	Eligible      bool // false if the tree was already clean
	Committed     bool
	IdentityError bool // git has no user.name/user.email configured
	Summary       string
}

// AutoCommit runs `git add -A` then `git commit` over workspaceRoot if
// the tree is dirty. It never pushes, rebases, or resolves conflicts —
// those mechanics are explicitly out of scope; this is the narrow
// commit-only interface the heartbeat's tick contract invokes.
func AutoCommit(ctx context.Context, workspaceRoot, message string) (AutoCommitResult, error) {
	dirty, err := hasUncommittedChanges(ctx, workspaceRoot)
	if err != nil {
		return AutoCommitResult{}, err
	}
	if !dirty {
		return AutoCommitResult{Eligible: false, Summary: "workspace tree is clean"}, nil
	}

	if err := runGit(ctx, workspaceRoot, "add", "-A"); err != nil {
		return AutoCommitResult{Eligible: true}, fmt.Errorf("forge: git add: %w", err)
	}

	out, commitErr := combinedOutput(ctx, workspaceRoot, "commit", "-m", message)
	if commitErr == nil {
		return AutoCommitResult{Eligible: true, Committed: true, Summary: "committed workspace changes"}, nil
	}
	if isIdentityError(out) {
		return AutoCommitResult{Eligible: true, IdentityError: true, Summary: "git user.name/user.email not configured"}, nil
	}
	return AutoCommitResult{Eligible: true}, fmt.Errorf("forge: git commit: %w: %s", commitErr, strings.TrimSpace(out))
}

func hasUncommittedChanges(ctx context.Context, dir string) (bool, error) {
	out, err := combinedOutput(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("forge: git status: %w", err)
	}
	return strings.TrimSpace(out) != "", nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	_, err := combinedOutput(ctx, dir, args...)
	return err
}

func combinedOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// UpdateSettings is the operator-toggleable "update auto on/off"
// switch, persisted separately from UpdateInfo. CheckUpdate does not
// consult it; whether a check runs is up to the caller.
type UpdateSettings struct {
	AutoCheck bool `json:"auto_check"`
}

// LoadUpdateSettings reads persisted update settings, defaulting to
// automatic checks enabled if the file is missing or unreadable.
func LoadUpdateSettings(path string) UpdateSettings {
	data, err := os.ReadFile(path)
	if err != nil {
		return UpdateSettings{AutoCheck: true}
	}
	var s UpdateSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return UpdateSettings{AutoCheck: true}
	}
	return s
}

// SaveUpdateSettings persists update settings atomically.
func SaveUpdateSettings(path string, s UpdateSettings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("forge: marshal update settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("forge: create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("forge: write update settings: %w", err)
	}
	return os.Rename(tmp, path)
}

// isIdentityError reports whether git's failure output is the
// well-known "please tell me who you are" identity prompt.
func isIdentityError(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "please tell me who you are") ||
		strings.Contains(lower, "user.email") && strings.Contains(lower, "user.name")
}
