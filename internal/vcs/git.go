// File: internal/vcs/git.go
// Brief: Git CLI adapter for tags, archives and workspace bookkeeping.

// Package vcs talks to the version-control client of a package workspace.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrTagNotFound = errors.New("tag not found")

// Provider is what publishing needs from version control.
type Provider interface {
	ListTags(ctx context.Context, dir string) ([]string, error)
	ListRemotes(ctx context.Context, dir string) ([]string, error)
	// Archive writes the tree at tag as a zip file to dest.
	Archive(ctx context.Context, dir, tag, dest string) error
}

// Client adds the workspace bookkeeping operations.
type Client interface {
	Provider
	Head(ctx context.Context, dir string) (Worktree, error)
	Init(ctx context.Context, dir string) error
	CommitAll(ctx context.Context, dir, message string) error
	Tag(ctx context.Context, dir, tag string) error
	Clone(ctx context.Context, url, dest string) error
	FetchAll(ctx context.Context, dir string) error
	Checkout(ctx context.Context, dir, ref string) error
}

var _ Client = (*Git)(nil)

// Git shells out to the git binary.
type Git struct {
	// Binary defaults to "git".
	Binary string
}

func NewGit() *Git {
	return &Git{Binary: "git"}
}

// Available reports whether the git binary can be found.
func (g *Git) Available() bool {
	_, err := exec.LookPath(g.bin())
	return err == nil
}

func (g *Git) bin() string {
	if g == nil || strings.TrimSpace(g.Binary) == "" {
		return "git"
	}
	return g.Binary
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := args
	if dir != "" {
		full = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, g.bin(), full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.String(), nil
}

func lines(out string) []string {
	var result []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result = append(result, line)
	}
	return result
}

func (g *Git) ListTags(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "tag", "--list")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (g *Git) ListRemotes(ctx context.Context, dir string) ([]string, error) {
	out, err := g.run(ctx, dir, "remote", "-v")
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var urls []string
	for _, line := range lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if _, ok := seen[fields[1]]; ok {
			continue
		}
		seen[fields[1]] = struct{}{}
		urls = append(urls, fields[1])
	}
	return urls, nil
}

func (g *Git) Archive(ctx context.Context, dir, tag, dest string) error {
	_, err := g.run(ctx, dir, "archive", "--format=zip", "-o", dest, tag)
	return err
}

// Worktree is the checked-out state of a workspace.
type Worktree struct {
	// Commit is empty before the first commit.
	Commit string
	// Changes lists modified, staged and untracked paths relative to the repository root.
	Changes []string
}

func (w Worktree) Dirty() bool { return len(w.Changes) > 0 }

// Head returns the current commit and the uncommitted changes of dir.
func (g *Git) Head(ctx context.Context, dir string) (Worktree, error) {
	status, err := g.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return Worktree{}, err
	}
	wt := Worktree{Changes: porcelainPaths(status)}
	// rev-parse fails on an unborn branch; that is not an error here.
	if out, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD"); err == nil {
		wt.Commit = strings.TrimSpace(out)
	}
	return wt, nil
}

// porcelainPaths extracts paths from `git status --porcelain` (v1) output.
func porcelainPaths(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}
		paths = append(paths, strings.Trim(path, `"`))
	}
	return paths
}

func (g *Git) Init(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "init")
	return err
}

// CommitAll stages every change and commits it with message.
func (g *Git) CommitAll(ctx context.Context, dir, message string) error {
	if _, err := g.run(ctx, dir, "add", "."); err != nil {
		return err
	}
	_, err := g.run(ctx, dir, "commit", "-m", message)
	return err
}

func (g *Git) Tag(ctx context.Context, dir, tag string) error {
	_, err := g.run(ctx, dir, "tag", tag)
	return err
}

func (g *Git) Clone(ctx context.Context, url, dest string) error {
	_, err := g.run(ctx, "", "clone", url, dest)
	return err
}

func (g *Git) FetchAll(ctx context.Context, dir string) error {
	_, err := g.run(ctx, dir, "fetch", "--all", "--tags")
	return err
}

func (g *Git) Checkout(ctx context.Context, dir, ref string) error {
	_, err := g.run(ctx, dir, "checkout", ref)
	return err
}

// FindVersionTag returns the tag that names version, accepting "1.2.3" and "v1.2.3".
func FindVersionTag(tags []string, version string) (string, error) {
	want, err := semver.StrictNewVersion(version)
	if err != nil {
		return "", fmt.Errorf("invalid version %q: %w", version, err)
	}
	for _, candidate := range []string{version, want.String(), "v" + want.String()} {
		for _, tag := range tags {
			if tag == candidate {
				return tag, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s (expected tag %s or v%s)", ErrTagNotFound, version, want.String(), want.String())
}

// ParseTag parses a version tag, allowing a single leading "v".
// The version itself must be a full semantic version.
func ParseTag(tag string) (*semver.Version, error) {
	_, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, err
	}
	// Original() keeps the tag as written so it can be checked out.
	return semver.NewVersion(tag)
}

// SemverTags returns tags that parse as versions, highest first.
func SemverTags(tags []string) []*semver.Version {
	var versions []*semver.Version
	for _, tag := range tags {
		v, err := ParseTag(tag)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(semver.Collection(versions)))
	return versions
}
