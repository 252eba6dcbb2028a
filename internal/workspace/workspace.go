// File: internal/workspace/workspace.go
// Brief: Package workspace lifecycle: init, bump, status, clone and update.

package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/publish"
	"github.com/example/vat/internal/vcs"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// ClonesDirName is where cloned workspaces live inside the repository.
const ClonesDirName = "packages"

var (
	ErrAlreadyInitialized = errors.New("workspace already has a manifest")
	ErrNotEmpty           = errors.New("directory is not empty")
	ErrNotAPackage        = errors.New("cloned repository has no vat.toml")
	ErrNoVersionTags      = errors.New("no version tags found")
	ErrNotCloned          = errors.New("package has no git url")
	ErrDirtyWorktree      = errors.New("workspace has uncommitted changes")
)

type Manager struct {
	repoRoot  string
	git       vcs.Client
	publisher *publish.Publisher
	fs        afero.Fs
	log       logr.Logger
}

type Option func(*Manager)

func WithLogger(log logr.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithFs(fs afero.Fs) Option {
	return func(m *Manager) {
		if fs != nil {
			m.fs = fs
		}
	}
}

func New(repoRoot string, git vcs.Client, publisher *publish.Publisher, opts ...Option) *Manager {
	m := &Manager{
		repoRoot:  repoRoot,
		git:       git,
		publisher: publisher,
		fs:        afero.NewOsFs(),
		log:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init writes a starter manifest into dir and initialises a git repository.
// An empty name uses the directory name.
func (m *Manager) Init(ctx context.Context, dir, name string, force bool) (*manifest.Manifest, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if manifest.Exists(m.fs, dir) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, filepath.Join(dir, manifest.FileName))
	}
	if !force {
		empty, err := isEmptyDir(m.fs, dir)
		if err != nil {
			return nil, err
		}
		if !empty {
			return nil, fmt.Errorf("%w: %s (use --force to initialise anyway)", ErrNotEmpty, dir)
		}
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(dir)
	}
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: package name %q must match [A-Za-z0-9_-]+", manifest.ErrInvalid, name)
	}
	mf := manifest.New(name)
	if err := manifest.Write(m.fs, dir, mf); err != nil {
		return nil, err
	}
	if err := m.git.Init(ctx, dir); err != nil {
		return nil, err
	}
	m.log.Info("initialised package", "name", name, "path", dir)
	return mf, nil
}

func isEmptyDir(fs afero.Fs, dir string) (bool, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	return len(entries) == 0, nil
}

// Uncommitted lists the changes in dir that a bump commit would sweep in.
// The manifest itself is excluded because bump rewrites and commits it.
func (m *Manager) Uncommitted(ctx context.Context, dir string) ([]string, error) {
	wt, err := m.git.Head(ctx, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, path := range wt.Changes {
		if path == manifest.FileName {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

// Bump increments the manifest version, commits it and tags the new version.
// It refuses a worktree with other uncommitted changes unless allowDirty is set.
func (m *Manager) Bump(ctx context.Context, dir string, kind manifest.BumpKind, allowDirty bool) (string, string, error) {
	mf, err := manifest.Read(m.fs, dir)
	if err != nil {
		return "", "", err
	}
	changes, err := m.Uncommitted(ctx, dir)
	if err != nil {
		return "", "", err
	}
	if len(changes) > 0 {
		if !allowDirty {
			return "", "", fmt.Errorf("%w: %s", ErrDirtyWorktree, strings.Join(changes, ", "))
		}
		m.log.Info("committing uncommitted changes with the version bump", "paths", changes)
	}
	prev, next, err := mf.Bump(kind)
	if err != nil {
		return "", "", err
	}
	if err := manifest.Write(m.fs, dir, mf); err != nil {
		return "", "", err
	}
	if err := m.git.CommitAll(ctx, dir, "New version "+next); err != nil {
		return prev, next, err
	}
	if err := m.git.Tag(ctx, dir, next); err != nil {
		return prev, next, err
	}
	m.log.Info("bumped version", "from", prev, "to", next)
	return prev, next, nil
}

// Preview returns the version Bump would produce without touching anything.
func (m *Manager) Preview(dir string, kind manifest.BumpKind) (string, string, error) {
	mf, err := manifest.Read(m.fs, dir)
	if err != nil {
		return "", "", err
	}
	return mf.Bump(kind)
}

type State string

const (
	StateUpToDate State = "up to date"
	StateAhead    State = "ahead"
	StateBehind   State = "behind"
	StateNoTags   State = "no tags"
)

type Status struct {
	Name            string `json:"name" yaml:"name"`
	ManifestVersion string `json:"manifestVersion" yaml:"manifestVersion"`
	LatestTag       string `json:"latestTag,omitempty" yaml:"latestTag,omitempty"`
	State           State  `json:"state" yaml:"state"`
}

// Status compares the manifest version in dir with its highest version tag.
func (m *Manager) Status(ctx context.Context, dir string) (*Status, error) {
	mf, err := manifest.Read(m.fs, dir)
	if err != nil {
		return nil, err
	}
	current, err := mf.SemVer()
	if err != nil {
		return nil, err
	}
	tags, err := m.git.ListTags(ctx, dir)
	if err != nil {
		return nil, err
	}
	st := &Status{Name: mf.Package.Name, ManifestVersion: current.String(), State: StateNoTags}
	versions := vcs.SemverTags(tags)
	if len(versions) == 0 {
		return st, nil
	}
	latest := versions[0]
	st.LatestTag = latest.Original()
	switch current.Compare(latest) {
	case 1:
		st.State = StateAhead
	case -1:
		st.State = StateBehind
	default:
		st.State = StateUpToDate
	}
	return st, nil
}

// StatusOf reports the status of a registered package's workspace.
func (m *Manager) StatusOf(ctx context.Context, name string) (*Status, error) {
	entry, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	return m.Status(ctx, entry.MainBranchPath)
}

// Clone fetches a package repository into the repository's clone area and links it.
func (m *Manager) Clone(ctx context.Context, url string) (string, error) {
	base := RepoName(url)
	if !manifest.ValidName(base) {
		return "", fmt.Errorf("cannot derive a package name from %q", url)
	}
	dest := filepath.Join(m.repoRoot, ClonesDirName, base, "main")
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := m.git.Clone(ctx, url, dest); err != nil {
		return "", err
	}
	if !manifest.Exists(m.fs, dest) {
		_ = os.RemoveAll(filepath.Dir(dest))
		return "", fmt.Errorf("%w: %s", ErrNotAPackage, url)
	}
	name, err := m.publisher.Link(ctx, dest, url)
	if err != nil {
		_ = os.RemoveAll(filepath.Dir(dest))
		return "", err
	}
	m.log.Info("cloned package", "name", name, "path", dest)
	return name, nil
}

type UpdateResult struct {
	Name      string          `json:"name" yaml:"name"`
	Version   string          `json:"version" yaml:"version"`
	Published *publish.Result `json:"published,omitempty" yaml:"published,omitempty"`
}

// Update fetches a cloned package, checks out its highest version tag and
// publishes that version if it is new.
func (m *Manager) Update(ctx context.Context, name string) (*UpdateResult, error) {
	entry, err := m.entry(name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.GitURL) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotCloned, name)
	}
	dir := entry.MainBranchPath
	if err := m.git.FetchAll(ctx, dir); err != nil {
		return nil, err
	}
	tags, err := m.git.ListTags(ctx, dir)
	if err != nil {
		return nil, err
	}
	versions := vcs.SemverTags(tags)
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVersionTags, name)
	}
	latest := versions[0]
	if err := m.git.Checkout(ctx, dir, latest.Original()); err != nil {
		return nil, err
	}
	res := &UpdateResult{Name: name, Version: latest.String()}
	cat, err := catalog.Load(catalog.PathIn(m.repoRoot))
	if err != nil {
		return nil, err
	}
	if cat.HasVersion(name, latest.String()) {
		m.log.Info("already published", "name", name, "version", latest.String())
		return res, nil
	}
	published, err := m.publisher.Publish(ctx, publish.Request{Workspace: dir, Comment: "update to " + latest.Original()})
	if err != nil {
		return nil, err
	}
	res.Published = published
	return res, nil
}

func (m *Manager) entry(name string) (*catalog.Entry, error) {
	cat, err := catalog.Load(catalog.PathIn(m.repoRoot))
	if err != nil {
		return nil, err
	}
	return cat.Get(name)
}

// RepoName derives a directory name from a git URL ("git@host:org/tools.git" -> "tools").
func RepoName(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	url = strings.ReplaceAll(url, ":", "/")
	name := path.Base(url)
	return strings.TrimSuffix(name, ".git")
}
