// File: internal/publish/publish.go
// Brief: Repository mutations: publish a tagged workspace version, link and unlink packages.

// Package publish moves package versions from a workspace into the repository.
//
// A publish stages the archived tag under <repo>/.staging, verifies the
// snapshot, renames it into <repo>/<name>/<version> and only then records the
// version in the catalog. A crash leaves at worst an uncatalogued directory,
// which the next publish of the same version replaces.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/example/vat/internal/archive"
	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/vcs"
	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
)

// StagingDirName holds in-flight publishes inside the repository.
const StagingDirName = ".staging"

var ErrSnapshotMismatch = errors.New("archived manifest does not match workspace")

// Locker serialises repository mutations across processes.
type Locker interface {
	WithWriteLock(ctx context.Context, fn func() error) error
}

type Publisher struct {
	repoRoot  string
	lock      Locker
	vcs       vcs.Provider
	extractor archive.Extractor
	fs        afero.Fs
	log       logr.Logger
	now       func() time.Time
}

type Option func(*Publisher)

func WithLogger(log logr.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithFs sets the filesystem used to read workspace manifests.
func WithFs(fs afero.Fs) Option {
	return func(p *Publisher) {
		if fs != nil {
			p.fs = fs
		}
	}
}

func New(repoRoot string, lock Locker, provider vcs.Provider, extractor archive.Extractor, opts ...Option) *Publisher {
	p := &Publisher{
		repoRoot:  repoRoot,
		lock:      lock,
		vcs:       provider,
		extractor: extractor,
		fs:        afero.NewOsFs(),
		log:       logr.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Request struct {
	Workspace string
	Comment   string
}

type Result struct {
	Name     string `json:"name" yaml:"name"`
	Version  string `json:"version" yaml:"version"`
	Tag      string `json:"tag" yaml:"tag"`
	Path     string `json:"path" yaml:"path"`
	Files    int    `json:"files" yaml:"files"`
	Digest   string `json:"digest" yaml:"digest"`
	Replaced bool   `json:"replacedOrphan,omitempty" yaml:"replacedOrphan,omitempty"`
}

// Publish snapshots the version named by the workspace manifest.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	workspace, err := filepath.Abs(strings.TrimSpace(req.Workspace))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	m, err := manifest.Read(p.fs, workspace)
	if err != nil {
		return nil, err
	}
	version, err := catalog.NormalizeVersion(m.Package.Version)
	if err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		comment = strings.TrimSpace(m.Package.VersionMessage)
	}

	var res *Result
	err = p.lock.WithWriteLock(ctx, func() error {
		var innerErr error
		res, innerErr = p.publishLocked(ctx, workspace, m.Package.Name, version, comment)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Publisher) publishLocked(ctx context.Context, workspace, name, version, comment string) (*Result, error) {
	log := p.log.WithValues("package", name, "version", version)
	catPath := catalog.PathIn(p.repoRoot)
	cat, err := catalog.Load(catPath)
	if err != nil {
		return nil, err
	}
	if _, err := cat.Link(name, workspace, p.remoteURL(ctx, workspace)); err != nil {
		return nil, err
	}
	if cat.HasVersion(name, version) {
		return nil, fmt.Errorf("%w: %s %s", catalog.ErrVersionConflict, name, version)
	}

	tags, err := p.vcs.ListTags(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("%w: list tags: %v", archive.ErrArchiveFailure, err)
	}
	tag, err := vcs.FindVersionTag(tags, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrArchiveFailure, err)
	}

	stagingRoot := filepath.Join(p.repoRoot, StagingDirName)
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	stage, err := os.MkdirTemp(stagingRoot, name+"-"+version+"-")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stage); rmErr != nil {
			log.Error(rmErr, "failed to clean staging dir", "path", stage)
		}
	}()

	zipPath := filepath.Join(stage, version+".zip")
	log.Info("archiving tag", "tag", tag)
	if err := p.vcs.Archive(ctx, workspace, tag, zipPath); err != nil {
		return nil, fmt.Errorf("%w: archive %s: %v", archive.ErrArchiveFailure, tag, err)
	}
	dgst, err := archiveDigest(zipPath)
	if err != nil {
		return nil, err
	}
	tree := filepath.Join(stage, "tree")
	extracted, err := p.extractor.Extract(ctx, zipPath, tree)
	if err != nil {
		return nil, err
	}
	if err := verifySnapshot(tree, name, version); err != nil {
		return nil, err
	}

	final := catalog.StoragePath(p.repoRoot, name, version)
	replaced := false
	if _, err := os.Stat(final); err == nil {
		log.Info("replacing uncatalogued version directory", "path", final)
		if err := os.RemoveAll(final); err != nil {
			return nil, fmt.Errorf("remove orphaned %s: %w", final, err)
		}
		replaced = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", final, err)
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, fmt.Errorf("create package dir: %w", err)
	}
	if err := os.Rename(tree, final); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}

	if err := cat.AddVersion(name, version, comment, p.now()); err != nil {
		_ = os.RemoveAll(final)
		return nil, err
	}
	if err := cat.Save(catPath); err != nil {
		_ = os.RemoveAll(final)
		return nil, err
	}
	log.Info("published", "path", final, "files", extracted.FileCount, "digest", dgst.String())
	return &Result{
		Name:     name,
		Version:  version,
		Tag:      tag,
		Path:     final,
		Files:    extracted.FileCount,
		Digest:   dgst.String(),
		Replaced: replaced,
	}, nil
}

func archiveDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open archive: %v", archive.ErrArchiveFailure, err)
	}
	defer f.Close()
	dgst, err := digest.Canonical.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: digest archive: %v", archive.ErrArchiveFailure, err)
	}
	return dgst, nil
}

func verifySnapshot(tree, name, version string) error {
	m, err := manifest.Read(afero.NewOsFs(), tree)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMismatch, err)
	}
	got, err := catalog.NormalizeVersion(m.Package.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotMismatch, err)
	}
	if m.Package.Name != name || got != version {
		return fmt.Errorf("%w: tag contains %s %s, expected %s %s (commit and tag the bumped manifest first)",
			ErrSnapshotMismatch, m.Package.Name, got, name, version)
	}
	return nil
}

func (p *Publisher) remoteURL(ctx context.Context, workspace string) string {
	remotes, err := p.vcs.ListRemotes(ctx, workspace)
	if err != nil || len(remotes) == 0 {
		return ""
	}
	return remotes[0]
}

// Link registers a workspace without publishing it.
func (p *Publisher) Link(ctx context.Context, workspace, gitURL string) (string, error) {
	workspace, err := filepath.Abs(strings.TrimSpace(workspace))
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	m, err := manifest.Read(p.fs, workspace)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(gitURL) == "" {
		gitURL = p.remoteURL(ctx, workspace)
	}
	err = p.lock.WithWriteLock(ctx, func() error {
		catPath := catalog.PathIn(p.repoRoot)
		cat, err := catalog.Load(catPath)
		if err != nil {
			return err
		}
		if _, err := cat.Link(m.Package.Name, workspace, gitURL); err != nil {
			return err
		}
		return cat.Save(catPath)
	})
	if err != nil {
		return "", err
	}
	return m.Package.Name, nil
}

// Unlink forgets a package that has no published versions.
func (p *Publisher) Unlink(ctx context.Context, name string) error {
	return p.lock.WithWriteLock(ctx, func() error {
		catPath := catalog.PathIn(p.repoRoot)
		cat, err := catalog.Load(catPath)
		if err != nil {
			return err
		}
		if err := cat.Unlink(name); err != nil {
			return err
		}
		return cat.Save(catPath)
	})
}
