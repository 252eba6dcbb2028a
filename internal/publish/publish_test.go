package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/example/vat/internal/archive"
	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/registrylock"
	"github.com/example/vat/internal/vcs"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// fakeVCS archives a canned manifest for every tag it knows.
type fakeVCS struct {
	tags     []string
	remotes  []string
	archived map[string]string
}

func (f *fakeVCS) ListTags(context.Context, string) ([]string, error) { return f.tags, nil }

func (f *fakeVCS) ListRemotes(context.Context, string) ([]string, error) { return f.remotes, nil }

func (f *fakeVCS) Archive(_ context.Context, _ string, tag, dest string) error {
	body, ok := f.archived[tag]
	if !ok {
		return errors.New("unknown revision " + tag)
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	for name, content := range map[string]string{manifest.FileName: body, "bin/tool.sh": "echo hi\n"} {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

func manifestDoc(t *testing.T, name, version string) string {
	t.Helper()
	m := manifest.New(name)
	m.Package.Version = version
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

type env struct {
	repo      string
	app       string
	workspace string
	vcs       *fakeVCS
	pub       *Publisher
	when      time.Time
}

func newEnv(t *testing.T, version string) env {
	t.Helper()
	base := t.TempDir()
	e := env{
		repo:      filepath.Join(base, "repo"),
		app:       filepath.Join(base, "app"),
		workspace: filepath.Join(base, "ws", "foo"),
		when:      time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}
	m := manifest.New("foo")
	m.Package.Version = version
	if err := manifest.Write(afero.NewOsFs(), e.workspace, m); err != nil {
		t.Fatalf("write workspace: %v", err)
	}
	e.vcs = &fakeVCS{
		tags:     []string{version},
		remotes:  []string{"git@example.com:foo.git"},
		archived: map[string]string{version: manifestDoc(t, "foo", version)},
	}
	e.pub = New(e.repo, registrylock.New(e.app), e.vcs, archive.NewZip(archive.ExtractOptions{}),
		WithClock(func() time.Time { return e.when }))
	return e
}

func TestPublish(t *testing.T) {
	e := newEnv(t, "0.1.0")
	res, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace, Comment: "first"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := filepath.Join(e.repo, "foo", "0.1.0")
	if !strings.HasPrefix(res.Digest, "sha256:") {
		t.Fatalf("expected sha256 archive digest, got %q", res.Digest)
	}
	if res.Path != want || res.Tag != "0.1.0" || res.Files != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(want, "bin", "tool.sh")); err != nil {
		t.Fatalf("expected snapshot contents: %v", err)
	}
	cat, err := catalog.Load(catalog.PathIn(e.repo))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	info, err := cat.Version("foo", "0.1.0")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if info.VersionComment != "first" || !info.PublishedOn.Equal(e.when) {
		t.Fatalf("unexpected version info %+v", info)
	}
	if cat.Packages["foo"].GitURL != "git@example.com:foo.git" || cat.Packages["foo"].MainBranchPath != e.workspace {
		t.Fatalf("unexpected entry %+v", cat.Packages["foo"])
	}
	entries, err := os.ReadDir(filepath.Join(e.repo, StagingDirName))
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty staging dir, got %v (%v)", entries, err)
	}
	if locked, _ := registrylock.New(e.app).IsWriteLocked(); locked {
		t.Fatalf("expected lock to be released")
	}
}

func TestPublishTwiceConflicts(t *testing.T) {
	e := newEnv(t, "0.1.0")
	if _, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if !errors.Is(err, catalog.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestPublishWorkspaceMismatch(t *testing.T) {
	e := newEnv(t, "0.1.0")
	cat := catalog.New()
	if _, err := cat.Link("foo", "/elsewhere/foo", ""); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := cat.Save(catalog.PathIn(e.repo)); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if !errors.Is(err, catalog.ErrWorkspaceMismatch) {
		t.Fatalf("expected ErrWorkspaceMismatch, got %v", err)
	}
}

func TestPublishMissingTag(t *testing.T) {
	e := newEnv(t, "0.1.0")
	e.vcs.tags = nil
	_, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if !errors.Is(err, archive.ErrArchiveFailure) {
		t.Fatalf("expected ErrArchiveFailure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.repo, "foo", "0.1.0")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no snapshot, got %v", err)
	}
}

func TestPublishSnapshotMismatchLeavesNothing(t *testing.T) {
	e := newEnv(t, "0.2.0")
	e.vcs.archived["0.2.0"] = manifestDoc(t, "foo", "0.1.9")
	_, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if !errors.Is(err, ErrSnapshotMismatch) {
		t.Fatalf("expected ErrSnapshotMismatch, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.repo, "foo", "0.2.0")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no snapshot, got %v", err)
	}
	cat, err := catalog.Load(catalog.PathIn(e.repo))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cat.HasVersion("foo", "0.2.0") {
		t.Fatalf("expected version to stay unpublished")
	}
}

func TestPublishReplacesOrphanDirectory(t *testing.T) {
	e := newEnv(t, "0.1.0")
	orphan := filepath.Join(e.repo, "foo", "0.1.0")
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(orphan, "partial"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !res.Replaced {
		t.Fatalf("expected orphan replacement to be reported")
	}
	if _, err := os.Stat(filepath.Join(orphan, "partial")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected orphan contents to be gone, got %v", err)
	}
}

func TestPublishRefusedWhileLocked(t *testing.T) {
	e := newEnv(t, "0.1.0")
	holder := registrylock.New(e.app)
	if err := holder.TryAcquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer holder.Release()
	_, err := e.pub.Publish(context.Background(), Request{Workspace: e.workspace})
	if !errors.Is(err, registrylock.ErrRegistryLocked) {
		t.Fatalf("expected ErrRegistryLocked, got %v", err)
	}
}

func TestLinkAndUnlink(t *testing.T) {
	e := newEnv(t, "0.1.0")
	name, err := e.pub.Link(context.Background(), e.workspace, "")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if name != "foo" {
		t.Fatalf("linked %q", name)
	}
	cat, _ := catalog.Load(catalog.PathIn(e.repo))
	if !cat.Has("foo") || cat.Packages["foo"].GitURL != "git@example.com:foo.git" {
		t.Fatalf("expected foo to be linked, got %+v", cat.Packages)
	}
	if err := e.pub.Unlink(context.Background(), "foo"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	cat, _ = catalog.Load(catalog.PathIn(e.repo))
	if cat.Has("foo") {
		t.Fatalf("expected foo to be unlinked")
	}
}

func TestPublishGitTagWithSymlink(t *testing.T) {
	git := vcs.NewGit()
	if !git.Available() || runtime.GOOS == "windows" {
		t.Skip("needs git and symlink support")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, kv := range [][2]string{
		{"GIT_AUTHOR_NAME", "vat"}, {"GIT_AUTHOR_EMAIL", "vat@example.com"},
		{"GIT_COMMITTER_NAME", "vat"}, {"GIT_COMMITTER_EMAIL", "vat@example.com"},
	} {
		t.Setenv(kv[0], kv[1])
	}

	base := t.TempDir()
	ws := filepath.Join(base, "ws", "foo")
	m := manifest.New("foo")
	m.Package.Version = "0.1.0"
	if err := manifest.Write(afero.NewOsFs(), ws, m); err != nil {
		t.Fatalf("write workspace: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(ws, "lib"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws, "lib", "libx.so.1"), []byte("elf"), 0o644); err != nil {
		t.Fatalf("write lib: %v", err)
	}
	if err := os.Symlink("libx.so.1", filepath.Join(ws, "lib", "libx.so")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := git.Init(ctx, ws); err != nil {
		t.Fatalf("git init: %v", err)
	}
	if err := git.CommitAll(ctx, ws, "initial"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := git.Tag(ctx, ws, "0.1.0"); err != nil {
		t.Fatalf("tag: %v", err)
	}

	repo := filepath.Join(base, "repo")
	pub := New(repo, registrylock.New(repo), git, archive.NewZip(archive.ExtractOptions{}))
	res, err := pub.Publish(ctx, Request{Workspace: ws})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	target, err := os.Readlink(filepath.Join(res.Path, "lib", "libx.so"))
	if err != nil || target != "libx.so.1" {
		t.Fatalf("readlink = %q, %v", target, err)
	}
	data, err := os.ReadFile(filepath.Join(res.Path, "lib", "libx.so"))
	if err != nil || string(data) != "elf" {
		t.Fatalf("read through link: %q, %v", data, err)
	}
}
