package vcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFindVersionTag(t *testing.T) {
	tags := []string{"0.1.0", "v0.2.0", "release"}
	if tag, err := FindVersionTag(tags, "0.1.0"); err != nil || tag != "0.1.0" {
		t.Fatalf("0.1.0 -> %q, %v", tag, err)
	}
	if tag, err := FindVersionTag(tags, "0.2.0"); err != nil || tag != "v0.2.0" {
		t.Fatalf("0.2.0 -> %q, %v", tag, err)
	}
	if _, err := FindVersionTag(tags, "0.3.0"); !errors.Is(err, ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}
}

func TestSemverTags(t *testing.T) {
	got := SemverTags([]string{"0.1.0", "nightly", "v0.10.0", "0.9.1", "1.2", "vv2.0.0", "02.0.0"})
	var names []string
	for _, v := range got {
		names = append(names, v.Original())
	}
	if diff := cmp.Diff([]string{"v0.10.0", "0.9.1", "0.1.0"}, names); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
}

func TestPorcelainPaths(t *testing.T) {
	out := " M bin/tool\n?? vat.toml\nR  old.txt -> new.txt\nA  \"with space.txt\"\n\n"
	want := []string{"bin/tool", "vat.toml", "new.txt", "with space.txt"}
	if diff := cmp.Diff(want, porcelainPaths(out)); diff != "" {
		t.Fatalf("paths (-want +got):\n%s", diff)
	}
}

func TestHeadBeforeFirstCommit(t *testing.T) {
	g := NewGit()
	if !g.Available() {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	if err := g.Init(context.Background(), dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "vat.toml"), []byte("[package]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wt, err := g.Head(context.Background(), dir)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if wt.Commit != "" || !cmp.Equal([]string{"vat.toml"}, wt.Changes) {
		t.Fatalf("unexpected worktree %+v", wt)
	}
}

func TestGitArchiveRoundTrip(t *testing.T) {
	g := NewGit()
	if !g.Available() {
		t.Skip("git not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := t.TempDir()
	t.Setenv("GIT_AUTHOR_NAME", "vat")
	t.Setenv("GIT_AUTHOR_EMAIL", "vat@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "vat")
	t.Setenv("GIT_COMMITTER_EMAIL", "vat@example.com")
	if err := g.Init(ctx, dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := g.CommitAll(ctx, dir, "initial"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := g.Tag(ctx, dir, "1.0.0"); err != nil {
		t.Fatalf("tag: %v", err)
	}
	tags, err := g.ListTags(ctx, dir)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if diff := cmp.Diff([]string{"1.0.0"}, tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}
	dest := filepath.Join(t.TempDir(), "out.zip")
	if err := g.Archive(ctx, dir, "1.0.0", dest); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Fatalf("expected archive at %s: %v", dest, err)
	}
	wt, err := g.Head(ctx, dir)
	if err != nil || wt.Commit == "" || wt.Dirty() {
		t.Fatalf("head = %+v err=%v", wt, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("changed\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	wt, err = g.Head(ctx, dir)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if diff := cmp.Diff([]string{"file.txt", "new.txt"}, wt.Changes); diff != "" {
		t.Fatalf("changes (-want +got):\n%s", diff)
	}
	if err := g.Archive(ctx, dir, "9.9.9", dest); err == nil {
		t.Fatalf("expected archive of missing tag to fail")
	}
}
