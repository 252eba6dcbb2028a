package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/reference"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

type fixture struct {
	repo      string
	workspace string
	resolver  *Resolver
}

func newFixture(t *testing.T, published ...string) fixture {
	t.Helper()
	base := t.TempDir()
	repo := filepath.Join(base, "repo")
	ws := filepath.Join(base, "ws", "foo")
	fs := afero.NewOsFs()

	live := manifest.New("foo")
	live.Package.Version = "9.0.0-dev"
	if err := manifest.Write(fs, ws, live); err != nil {
		t.Fatalf("write workspace manifest: %v", err)
	}

	cat := catalog.New()
	if _, err := cat.Link("foo", ws, ""); err != nil {
		t.Fatalf("link: %v", err)
	}
	for _, v := range published {
		m := manifest.New("foo")
		m.Package.Version = v
		if err := manifest.Write(fs, catalog.StoragePath(repo, "foo", v), m); err != nil {
			t.Fatalf("write snapshot %s: %v", v, err)
		}
		if err := cat.AddVersion("foo", v, "", time.Now()); err != nil {
			t.Fatalf("add %s: %v", v, err)
		}
	}
	if err := cat.Save(catalog.PathIn(repo)); err != nil {
		t.Fatalf("save catalog: %v", err)
	}
	return fixture{repo: repo, workspace: ws, resolver: New(repo)}
}

func resolve(t *testing.T, f fixture, ref string) *Resolution {
	t.Helper()
	res, err := f.resolver.Resolve(context.Background(), reference.MustParse(ref))
	if err != nil {
		t.Fatalf("resolve %s: %v", ref, err)
	}
	return res
}

func TestLatestPicksHighestSemver(t *testing.T) {
	f := newFixture(t, "0.1.0", "0.2.0", "0.1.5")
	res := resolve(t, f, "foo")
	if res.Version != "0.2.0" || res.Via != StrategyLatest {
		t.Fatalf("got version=%s via=%s", res.Version, res.Via)
	}
	if res.Root != filepath.Join(f.repo, "foo", "0.2.0") {
		t.Fatalf("unexpected root %s", res.Root)
	}
	if res.Manifest.Package.Version != "0.2.0" {
		t.Fatalf("expected snapshot manifest, got %s", res.Manifest.Package.Version)
	}
}

func TestExactPublished(t *testing.T) {
	f := newFixture(t, "0.1.0", "0.2.0", "0.1.5")
	res := resolve(t, f, "foo/0.1.5")
	if res.Version != "0.1.5" || res.Via != StrategyExact || !res.Published() {
		t.Fatalf("got version=%s via=%s", res.Version, res.Via)
	}
}

func TestExactMissingFallsBackToLatest(t *testing.T) {
	f := newFixture(t, "0.1.0", "0.2.0", "0.1.5")
	res := resolve(t, f, "foo/9.9.9")
	if res.Version != "0.2.0" || res.Via != StrategyLatest {
		t.Fatalf("got version=%s via=%s", res.Version, res.Via)
	}
}

func TestUnpublishedFallsBackToWorkspace(t *testing.T) {
	f := newFixture(t)
	for _, ref := range []string{"foo", "foo/1.0.0", "foo/main"} {
		res := resolve(t, f, ref)
		if res.Via != StrategyWorkspace || res.Root != f.workspace || res.Published() {
			t.Fatalf("%s: got via=%s root=%s", ref, res.Via, res.Root)
		}
		if res.Manifest.Package.Version != "9.0.0-dev" {
			t.Fatalf("%s: expected live manifest, got %s", ref, res.Manifest.Package.Version)
		}
	}
}

func TestWorkspaceSelectorIgnoresPublished(t *testing.T) {
	f := newFixture(t, "0.1.0")
	res := resolve(t, f, "foo/main")
	if res.Via != StrategyWorkspace || res.Version != "" {
		t.Fatalf("got via=%s version=%s", res.Via, res.Version)
	}
}

func TestUnknownPackage(t *testing.T) {
	f := newFixture(t, "0.1.0")
	_, err := f.resolver.Resolve(context.Background(), reference.MustParse("bar"))
	if !errors.Is(err, catalog.ErrPackageNotFound) {
		t.Fatalf("expected ErrPackageNotFound, got %v", err)
	}
}

func TestResolveAllKeepsOrder(t *testing.T) {
	f := newFixture(t, "0.1.0", "0.2.0")
	refs := []reference.Reference{reference.MustParse("foo/0.1.0"), reference.MustParse("foo")}
	res, err := f.resolver.ResolveAll(context.Background(), refs)
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	got := []string{res[0].Version, res[1].Version}
	if diff := cmp.Diff([]string{"0.1.0", "0.2.0"}, got); diff != "" {
		t.Fatalf("versions (-want +got):\n%s", diff)
	}
}

func TestChainOrder(t *testing.T) {
	want := []Strategy{StrategyExact, StrategyLatest, StrategyWorkspace}
	if diff := cmp.Diff(want, Chain(reference.Exact)); diff != "" {
		t.Fatalf("exact chain (-want +got):\n%s", diff)
	}
}
