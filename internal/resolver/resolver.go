// Package resolver turns package references into concrete manifests and root paths.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/reference"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// Strategy names one way of finding a package version.
type Strategy string

const (
	StrategyExact     Strategy = "exact"
	StrategyLatest    Strategy = "latest"
	StrategyWorkspace Strategy = "workspace"
)

// chains lists, per selector kind, the strategies tried in order.
var chains = map[reference.SelectorKind][]Strategy{
	reference.Exact:     {StrategyExact, StrategyLatest, StrategyWorkspace},
	reference.Latest:    {StrategyLatest, StrategyWorkspace},
	reference.Workspace: {StrategyWorkspace},
}

// Chain returns the fallback order used for kind.
func Chain(kind reference.SelectorKind) []Strategy {
	return append([]Strategy(nil), chains[kind]...)
}

// errNotApplicable means a strategy found nothing and the next one should run.
var errNotApplicable = errors.New("strategy not applicable")

type Resolution struct {
	Reference reference.Reference
	Manifest  *manifest.Manifest
	// Root is the directory {root} expands to.
	Root string
	// Version is the published version, empty for workspace resolutions.
	Version string
	Via     Strategy
}

// Published reports whether the resolution points at an immutable snapshot.
func (r *Resolution) Published() bool {
	return r.Via != StrategyWorkspace
}

type Resolver struct {
	repoRoot string
	fs       afero.Fs
	log      logr.Logger
}

type Option func(*Resolver)

func WithFs(fs afero.Fs) Option {
	return func(r *Resolver) {
		if fs != nil {
			r.fs = fs
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

func New(repoRoot string, opts ...Option) *Resolver {
	r := &Resolver{
		repoRoot: repoRoot,
		fs:       afero.NewOsFs(),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadCatalog reads the repository catalog.
func (r *Resolver) LoadCatalog() (*catalog.Catalog, error) {
	return catalog.Load(catalog.PathIn(r.repoRoot))
}

// Resolve loads the catalog once and resolves ref against it.
func (r *Resolver) Resolve(ctx context.Context, ref reference.Reference) (*Resolution, error) {
	res, err := r.ResolveAll(ctx, []reference.Reference{ref})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// ResolveAll resolves refs in order against a single catalog snapshot.
func (r *Resolver) ResolveAll(ctx context.Context, refs []reference.Reference) ([]*Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cat, err := r.LoadCatalog()
	if err != nil {
		return nil, err
	}
	out := make([]*Resolution, 0, len(refs))
	for _, ref := range refs {
		res, err := r.ResolveIn(cat, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// ResolveIn resolves ref against an already loaded catalog.
func (r *Resolver) ResolveIn(cat *catalog.Catalog, ref reference.Reference) (*Resolution, error) {
	entry, err := cat.Get(ref.Name)
	if err != nil {
		return nil, err
	}
	chain := chains[ref.Selector.Kind]
	for i, strategy := range chain {
		res, err := r.attempt(cat, entry, ref, strategy)
		if errors.Is(err, errNotApplicable) {
			if i+1 < len(chain) {
				r.log.V(1).Info("falling back", "package", ref.Name, "from", string(strategy), "to", string(chain[i+1]))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s has no published version or workspace", catalog.ErrPackageNotFound, ref.Name)
}

func (r *Resolver) attempt(cat *catalog.Catalog, entry *catalog.Entry, ref reference.Reference, strategy Strategy) (*Resolution, error) {
	switch strategy {
	case StrategyExact:
		if ref.Selector.Version == nil {
			return nil, errNotApplicable
		}
		version := ref.Selector.Version.String()
		if !cat.HasVersion(ref.Name, version) {
			return nil, errNotApplicable
		}
		return r.published(ref, version, strategy)
	case StrategyLatest:
		version, err := cat.Latest(ref.Name)
		if err != nil {
			return nil, err
		}
		if version == "" {
			return nil, errNotApplicable
		}
		return r.published(ref, version, strategy)
	case StrategyWorkspace:
		if entry.MainBranchPath == "" {
			return nil, errNotApplicable
		}
		m, err := manifest.Read(r.fs, entry.MainBranchPath)
		if err != nil {
			return nil, fmt.Errorf("read workspace of %s: %w", ref.Name, err)
		}
		return &Resolution{Reference: ref, Manifest: m, Root: entry.MainBranchPath, Via: strategy}, nil
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
}

func (r *Resolver) published(ref reference.Reference, version string, via Strategy) (*Resolution, error) {
	root := catalog.StoragePath(r.repoRoot, ref.Name, version)
	m, err := manifest.Read(r.fs, root)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s %s: %w", ref.Name, version, err)
	}
	return &Resolution{Reference: ref, Manifest: m, Root: root, Version: version, Via: via}, nil
}
