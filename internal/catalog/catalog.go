// File: internal/catalog/catalog.go
// Brief: Repository catalog: published versions and workspace bindings per package.

package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/moby/sys/atomicwriter"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the catalog document kept at the repository root.
const FileName = "vat.repository.toml"

var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrVersionConflict    = errors.New("version already published")
	ErrWorkspaceMismatch  = errors.New("a different package exists with the same name")
	ErrCorrupt            = errors.New("catalog is corrupt")
	ErrVersionsPublished  = errors.New("package has published versions")
	ErrInvalidVersion     = errors.New("invalid version")
	ErrVersionNotFound    = errors.New("version not published")
	errNilCatalogReceiver = errors.New("catalog is nil")
)

type VersionInfo struct {
	PublishedOn    time.Time `toml:"published_on"`
	VersionComment string    `toml:"version_comment,omitempty"`
}

// Entry is everything the repository knows about one package.
type Entry struct {
	Versions       map[string]VersionInfo `toml:"versions"`
	MainBranchPath string                 `toml:"main_branch_path"`
	GitURL         string                 `toml:"git_url,omitempty"`
}

type Catalog struct {
	Packages map[string]*Entry `toml:"packages"`
}

func New() *Catalog {
	return &Catalog{Packages: map[string]*Entry{}}
}

// PathIn returns the catalog location inside repoRoot.
func PathIn(repoRoot string) string {
	return filepath.Join(repoRoot, FileName)
}

// Load reads the catalog at path. A missing file is an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	c := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.Packages == nil {
		c.Packages = map[string]*Entry{}
	}
	for name, entry := range c.Packages {
		if entry == nil {
			c.Packages[name] = &Entry{Versions: map[string]VersionInfo{}}
			continue
		}
		if entry.Versions == nil {
			entry.Versions = map[string]VersionInfo{}
		}
		for v := range entry.Versions {
			if _, err := semver.StrictNewVersion(v); err != nil {
				return nil, fmt.Errorf("%w: package %s has invalid version %q", ErrCorrupt, name, v)
			}
		}
	}
	return c, nil
}

// Marshal encodes the catalog as TOML.
func (c *Catalog) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes the catalog atomically; readers see either the old or the new document.
func (c *Catalog) Save(path string) error {
	if c == nil {
		return errNilCatalogReceiver
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

// Get returns the entry for name or ErrPackageNotFound.
func (c *Catalog) Get(name string) (*Entry, error) {
	entry, ok := c.Packages[name]
	if !ok || entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	return entry, nil
}

func (c *Catalog) Has(name string) bool {
	_, ok := c.Packages[name]
	return ok
}

// Names returns registered package names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Link binds name to a workspace. Re-linking the same workspace is a no-op
// that may refresh the git URL; a different workspace is ErrWorkspaceMismatch.
func (c *Catalog) Link(name, workspace, gitURL string) (*Entry, error) {
	if c == nil {
		return nil, errNilCatalogReceiver
	}
	workspace = filepath.Clean(workspace)
	if entry, ok := c.Packages[name]; ok && entry != nil {
		if !samePath(entry.MainBranchPath, workspace) {
			return nil, fmt.Errorf("%w: %s is bound to %s, not %s", ErrWorkspaceMismatch, name, entry.MainBranchPath, workspace)
		}
		if strings.TrimSpace(gitURL) != "" {
			entry.GitURL = gitURL
		}
		return entry, nil
	}
	entry := &Entry{
		Versions:       map[string]VersionInfo{},
		MainBranchPath: workspace,
		GitURL:         strings.TrimSpace(gitURL),
	}
	if c.Packages == nil {
		c.Packages = map[string]*Entry{}
	}
	c.Packages[name] = entry
	return entry, nil
}

// Unlink removes a package that has never been published.
func (c *Catalog) Unlink(name string) error {
	entry, err := c.Get(name)
	if err != nil {
		return err
	}
	if len(entry.Versions) > 0 {
		return fmt.Errorf("%w: %s has %d published version(s) and cannot be removed", ErrVersionsPublished, name, len(entry.Versions))
	}
	delete(c.Packages, name)
	return nil
}

// AddVersion records a published version. Existing versions are never overwritten.
func (c *Catalog) AddVersion(name, version, comment string, publishedOn time.Time) error {
	entry, err := c.Get(name)
	if err != nil {
		return err
	}
	key, err := NormalizeVersion(version)
	if err != nil {
		return err
	}
	if _, exists := entry.Versions[key]; exists {
		return fmt.Errorf("%w: %s %s", ErrVersionConflict, name, key)
	}
	if entry.Versions == nil {
		entry.Versions = map[string]VersionInfo{}
	}
	entry.Versions[key] = VersionInfo{
		PublishedOn:    publishedOn.UTC().Truncate(time.Second),
		VersionComment: strings.TrimSpace(comment),
	}
	return nil
}

// HasVersion reports whether name has version published.
func (c *Catalog) HasVersion(name, version string) bool {
	entry, ok := c.Packages[name]
	if !ok || entry == nil {
		return false
	}
	key, err := NormalizeVersion(version)
	if err != nil {
		return false
	}
	_, ok = entry.Versions[key]
	return ok
}

// Version returns the record for one published version.
func (c *Catalog) Version(name, version string) (VersionInfo, error) {
	entry, err := c.Get(name)
	if err != nil {
		return VersionInfo{}, err
	}
	key, err := NormalizeVersion(version)
	if err != nil {
		return VersionInfo{}, err
	}
	info, ok := entry.Versions[key]
	if !ok {
		return VersionInfo{}, fmt.Errorf("%w: %s %s", ErrVersionNotFound, name, key)
	}
	return info, nil
}

// Latest returns the highest published version of name, or "" when none is published.
func (c *Catalog) Latest(name string) (string, error) {
	versions, err := c.SortedVersions(name)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0], nil
}

// SortedVersions lists published versions of name, highest first.
func (c *Catalog) SortedVersions(name string) ([]string, error) {
	entry, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	parsed := make([]*semver.Version, 0, len(entry.Versions))
	for raw := range entry.Versions {
		v, err := semver.StrictNewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: package %s has invalid version %q", ErrCorrupt, name, raw)
		}
		parsed = append(parsed, v)
	}
	sort.Sort(sort.Reverse(semver.Collection(parsed)))
	out := make([]string, 0, len(parsed))
	for _, v := range parsed {
		out = append(out, v.Original())
	}
	return out, nil
}

// NormalizeVersion returns the canonical catalog key for version.
func NormalizeVersion(version string) (string, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(version))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidVersion, version, err)
	}
	return v.String(), nil
}

// StoragePath returns where the snapshot of name@version lives under repoRoot.
func StoragePath(repoRoot, name, version string) string {
	return filepath.Join(repoRoot, name, version)
}

func samePath(a, b string) bool {
	a = filepath.Clean(a)
	b = filepath.Clean(b)
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
