// File: internal/manifest/manifest.go
// Brief: Package manifest model and vat.toml codec.

// Package manifest reads and writes vat.toml, the per-package descriptor that
// names a package, its version, the environment blocks it contributes and the
// commands it can launch.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// FileName is the manifest file expected at the root of every workspace and snapshot.
const FileName = "vat.toml"

// RootPlaceholder is substituted with the package root when composing environments.
const RootPlaceholder = "{root}"

type Package struct {
	Name           string   `toml:"name"`
	Version        string   `toml:"version"`
	VersionMessage string   `toml:"version_message,omitempty"`
	Description    string   `toml:"description,omitempty"`
	Authors        []string `toml:"authors"`
	Repository     string   `toml:"repository,omitempty"`
}

type Dependencies struct {
	Dependencies []string `toml:"dependencies"`
}

// EnvironmentVar is one named environment block.
type EnvironmentVar struct {
	Variable string `toml:"variable"`
	Value    string `toml:"value"`
	Action   Action `toml:"action,omitempty"`
}

// CommandSpec is a launchable entry point. A nil Env means every block applies.
type CommandSpec struct {
	Command string   `toml:"command"`
	Env     []string `toml:"env,omitempty"`
}

type Manifest struct {
	Package      Package                   `toml:"package"`
	Dependencies Dependencies              `toml:"dependencies"`
	Environments map[string]EnvironmentVar `toml:"environment,omitempty"`
	Commands     map[string]CommandSpec    `toml:"command,omitempty"`
}

var (
	ErrInvalid  = errors.New("invalid manifest")
	ErrNotFound = errors.New("manifest not found")
)

// New returns a minimal manifest for a freshly initialised package.
func New(name string) *Manifest {
	return &Manifest{
		Package: Package{
			Name:    name,
			Version: "0.0.1",
			Authors: []string{},
		},
		Dependencies: Dependencies{Dependencies: []string{}},
	}
}

// Parse decodes a manifest document and validates it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the fields the rest of the system relies on.
func (m *Manifest) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: empty document", ErrInvalid)
	}
	name := strings.TrimSpace(m.Package.Name)
	if name == "" {
		return fmt.Errorf("%w: package.name is required", ErrInvalid)
	}
	if !ValidName(name) {
		return fmt.Errorf("%w: package.name %q must match [A-Za-z0-9_-]+", ErrInvalid, name)
	}
	if _, err := m.SemVer(); err != nil {
		return err
	}
	for block, env := range m.Environments {
		if strings.TrimSpace(env.Variable) == "" {
			return fmt.Errorf("%w: environment.%s.variable is required", ErrInvalid, block)
		}
		if !env.Action.Valid() {
			return fmt.Errorf("%w: environment.%s.action %q (expected prepend, append, or define)", ErrInvalid, block, env.Action)
		}
	}
	for name, c := range m.Commands {
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("%w: command.%s.command is required", ErrInvalid, name)
		}
		for _, block := range c.Env {
			if _, ok := m.Environments[block]; !ok {
				return fmt.Errorf("%w: command.%s references unknown environment %q", ErrInvalid, name, block)
			}
		}
	}
	return nil
}

// SemVer parses the package version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(m.Package.Version))
	if err != nil {
		return nil, fmt.Errorf("%w: package.version %q: %v", ErrInvalid, m.Package.Version, err)
	}
	return v, nil
}

// EnvironmentNames returns the declared block names in sorted order.
func (m *Manifest) EnvironmentNames() []string {
	names := make([]string, 0, len(m.Environments))
	for name := range m.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandNames returns the declared command names in sorted order.
func (m *Manifest) CommandNames() []string {
	names := make([]string, 0, len(m.Commands))
	for name := range m.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Marshal encodes the manifest as TOML.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Read loads dir/vat.toml from fsys.
func Read(fsys afero.Fs, dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Write stores m as dir/vat.toml on fsys.
func Write(fsys afero.Fs, dir string, m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Exists reports whether dir contains a manifest.
func Exists(fsys afero.Fs, dir string) bool {
	ok, err := afero.Exists(fsys, filepath.Join(dir, FileName))
	return err == nil && ok
}

// ValidName reports whether name is a legal package name.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
