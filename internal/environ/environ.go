// File: internal/environ/environ.go
// Brief: Layered composition of package environment blocks into a variable map.

// Package environ composes the environment blocks of one or more resolved
// packages into a map of variable values. The result is pure data: nothing
// here touches the environment of the running process.
package environ

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/example/vat/internal/manifest"
	"github.com/spf13/afero"
)

// DefaultSeparator joins Append and Prepend values.
const DefaultSeparator = ";"

var (
	ErrInvalidEnvironmentPath = errors.New("environment path does not exist")
	ErrUnknownEnvironment     = errors.New("unknown environment block")
)

// Layer is one package's contribution. Envs nil means every block.
type Layer struct {
	Manifest *manifest.Manifest
	Root     string
	Envs     []string
}

// Applied records one block in the order it was applied.
type Applied struct {
	Package  string          `json:"package" yaml:"package"`
	Block    string          `json:"block" yaml:"block"`
	Variable string          `json:"variable" yaml:"variable"`
	Action   manifest.Action `json:"action" yaml:"action"`
	Value    string          `json:"value" yaml:"value"`
}

type Result struct {
	Vars    map[string]string `json:"vars" yaml:"vars"`
	Applied []Applied         `json:"applied" yaml:"applied"`
}

// Names returns the composed variable names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Vars))
	for name := range r.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Composer struct {
	sep    string
	lookup func(string) (string, bool)
	fs     afero.Fs
}

type Option func(*Composer)

func WithSeparator(sep string) Option {
	return func(c *Composer) {
		if sep != "" {
			c.sep = sep
		}
	}
}

// WithLookup replaces the base environment the composition starts from.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(c *Composer) {
		if lookup != nil {
			c.lookup = lookup
		}
	}
}

// WithFs sets the filesystem used to validate PATH entries.
func WithFs(fs afero.Fs) Option {
	return func(c *Composer) {
		if fs != nil {
			c.fs = fs
		}
	}
}

func New(opts ...Option) *Composer {
	c := &Composer{
		sep:    DefaultSeparator,
		lookup: os.LookupEnv,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MapLookup adapts a fixed map to the lookup signature.
func MapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// Compose applies every layer in order. Any failing block aborts the whole call.
func (c *Composer) Compose(layers []Layer) (*Result, error) {
	res := &Result{Vars: map[string]string{}}
	for _, layer := range layers {
		if layer.Manifest == nil {
			return nil, errors.New("compose: layer without manifest")
		}
		blocks, err := selectBlocks(layer)
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			env := layer.Manifest.Environments[block]
			value := strings.ReplaceAll(env.Value, manifest.RootPlaceholder, layer.Root)
			if isPathVariable(env.Variable) {
				if err := c.checkPaths(layer.Manifest.Package.Name, block, value); err != nil {
					return nil, err
				}
			}
			key := c.key(res.Vars, env.Variable)
			current, seen := res.Vars[key]
			if !seen {
				current, _ = c.lookup(key)
			}
			action := env.Action.Effective()
			res.Vars[key] = action.Apply(current, value, c.sep)
			res.Applied = append(res.Applied, Applied{
				Package:  layer.Manifest.Package.Name,
				Block:    block,
				Variable: key,
				Action:   action,
				Value:    value,
			})
		}
	}
	return res, nil
}

func selectBlocks(layer Layer) ([]string, error) {
	if layer.Envs == nil {
		return layer.Manifest.EnvironmentNames(), nil
	}
	blocks := make([]string, 0, len(layer.Envs))
	seen := map[string]struct{}{}
	for _, name := range layer.Envs {
		if _, ok := layer.Manifest.Environments[name]; !ok {
			return nil, fmt.Errorf("%w: %s has no environment %q (declared: %s)", ErrUnknownEnvironment,
				layer.Manifest.Package.Name, name, strings.Join(layer.Manifest.EnvironmentNames(), ", "))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		blocks = append(blocks, name)
	}
	return blocks, nil
}

func (c *Composer) checkPaths(pkg, block, value string) error {
	for _, entry := range strings.Split(value, c.sep) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ok, err := afero.Exists(c.fs, entry)
		if err != nil {
			return fmt.Errorf("check %s: %w", entry, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s (package %s, block %s)", ErrInvalidEnvironmentPath, entry, pkg, block)
		}
	}
	return nil
}

// key reuses an existing spelling of name on case-insensitive platforms.
func (c *Composer) key(vars map[string]string, name string) string {
	if runtime.GOOS != "windows" {
		return name
	}
	for existing := range vars {
		if strings.EqualFold(existing, name) {
			return existing
		}
	}
	return name
}

// isPathVariable matches PATH exactly, except on windows where names fold case.
func isPathVariable(name string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(name, "PATH")
	}
	return name == "PATH"
}

// Merge overlays vars onto a KEY=VALUE list such as os.Environ(). Existing
// entries keep their position; new variables are appended in sorted order.
func Merge(base []string, vars map[string]string) []string {
	out := make([]string, 0, len(base)+len(vars))
	used := make(map[string]bool, len(vars))
	for _, kv := range base {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			out = append(out, kv)
			continue
		}
		if match, found := lookupKey(vars, name); found {
			if !used[match] {
				out = append(out, name+"="+vars[match])
				used[match] = true
			}
			continue
		}
		out = append(out, kv)
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		if !used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, name+"="+vars[name])
	}
	return out
}

func lookupKey(vars map[string]string, name string) (string, bool) {
	if _, ok := vars[name]; ok {
		return name, true
	}
	if runtime.GOOS == "windows" {
		for key := range vars {
			if strings.EqualFold(key, name) {
				return key, true
			}
		}
	}
	return "", false
}

// Lookup returns the value of name in a KEY=VALUE list.
func Lookup(env []string, name string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		key, value, ok := strings.Cut(env[i], "=")
		if !ok {
			continue
		}
		if key == name || (runtime.GOOS == "windows" && strings.EqualFold(key, name)) {
			return value, true
		}
	}
	return "", false
}
