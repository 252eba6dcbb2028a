// Package stacks keeps named launch shortcuts: a package reference, the
// command to run and the packages appended to it.
package stacks

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/vat/internal/reference"
	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v3"
)

const FileName = "stacks.yaml"

var (
	ErrNotFound = errors.New("stack not found")
	ErrExists   = errors.New("stack already exists")
)

type Stack struct {
	Ref     string   `yaml:"ref" json:"ref"`
	Command string   `yaml:"command" json:"command"`
	Append  []string `yaml:"append,omitempty" json:"append,omitempty"`
	Icon    string   `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// Named pairs a stack with its name for ordered listings.
type Named struct {
	Name  string `yaml:"name" json:"name"`
	Stack `yaml:",inline"`
}

type File struct {
	Order  []string         `yaml:"order"`
	Stacks map[string]Stack `yaml:"stacks"`
}

func Load(path string) (*File, error) {
	f := &File{Stacks: map[string]Stack{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read stacks: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.Stacks == nil {
		f.Stacks = map[string]Stack{}
	}
	f.normalizeOrder()
	return f, nil
}

// normalizeOrder drops unknown names and appends stacks missing from Order.
func (f *File) normalizeOrder() {
	seen := map[string]bool{}
	order := make([]string, 0, len(f.Stacks))
	for _, name := range f.Order {
		if _, ok := f.Stacks[name]; ok && !seen[name] {
			order = append(order, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range f.Stacks {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	f.Order = append(order, rest...)
}

func (f *File) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode stacks: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicwriter.WriteFile(path, buf.Bytes(), 0o644)
}

// Add validates and stores a stack. Replacing requires replace=true.
func (f *File) Add(name string, s Stack, replace bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("stack name is required")
	}
	if _, err := reference.Parse(s.Ref); err != nil {
		return err
	}
	if _, err := reference.ParseAll(s.Append); err != nil {
		return err
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("stack command is required")
	}
	if _, exists := f.Stacks[name]; exists {
		if !replace {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
	} else {
		f.Order = append(f.Order, name)
	}
	f.Stacks[name] = s
	return nil
}

func (f *File) Remove(name string) error {
	if _, ok := f.Stacks[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(f.Stacks, name)
	order := f.Order[:0]
	for _, n := range f.Order {
		if n != name {
			order = append(order, n)
		}
	}
	f.Order = order
	return nil
}

func (f *File) Get(name string) (Stack, error) {
	s, ok := f.Stacks[name]
	if !ok {
		return Stack{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}

// List returns stacks in display order.
func (f *File) List() []Named {
	out := make([]Named, 0, len(f.Order))
	for _, name := range f.Order {
		if s, ok := f.Stacks[name]; ok {
			out = append(out, Named{Name: name, Stack: s})
		}
	}
	return out
}
