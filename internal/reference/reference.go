// Package reference parses package references of the form
//
//	NAME[/SELECTOR][[ENV,ENV...]]
//
// where SELECTOR is "latest" or a semantic version and the bracketed suffix
// restricts which environment blocks of the package apply.
package reference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/example/vat/internal/manifest"
)

var ErrParse = errors.New("invalid package reference")

type SelectorKind int

const (
	Latest SelectorKind = iota
	Exact
	Workspace
)

func (k SelectorKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Workspace:
		return "workspace"
	default:
		return "latest"
	}
}

// Selector picks which version of a package a reference means.
// Version is set only for Exact; Raw keeps the text the user typed.
type Selector struct {
	Kind    SelectorKind
	Version *semver.Version
	Raw     string
}

type Reference struct {
	Name     string
	Selector Selector
	// Envs is nil when no bracketed list was given.
	Envs []string
}

// Parse converts s into a Reference. An unparseable selector is not an error:
// it selects the live workspace.
func Parse(s string) (Reference, error) {
	input := strings.TrimSpace(s)
	if input == "" {
		return Reference{}, fmt.Errorf("%w: empty reference", ErrParse)
	}

	body := input
	var envs []string
	open := strings.IndexByte(input, '[')
	closeIdx := strings.IndexByte(input, ']')
	switch {
	case open < 0 && closeIdx >= 0:
		return Reference{}, fmt.Errorf("%w: %q has ']' without '['", ErrParse, s)
	case open >= 0 && closeIdx < 0:
		return Reference{}, fmt.Errorf("%w: %q has unterminated '['", ErrParse, s)
	case open >= 0:
		if closeIdx < open {
			return Reference{}, fmt.Errorf("%w: %q closes ']' before opening '['", ErrParse, s)
		}
		if rest := strings.TrimSpace(input[closeIdx+1:]); rest != "" {
			return Reference{}, fmt.Errorf("%w: %q has trailing text %q after ']'", ErrParse, s, rest)
		}
		if strings.ContainsAny(input[open+1:closeIdx], "[]") {
			return Reference{}, fmt.Errorf("%w: %q has nested brackets", ErrParse, s)
		}
		envs = splitEnvs(input[open+1 : closeIdx])
		body = input[:open]
	}

	name, rawSelector, hasSelector := strings.Cut(body, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return Reference{}, fmt.Errorf("%w: %q is missing a package name", ErrParse, s)
	}
	if !manifest.ValidName(name) {
		return Reference{}, fmt.Errorf("%w: package name %q must match [A-Za-z0-9_-]+", ErrParse, name)
	}

	ref := Reference{Name: name, Envs: envs}
	if hasSelector {
		ref.Selector = parseSelector(rawSelector)
	}
	return ref, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Reference {
	ref, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ref
}

func parseSelector(raw string) Selector {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "latest" {
		return Selector{Kind: Latest, Raw: raw}
	}
	// Strict: "1.2", "v1.2.3" and "01.2.3" are not versions and select the workspace.
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return Selector{Kind: Workspace, Raw: raw}
	}
	return Selector{Kind: Exact, Version: v, Raw: raw}
}

// splitEnvs returns a non-nil slice so that "name[]" stays distinguishable from "name".
func splitEnvs(list string) []string {
	out := []string{}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// String renders the canonical form of r.
func (r Reference) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	switch r.Selector.Kind {
	case Exact:
		b.WriteString("/")
		b.WriteString(r.Selector.Version.String())
	case Workspace:
		b.WriteString("/")
		b.WriteString(r.Selector.Raw)
	}
	if r.Envs != nil {
		b.WriteString("[")
		b.WriteString(strings.Join(r.Envs, ","))
		b.WriteString("]")
	}
	return b.String()
}

// ParseAll parses every reference in refs, stopping at the first failure.
func ParseAll(refs []string) ([]Reference, error) {
	out := make([]Reference, 0, len(refs))
	for _, raw := range refs {
		ref, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}
