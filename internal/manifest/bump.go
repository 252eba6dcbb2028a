package manifest

import (
	"fmt"
	"strings"
)

// BumpKind selects which part of the version Bump increments.
type BumpKind string

const (
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

// Bump increments the package version in place and returns the previous and new values.
// Lower components reset to zero and any prerelease or metadata is dropped.
func (m *Manifest) Bump(kind BumpKind) (string, string, error) {
	current, err := m.SemVer()
	if err != nil {
		return "", "", err
	}
	next := *current
	switch BumpKind(strings.ToLower(string(kind))) {
	case BumpMajor:
		next = current.IncMajor()
	case BumpMinor:
		next = current.IncMinor()
	case BumpPatch:
		next = current.IncPatch()
	default:
		return "", "", fmt.Errorf("unknown bump %q (expected major, minor, or patch)", kind)
	}
	if next.Prerelease() != "" || next.Metadata() != "" {
		// IncPatch on a prerelease keeps the same patch number.
		stripped, err := next.SetPrerelease("")
		if err == nil {
			next = stripped
		}
		stripped, err = next.SetMetadata("")
		if err == nil {
			next = stripped
		}
	}
	previous := m.Package.Version
	m.Package.Version = next.String()
	return previous, m.Package.Version, nil
}
