package reference

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		name    string
		kind    SelectorKind
		version string
		envs    []string
	}{
		{in: "foo", name: "foo", kind: Latest},
		{in: "foo/latest", name: "foo", kind: Latest},
		{in: "foo/", name: "foo", kind: Latest},
		{in: "foo/1.2.3", name: "foo", kind: Exact, version: "1.2.3"},
		{in: "foo/1.2.3-rc.1", name: "foo", kind: Exact, version: "1.2.3-rc.1"},
		{in: "foo/1", name: "foo", kind: Workspace},
		{in: "foo/1.2", name: "foo", kind: Workspace},
		{in: "foo/v1.2.3", name: "foo", kind: Workspace},
		{in: "foo/01.2.3", name: "foo", kind: Workspace},
		{in: "foo/LATEST", name: "foo", kind: Workspace},
		{in: "foo/1.2.3[a,b]", name: "foo", kind: Exact, version: "1.2.3", envs: []string{"a", "b"}},
		{in: "foo[x]", name: "foo", kind: Latest, envs: []string{"x"}},
		{in: "foo[ x , ,y ]", name: "foo", kind: Latest, envs: []string{"x", "y"}},
		{in: "foo[]", name: "foo", kind: Latest, envs: []string{}},
		{in: "foo/main", name: "foo", kind: Workspace},
		{in: "foo/garbage[a]", name: "foo", kind: Workspace, envs: []string{"a"}},
		{in: "my_pkg-2", name: "my_pkg-2", kind: Latest},
	}
	for _, tc := range cases {
		ref, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if ref.Name != tc.name {
			t.Fatalf("Parse(%q).Name = %q, want %q", tc.in, ref.Name, tc.name)
		}
		if ref.Selector.Kind != tc.kind {
			t.Fatalf("Parse(%q).Selector.Kind = %s, want %s", tc.in, ref.Selector.Kind, tc.kind)
		}
		if tc.kind == Exact && ref.Selector.Version.String() != tc.version {
			t.Fatalf("Parse(%q) version = %s, want %s", tc.in, ref.Selector.Version, tc.version)
		}
		if diff := cmp.Diff(tc.envs, ref.Envs); diff != "" {
			t.Fatalf("Parse(%q) envs (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestParseNoBracketsLeavesEnvsNil(t *testing.T) {
	ref := MustParse("foo/1.0.0")
	if ref.Envs != nil {
		t.Fatalf("expected nil envs, got %#v", ref.Envs)
	}
	if MustParse("foo[]").Envs == nil {
		t.Fatalf("expected empty non-nil envs for explicit empty list")
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"/1.0.0",
		"[x]",
		"foo]x[",
		"foo]",
		"foo[a",
		"foo bar",
		"foo[a]tail",
		"foo[a[b]]",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrParse) {
			t.Fatalf("Parse(%q): expected ErrParse, got %v", in, err)
		}
	}
}

func TestStringIsCanonical(t *testing.T) {
	cases := map[string]string{
		"foo":             "foo",
		"foo/latest":      "foo",
		"foo/1.2.0[a, b]": "foo/1.2.0[a,b]",
		"foo/main":        "foo/main",
		"foo[]":           "foo[]",
	}
	for in, want := range cases {
		if got := MustParse(in).String(); got != want {
			t.Fatalf("String(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseAllStopsAtFirstError(t *testing.T) {
	if _, err := ParseAll([]string{"a", "b/1.0.0", "]"}); !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	refs, err := ParseAll([]string{"a", "b/1.0.0"})
	if err != nil || len(refs) != 2 {
		t.Fatalf("ParseAll = %v, %v", refs, err)
	}
}
