package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/vat/internal/stacks"
	"github.com/google/go-cmp/cmp"
)

func TestStackAddListRemove(t *testing.T) {
	env := newTestEnv(t)

	if _, _, err := env.execute(t, "stack", "add", "comp", "nuke-tools[base]", "nuke", "--append", "ocio"); err != nil {
		t.Fatalf("add comp: %v", err)
	}
	if _, _, err := env.execute(t, "stack", "add", "anim", "maya-tools/2.0.0", "maya"); err != nil {
		t.Fatalf("add anim: %v", err)
	}
	_, _, err := env.execute(t, "stack", "add", "comp", "nuke-tools", "nuke")
	if !errors.Is(err, stacks.ErrExists) {
		t.Fatalf("expected duplicate to fail, got %v", err)
	}

	out, _, err := env.execute(t, "stack", "list", "--format", "json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []stacks.Named
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	want := []stacks.Named{
		{Name: "comp", Stack: stacks.Stack{Ref: "nuke-tools[base]", Command: "nuke", Append: []string{"ocio"}}},
		{Name: "anim", Stack: stacks.Stack{Ref: "maya-tools/2.0.0", Command: "maya"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stacks mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := env.execute(t, "stack", "remove", "comp"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, _, err = env.execute(t, "stack", "run", "comp")
	if code := exitCode(err); code != exitNotFound {
		t.Fatalf("exit code = %d, want %d (%v)", code, exitNotFound, err)
	}
}

func TestStackAddRejectsBadReference(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.execute(t, "stack", "add", "broken", "tools[base", "run")
	if code := exitCode(err); code != exitUsage {
		t.Fatalf("exit code = %d, want %d (%v)", code, exitUsage, err)
	}
}

func TestStackRunLaunches(t *testing.T) {
	requireShell(t)
	env := newTestEnv(t)
	ws := linkToolkit(t, env)
	if _, _, err := env.execute(t, "stack", "add", "here", "toolkit", "where"); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, _, err := env.execute(t, "stack", "run", "here", "--history=false")
	if err != nil {
		t.Fatalf("stack run: %v", err)
	}
	if out != ws {
		t.Fatalf("stack run output %q, want %q", out, ws)
	}
}
