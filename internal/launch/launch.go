// File: internal/launch/launch.go
// Brief: Spawn package commands with a composed environment.

// Package launch starts a package command as a child process. The composed
// variables are applied to the child only.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/example/vat/internal/environ"
	"github.com/mattn/go-shellwords"
)

var ErrEmptyCommand = errors.New("command is empty")

type Spec struct {
	// Command is the raw command line; it is split with shell word rules.
	Command string
	Args    []string
	Env     map[string]string
	// PathSeparator splits the composed PATH when locating the executable.
	PathSeparator string
	Dir           string
	Detach        bool
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (*Process, error)
}

type Process struct {
	PID      int
	Argv     []string
	Detached bool
	cmd      *exec.Cmd
}

// Wait blocks until an attached process exits and returns its exit code.
func (p *Process) Wait() (int, error) {
	if p.Detached || p.cmd == nil {
		return 0, nil
	}
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Exec spawns real OS processes.
type Exec struct {
	// BaseEnv defaults to os.Environ.
	BaseEnv func() []string
}

func NewExec() *Exec {
	return &Exec{BaseEnv: os.Environ}
}

// Argv splits command and appends args.
func Argv(command string, args []string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false
	argv, err := parser.Parse(strings.TrimSpace(command))
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return append(argv, args...), nil
}

func (e *Exec) Spawn(ctx context.Context, spec Spec) (*Process, error) {
	argv, err := Argv(spec.Command, spec.Args)
	if err != nil {
		return nil, err
	}
	baseEnv := os.Environ
	if e != nil && e.BaseEnv != nil {
		baseEnv = e.BaseEnv
	}
	env := environ.Merge(baseEnv(), spec.Env)
	sep := spec.PathSeparator
	if sep == "" {
		sep = string(os.PathListSeparator)
	}
	pathValue, _ := environ.Lookup(env, "PATH")
	exe, err := LookPath(argv[0], pathValue, sep, spec.Dir)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if spec.Detach {
		// A detached child must outlive ctx.
		cmd = exec.Command(exe, argv[1:]...)
	} else {
		cmd = exec.CommandContext(ctx, exe, argv[1:]...)
	}
	cmd.Env = env
	cmd.Dir = spec.Dir
	if spec.Detach {
		detach(cmd)
	} else {
		cmd.Stdin = spec.Stdin
		cmd.Stdout = spec.Stdout
		cmd.Stderr = spec.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exe, err)
	}
	proc := &Process{PID: cmd.Process.Pid, Argv: argv, Detached: spec.Detach, cmd: cmd}
	if spec.Detach {
		if err := cmd.Process.Release(); err != nil {
			return proc, fmt.Errorf("release %s: %w", exe, err)
		}
	}
	return proc, nil
}

// LookPath finds name in pathValue, a list joined with sep. Names containing a
// path separator are resolved relative to dir.
func LookPath(name, pathValue, sep, dir string) (string, error) {
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		candidate := name
		if !filepath.IsAbs(candidate) && dir != "" {
			candidate = filepath.Join(dir, candidate)
		}
		if found, ok := executable(candidate); ok {
			return found, nil
		}
		return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
	}
	for _, entry := range strings.Split(pathValue, sep) {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if found, ok := executable(filepath.Join(entry, name)); ok {
			return found, nil
		}
	}
	return "", fmt.Errorf("%s: %w in composed PATH", name, exec.ErrNotFound)
}

func executable(path string) (string, bool) {
	candidates := []string{path}
	if runtime.GOOS == "windows" && filepath.Ext(path) == "" {
		exts := os.Getenv("PATHEXT")
		if exts == "" {
			exts = ".com;.exe;.bat;.cmd"
		}
		for _, ext := range strings.Split(strings.ToLower(exts), ";") {
			if ext != "" {
				candidates = append(candidates, path+ext)
			}
		}
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
			continue
		}
		return candidate, true
	}
	return "", false
}
