// File: cmd/vat/run.go
// Brief: CLI command wiring and implementation for 'run'.

package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/envcatalog"
	"github.com/example/vat/internal/history"
	"github.com/example/vat/internal/launch"
	"github.com/example/vat/internal/resolver"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errCommandNotFound = errors.New("command not declared")

type launchRequest struct {
	Ref      string
	Command  string
	Appended []string
	Args     []string
	Dir      string
	Detach   bool
}

// packageIdentity is the value exported as VAT_PACKAGE.
func packageIdentity(res *resolver.Resolution) string {
	if res.Published() {
		return res.Manifest.Package.Name + "/" + res.Version
	}
	return res.Manifest.Package.Name
}

func launchPackage(cmd *cobra.Command, a *app, req launchRequest) error {
	ctx := cmd.Context()
	resolutions, err := resolveRefs(ctx, a, append([]string{req.Ref}, req.Appended...))
	if err != nil {
		return err
	}
	primary := resolutions[0]
	spec, ok := primary.Manifest.Commands[req.Command]
	if !ok {
		return fmt.Errorf("%w: %s has no command %q (declared: %s)", errCommandNotFound,
			primary.Manifest.Package.Name, req.Command, strings.Join(primary.Manifest.CommandNames(), ", "))
	}
	result, err := composeLayers(a, resolutions, spec.Env)
	if err != nil {
		return err
	}

	launchID := uuid.NewString()
	env := maps.Clone(result.Vars)
	env[envcatalog.PackageVar] = packageIdentity(primary)
	env[envcatalog.PackageRootVar] = primary.Root
	env[envcatalog.LaunchIDVar] = launchID

	proc, err := a.spawner.Spawn(ctx, launch.Spec{
		Command:       spec.Command,
		Args:          req.Args,
		Env:           env,
		PathSeparator: a.opts.Separator,
		Dir:           req.Dir,
		Detach:        req.Detach,
		Stdin:         cmd.InOrStdin(),
		Stdout:        cmd.OutOrStdout(),
		Stderr:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.log.V(1).Info("launched", "id", launchID, "pid", proc.PID, "argv", proc.Argv, "detached", proc.Detached)

	store := a.openHistory()
	if store != nil {
		defer store.Close()
		_, err := store.Record(ctx, history.Entry{
			ID:        launchID,
			Package:   primary.Manifest.Package.Name,
			Version:   primary.Version,
			Via:       string(primary.Via),
			Command:   req.Command,
			Argv:      proc.Argv,
			Appended:  req.Appended,
			PID:       proc.PID,
			Detached:  proc.Detached,
			StartedAt: time.Now(),
		})
		if err != nil {
			a.log.Error(err, "record launch")
			store = nil
		}
	}

	if proc.Detached {
		fmt.Fprintf(cmd.ErrOrStderr(), "Started %s (pid %d)\n", req.Command, proc.PID)
		return nil
	}
	code, waitErr := proc.Wait()
	if store != nil {
		// ctx may already be cancelled by the signal that stopped the child.
		if err := store.Finish(context.WithoutCancel(ctx), launchID, code, time.Now()); err != nil {
			a.log.Error(err, "record exit code")
		}
	}
	if waitErr != nil {
		return waitErr
	}
	if code != 0 {
		return errExitCode{code: code}
	}
	return nil
}

// openHistory returns nil when history is disabled or unavailable.
func (a *app) openHistory() *history.Store {
	if !a.opts.History {
		return nil
	}
	store, err := history.Open(a.opts.HistoryPath())
	if err != nil {
		a.log.Error(err, "open launch history", "path", a.opts.HistoryPath())
		return nil
	}
	return store
}

func newRunCommand(opts *config.Options) *cobra.Command {
	req := launchRequest{}
	cmd := &cobra.Command{
		Use:   "run REF COMMAND [-- ARGS...]",
		Short: "Launch a package command inside its composed environment",
		Long: `Resolve REF and every --append reference, compose their environment and start COMMAND
as declared in the package manifest. Arguments after -- are passed to the command.
The command's env list selects the blocks of REF unless REF names its own list.`,
		Example: `  vat run maya-tools maya
  vat run 'maya-tools/1.2.0[base]' mayapy --append arnold -- script.py
  vat run nuke-tools nuke --detach`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			req.Ref = args[0]
			req.Command = args[1]
			req.Args = args[2:]
			return launchPackage(cmd, a, req)
		},
	}
	cmd.Flags().StringArrayVarP(&req.Appended, "append", "a", nil, "Additional package reference layered after REF (repeatable)")
	cmd.Flags().BoolVarP(&req.Detach, "detach", "d", false, "Start the command detached and return immediately")
	cmd.Flags().StringVar(&req.Dir, "cwd", "", "Working directory for the command")
	return cmd
}
