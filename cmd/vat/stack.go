// File: cmd/vat/stack.go
// Brief: CLI command wiring and implementation for 'stack'.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/stacks"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStackCommand(opts *config.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Manage saved launch shortcuts",
		Long:  "A stack remembers a package reference, a command and extra references so it can be launched by name.",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(
		newStackAddCommand(opts),
		newStackListCommand(opts),
		newStackRemoveCommand(opts),
		newStackRunCommand(opts),
	)
	return cmd
}

func newStackAddCommand(opts *config.Options) *cobra.Command {
	var s stacks.Stack
	var replace bool
	cmd := &cobra.Command{
		Use:     "add NAME REF COMMAND",
		Short:   "Save a launch shortcut",
		Example: `  vat stack add comp 'nuke-tools[base]' nuke --append ocio-config`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.Ref = args[1]
			s.Command = args[2]
			file, err := stacks.Load(opts.StacksPath())
			if err != nil {
				return err
			}
			if err := file.Add(args[0], s, replace); err != nil {
				return err
			}
			if err := file.Save(opts.StacksPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved stack %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&s.Append, "append", "a", nil, "Additional package reference (repeatable)")
	cmd.Flags().StringVar(&s.Icon, "icon", "", "Icon path shown by launchers")
	cmd.Flags().BoolVar(&replace, "replace", false, "Overwrite an existing stack with the same name")
	return cmd
}

func newStackListCommand(opts *config.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved launch shortcuts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := stacks.Load(opts.StacksPath())
			if err != nil {
				return err
			}
			rows := file.List()
			return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
				var t styledTable
				t.add(plain("NAME"), plain("REF"), plain("COMMAND"), plain("APPEND"))
				for _, row := range rows {
					t.add(styled(row.Name, color.New(color.Bold)), plain(row.Ref), plain(row.Command), plain(strings.Join(row.Append, " ")))
				}
				return t.write(w)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

func newStackRemoveCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a launch shortcut",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := stacks.Load(opts.StacksPath())
			if err != nil {
				return err
			}
			if err := file.Remove(args[0]); err != nil {
				return err
			}
			if err := file.Save(opts.StacksPath()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed stack %s\n", args[0])
			return nil
		},
	}
}

func newStackRunCommand(opts *config.Options) *cobra.Command {
	var detach bool
	var dir string
	cmd := &cobra.Command{
		Use:   "run NAME [-- ARGS...]",
		Short: "Launch a saved shortcut",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := stacks.Load(opts.StacksPath())
			if err != nil {
				return err
			}
			s, err := file.Get(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return launchPackage(cmd, a, launchRequest{
				Ref:      s.Ref,
				Command:  s.Command,
				Appended: s.Append,
				Args:     args[1:],
				Dir:      dir,
				Detach:   detach,
			})
		},
	}
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Start the command detached and return immediately")
	cmd.Flags().StringVar(&dir, "cwd", "", "Working directory for the command")
	return cmd
}
