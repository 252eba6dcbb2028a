// File: cmd/vat/package.go
// Brief: Workspace commands: init, show, bump, publish, link, unlink, status, clone, update.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/manifest"
	"github.com/example/vat/internal/publish"
	"github.com/example/vat/internal/workspace"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func dirArg(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return "."
}

func newInitCommand(opts *config.Options) *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create vat.toml and a git repository for a new package",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			mf, err := a.workspace.Init(cmd.Context(), dirArg(args), name, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialised %s %s\n", color.New(color.Bold).Sprint(mf.Package.Name), mf.Package.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Package name (defaults to the directory name)")
	cmd.Flags().BoolVar(&force, "force", false, "Initialise even if the directory is not empty")
	return cmd
}

func newShowCommand(opts *config.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show [DIR]",
		Short: "Print the manifest of a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := manifest.Read(afero.NewOsFs(), dirArg(args))
			if err != nil {
				return err
			}
			if strings.EqualFold(strings.TrimSpace(format), "toml") {
				data, err := mf.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, mf, func(w io.Writer) error {
				fmt.Fprintf(w, "NAME\t%s\n", mf.Package.Name)
				fmt.Fprintf(w, "VERSION\t%s\n", mf.Package.Version)
				if mf.Package.Description != "" {
					fmt.Fprintf(w, "DESCRIPTION\t%s\n", mf.Package.Description)
				}
				fmt.Fprintf(w, "ENVIRONMENTS\t%s\n", strings.Join(mf.EnvironmentNames(), ", "))
				fmt.Fprintf(w, "COMMANDS\t%s\n", strings.Join(mf.CommandNames(), ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "Output format: toml, table, json, yaml")
	return cmd
}

func newBumpCommand(opts *config.Options) *cobra.Command {
	var major, minor, patch, yes, allowDirty bool
	var dir string
	cmd := &cobra.Command{
		Use:   "bump",
		Short: "Increment the package version, commit and tag it",
		Long: `Increment the version in vat.toml, commit the workspace and tag the new version.
Commit your work first: other uncommitted changes are refused unless --allow-dirty is given,
in which case they are committed together with the version bump.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind manifest.BumpKind
			switch {
			case major:
				kind = manifest.BumpMajor
			case minor:
				kind = manifest.BumpMinor
			case patch:
				kind = manifest.BumpPatch
			default:
				kind = manifest.BumpPatch
			}
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			prev, next, err := a.workspace.Preview(dir, kind)
			if err != nil {
				return err
			}
			changes, err := a.workspace.Uncommitted(cmd.Context(), dir)
			if err != nil {
				return err
			}
			if len(changes) > 0 {
				if !allowDirty {
					return fmt.Errorf("%w: %s", workspace.ErrDirtyWorktree, strings.Join(changes, ", "))
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d uncommitted path(s) will be included in the bump commit\n",
					color.YellowString("Warning:"), len(changes))
			}
			prompt := fmt.Sprintf("Bump %s -> %s, commit and tag? Type 'yes' to continue:", prev, next)
			if err := confirmStep(cmd, yes, prompt, confirmModeYes, ""); err != nil {
				return err
			}
			if _, _, err := a.workspace.Bump(cmd.Context(), dir, kind, allowDirty); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", prev, color.GreenString(next))
			return nil
		},
	}
	cmd.Flags().BoolVar(&major, "major", false, "Increment the major version")
	cmd.Flags().BoolVar(&minor, "minor", false, "Increment the minor version")
	cmd.Flags().BoolVar(&patch, "patch", false, "Increment the patch version (default)")
	cmd.MarkFlagsMutuallyExclusive("major", "minor", "patch")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&allowDirty, "allow-dirty", false, "Commit other uncommitted changes together with the bump")
	cmd.Flags().StringVar(&dir, "dir", ".", "Workspace directory")
	return cmd
}

func newPublishCommand(opts *config.Options) *cobra.Command {
	var comment, dir, format string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Snapshot the tagged manifest version into the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			res, err := a.publisher.Publish(cmd.Context(), publish.Request{Workspace: dir, Comment: comment})
			if err != nil {
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, res, func(w io.Writer) error {
				fmt.Fprintf(w, "Published %s %s from tag %s\n", res.Name, color.GreenString(res.Version), res.Tag)
				fmt.Fprintf(w, "PATH\t%s\n", res.Path)
				fmt.Fprintf(w, "FILES\t%d\n", res.Files)
				fmt.Fprintf(w, "DIGEST\t%s\n", res.Digest)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Version comment (defaults to the manifest version_message)")
	cmd.Flags().StringVar(&dir, "dir", ".", "Workspace directory")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

func newLinkCommand(opts *config.Options) *cobra.Command {
	var gitURL string
	cmd := &cobra.Command{
		Use:   "link [DIR]",
		Short: "Register a workspace in the repository without publishing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			name, err := a.publisher.Link(cmd.Context(), dirArg(args), gitURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&gitURL, "git-url", "", "Git URL to record (defaults to the first remote)")
	return cmd
}

func newUnlinkCommand(opts *config.Options) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unlink NAME",
		Short: "Forget a package that has no published versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			prompt := fmt.Sprintf("Type the package name (%s) to unlink it:", name)
			if err := confirmStep(cmd, yes, prompt, confirmModeExact, name); err != nil {
				return err
			}
			if err := a.publisher.Unlink(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newStatusCommand(opts *config.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status [NAME]",
		Short: "Compare a workspace manifest version with its latest version tag",
		Long:  "Without NAME the workspace in the current directory is inspected.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			var st *workspace.Status
			if len(args) == 1 {
				st, err = a.workspace.StatusOf(cmd.Context(), args[0])
			} else {
				st, err = a.workspace.Status(cmd.Context(), ".")
			}
			if err != nil {
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, st, func(w io.Writer) error {
				fmt.Fprintln(w, "NAME\tMANIFEST\tLATEST TAG\tSTATE")
				tag := st.LatestTag
				if tag == "" {
					tag = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Name, st.ManifestVersion, tag, st.State)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

func newCloneCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clone URL",
		Short: "Clone a package repository into the repository and link it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			name, err := a.workspace.Clone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cloned and linked %s\n", name)
			return nil
		},
	}
}

func newUpdateCommand(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "update NAME",
		Short: "Fetch a cloned package and publish its latest version tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			res, err := a.workspace.Update(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Published == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s is already published\n", res.Name, res.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s %s\n", res.Name, color.GreenString(res.Version))
			return nil
		},
	}
}
