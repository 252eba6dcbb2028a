// File: cmd/vat/resolve.go
// Brief: CLI commands that resolve references: 'resolve' and 'commands'.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/reference"
	"github.com/example/vat/internal/resolver"
	"github.com/spf13/cobra"
)

type resolveRow struct {
	Reference string `json:"reference" yaml:"reference"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	Via       string `json:"via" yaml:"via"`
	Root      string `json:"root" yaml:"root"`
}

func resolveRefs(ctx context.Context, a *app, raw []string) ([]*resolver.Resolution, error) {
	refs, err := reference.ParseAll(raw)
	if err != nil {
		return nil, err
	}
	return a.resolver.ResolveAll(ctx, refs)
}

func newResolveCommand(opts *config.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "resolve REF...",
		Short: "Show which version and directory each reference resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			resolutions, err := resolveRefs(cmd.Context(), a, args)
			if err != nil {
				return err
			}
			rows := make([]resolveRow, 0, len(resolutions))
			for _, res := range resolutions {
				rows = append(rows, resolveRow{
					Reference: res.Reference.String(),
					Name:      res.Manifest.Package.Name,
					Version:   res.Manifest.Package.Version,
					Via:       string(res.Via),
					Root:      res.Root,
				})
			}
			return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
				fmt.Fprintln(w, "REFERENCE\tVERSION\tVIA\tROOT")
				for _, row := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Reference, row.Version, row.Via, row.Root)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}

type commandRow struct {
	Name    string   `json:"name" yaml:"name"`
	Command string   `json:"command" yaml:"command"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`
}

func newCommandsCommand(opts *config.Options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "commands REF",
		Short: "List the commands a package declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			resolutions, err := resolveRefs(cmd.Context(), a, args)
			if err != nil {
				return err
			}
			mf := resolutions[0].Manifest
			rows := make([]commandRow, 0, len(mf.Commands))
			for _, name := range mf.CommandNames() {
				spec := mf.Commands[name]
				rows = append(rows, commandRow{Name: name, Command: spec.Command, Env: spec.Env})
			}
			return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
				fmt.Fprintln(w, "NAME\tCOMMAND\tENV")
				for _, row := range rows {
					env := "*"
					if row.Env != nil {
						env = fmt.Sprint(row.Env)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", row.Name, row.Command, env)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}
