// File: cmd/vat/env.go
// Brief: CLI command wiring and implementation for 'env'.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/environ"
	"github.com/example/vat/internal/resolver"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
)

// composeLayers composes resolutions in order. defaultEnvs applies to the
// first layer when its reference carries no bracketed list.
func composeLayers(a *app, resolutions []*resolver.Resolution, defaultEnvs []string) (*environ.Result, error) {
	layers := make([]environ.Layer, 0, len(resolutions))
	for i, res := range resolutions {
		envs := res.Reference.Envs
		if i == 0 && envs == nil {
			envs = defaultEnvs
		}
		a.log.V(1).Info("layer", "reference", res.Reference.String(), "version", res.Manifest.Package.Version, "via", string(res.Via))
		layers = append(layers, environ.Layer{Manifest: res.Manifest, Root: res.Root, Envs: envs})
	}
	return a.composer.Compose(layers)
}

// envDiff renders a unified diff of the composed variables against the current process.
func envDiff(result *environ.Result) (string, error) {
	var before, after []string
	for _, name := range result.Names() {
		if cur, ok := environ.Lookup(os.Environ(), name); ok {
			before = append(before, name+"="+cur+"\n")
		}
		after = append(after, name+"="+result.Vars[name]+"\n")
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        before,
		B:        after,
		FromFile: "current",
		ToFile:   "composed",
		Context:  0,
	})
}

func newEnvCommand(opts *config.Options) *cobra.Command {
	var appended []string
	var format string
	var diff bool
	cmd := &cobra.Command{
		Use:   "env REF",
		Short: "Show the environment a package composition produces",
		Long: `Resolve REF and every --append reference, then apply their environment blocks in order.
Nothing is exported; the composed variables are printed.

Append and Prepend join values with the OS path-list separator (":" on Unix, ";" on Windows).
Pass --separator ';' to get the same output on every platform.`,
		Example: `  vat env maya-tools
  vat env maya-tools --separator ';'
  vat env 'maya-tools/1.2.0[base,python]' --append arnold --format json
  vat env maya-tools --diff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			resolutions, err := resolveRefs(cmd.Context(), a, append([]string{args[0]}, appended...))
			if err != nil {
				return err
			}
			result, err := composeLayers(a, resolutions, nil)
			if err != nil {
				return err
			}
			if diff {
				text, err := envDiff(result)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, result, func(w io.Writer) error {
				fmt.Fprintln(w, "VARIABLE\tVALUE")
				for _, name := range result.Names() {
					fmt.Fprintf(w, "%s\t%s\n", name, strings.TrimSpace(result.Vars[name]))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&appended, "append", "a", nil, "Additional package reference layered after REF (repeatable)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().BoolVar(&diff, "diff", false, "Print a unified diff against the current environment")
	return cmd
}
