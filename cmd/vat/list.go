// File: cmd/vat/list.go
// Brief: CLI command wiring and implementation for 'list'.

package main

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/example/vat/internal/catalog"
	"github.com/example/vat/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type listVersion struct {
	Version     string    `json:"version" yaml:"version"`
	PublishedOn time.Time `json:"publishedOn" yaml:"publishedOn"`
	Comment     string    `json:"comment,omitempty" yaml:"comment,omitempty"`
}

type listRow struct {
	Name      string        `json:"name" yaml:"name"`
	Workspace string        `json:"workspace" yaml:"workspace"`
	GitURL    string        `json:"gitUrl,omitempty" yaml:"gitUrl,omitempty"`
	Versions  []listVersion `json:"versions" yaml:"versions"`
}

func listRows(cat *catalog.Catalog) ([]listRow, error) {
	rows := make([]listRow, 0, len(cat.Packages))
	for _, name := range cat.Names() {
		entry, err := cat.Get(name)
		if err != nil {
			return nil, err
		}
		versions, err := cat.SortedVersions(name)
		if err != nil {
			return nil, err
		}
		row := listRow{Name: name, Workspace: entry.MainBranchPath, GitURL: entry.GitURL, Versions: []listVersion{}}
		for _, v := range versions {
			info := entry.Versions[v]
			row.Versions = append(row.Versions, listVersion{Version: v, PublishedOn: info.PublishedOn, Comment: info.VersionComment})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func newListCommand(opts *config.Options) *cobra.Command {
	var format string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages and their published versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(opts.CatalogPath())
			if err != nil {
				return err
			}
			rows, err := listRows(cat)
			if err != nil {
				return err
			}
			bold := color.New(color.Bold)
			yellow := color.New(color.FgYellow)
			return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
				var t styledTable
				t.add(plain("PACKAGE"), plain("VERSION"), plain("PUBLISHED"), plain("COMMENT"))
				for _, row := range rows {
					if len(row.Versions) == 0 {
						t.add(styled(row.Name, bold), styled("workspace", yellow), plain("-"), plain(row.Workspace))
						continue
					}
					shown := row.Versions
					if !all {
						shown = shown[:1]
					}
					for i, v := range shown {
						name := ""
						if i == 0 {
							name = row.Name
						}
						t.add(styled(name, bold), plain(v.Version), plain(humanize.Time(v.PublishedOn)), plain(v.Comment))
					}
				}
				return t.write(w)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show every published version instead of the latest")
	return cmd
}
