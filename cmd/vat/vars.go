package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/example/vat/internal/envcatalog"
	"github.com/spf13/cobra"
)

type varRow struct {
	Category    string `json:"category" yaml:"category"`
	Variable    string `json:"variable" yaml:"variable"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
	Description string `json:"description" yaml:"description"`
}

func varRows(showAll bool) []varRow {
	rows := envcatalog.Catalog()
	out := make([]varRow, 0, len(rows))
	for _, row := range rows {
		if row.Internal && !showAll {
			continue
		}
		value := ""
		if !row.Dynamic {
			value = strings.TrimSpace(os.Getenv(row.Name))
		}
		out = append(out, varRow{
			Category:    row.Category,
			Variable:    row.Name,
			Value:       value,
			Description: row.Description,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Variable < out[j].Variable
	})
	return out
}

func newVarsCommand() *cobra.Command {
	var format string
	var showAll bool
	var onlySet bool
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Show environment variables used by vat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := varRows(showAll)
			if onlySet {
				set := rows[:0]
				for _, row := range rows {
					if row.Value != "" {
						set = append(set, row)
					}
				}
				rows = set
			}
			return writeFormatted(cmd.OutOrStdout(), format, rows, func(w io.Writer) error {
				fmt.Fprintln(w, "CATEGORY\tVARIABLE\tVALUE\tDESCRIPTION")
				for _, row := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Category, row.Variable, row.Value, row.Description)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	cmd.Flags().BoolVar(&showAll, "all", false, "Include variables vat sets for launched processes")
	cmd.Flags().BoolVar(&onlySet, "set", false, "Show only variables with a non-empty value")
	return cmd
}
