package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/example/vat/internal/config"
	"github.com/example/vat/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *config.Options) *cobra.Command {
	var limit int
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent launches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(opts.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []history.Entry{}
			}
			return writeFormatted(cmd.OutOrStdout(), format, entries, func(w io.Writer) error {
				fmt.Fprintln(w, "STARTED\tPACKAGE\tVERSION\tCOMMAND\tPID\tEXIT")
				for _, e := range entries {
					version := e.Version
					if version == "" {
						version = e.Via
					}
					exit := "-"
					switch {
					case e.Detached:
						exit = "detached"
					case e.ExitCode != nil:
						exit = strconv.Itoa(*e.ExitCode)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", humanize.Time(e.StartedAt), e.Package, version, e.Command, e.PID, exit)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of launches to show (0 for all)")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, yaml")
	return cmd
}
