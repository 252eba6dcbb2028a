package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"sigs.k8s.io/yaml"
)

// writeFormatted prints v as json or yaml, or calls table with a tabwriter.
func writeFormatted(out io.Writer, format string, v any, table func(w io.Writer) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "table":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if err := table(tw); err != nil {
			return err
		}
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	default:
		return fmt.Errorf("unsupported --format %q (expected table, json, or yaml)", format)
	}
}

// styledCell is a table cell whose style is applied after padding.
type styledCell struct {
	text  string
	style *color.Color
}

func plain(text string) styledCell { return styledCell{text: text} }

func styled(text string, style *color.Color) styledCell {
	return styledCell{text: text, style: style}
}

// styledTable aligns on display width of the plain text; tabwriter would
// count ANSI escapes as width and misalign colored columns.
type styledTable struct {
	rows [][]styledCell
}

func (t *styledTable) add(cells ...styledCell) {
	t.rows = append(t.rows, cells)
}

func (t *styledTable) write(w io.Writer) error {
	var widths []int
	for _, row := range t.rows {
		for i, c := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(c.text))
		}
	}
	var b strings.Builder
	for _, row := range t.rows {
		b.Reset()
		for i, c := range row {
			text := c.text
			if c.style != nil && text != "" {
				text = c.style.Sprint(text)
			}
			b.WriteString(text)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(c.text)+2))
			}
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}
