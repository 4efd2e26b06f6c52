package formatter

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// cells longer than this are cut in tables meant for a terminal
const maxCellWidth = 60

type tableFormatter struct {
	style string
}

// humanValue makes values easier to read in a terminal, sizes and dates
// mostly. csv output keeps raw values.
func humanValue(key, value string) string {
	if value == "" {
		return value
	}
	last := key[strings.LastIndex(key, ".")+1:]

	switch last {
	case "size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return humanize.IBytes(uint64(n))
		}
	case "duration":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(n).String()
		}
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		if t.IsZero() {
			return ""
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format("2006-01-02 15:04")
	}
	return value
}

func (f tableFormatter) Write(ctx context.Context, w io.Writer, records []Record, opts Options) error {
	header, rows, err := tabulate(records, opts.Columns)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	human := f.style != "csv"

	if opts.Details && len(rows) == 1 && f.style != "csv" {
		t.AppendHeader(table.Row{"Field", "Value"})
		for i, key := range header {
			value := rows[0][i]
			if value == "" {
				continue
			}
			t.AppendRow(table.Row{key, humanValue(key, value)})
		}
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, WidthMax: maxCellWidth * 2, WidthMaxEnforcer: text.WrapSoft},
		})
		return f.render(w, t)
	}

	headerRow := make(table.Row, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, value := range row {
			if human {
				value = humanValue(header[i], value)
			}
			out[i] = value
		}
		t.AppendRow(out)
	}
	if f.style == "table" {
		configs := make([]table.ColumnConfig, len(header))
		for i := range header {
			configs[i] = table.ColumnConfig{
				Number:           i + 1,
				WidthMax:         maxCellWidth,
				WidthMaxEnforcer: text.Trim,
			}
		}
		t.SetColumnConfigs(configs)
	}
	return f.render(w, t)
}

func (f tableFormatter) render(w io.Writer, t table.Writer) error {
	var out string
	switch f.style {
	case "markdown":
		out = t.RenderMarkdown()
	case "csv":
		out = t.RenderCSV()
	default:
		out = t.Render()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}
