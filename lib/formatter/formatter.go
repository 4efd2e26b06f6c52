// Package formatter writes capability objects out as tables, documents or
// databases.
package formatter

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
)

// Record is one object along with the backend it came from.
type Record struct {
	// Index numbers the record in a listing, 0 leaves it out.
	Index   int
	Backend string
	Value   any
}

type Options struct {
	// Kind of the objects, like "torrent". It names sqlite tables and xlsx
	// sheets.
	Kind string
	// Columns restricts and orders the columns, empty means every field.
	Columns []string
	// Details shows a single object as a field/value list where the format
	// allows it.
	Details bool
	// Path of the output file, required by formats that cannot stream.
	Path string
}

type Formatter interface {
	Write(ctx context.Context, w io.Writer, records []Record, opts Options) error
}

var formatters = map[string]Formatter{
	"table":    tableFormatter{style: "table"},
	"markdown": tableFormatter{style: "markdown"},
	"csv":      tableFormatter{style: "csv"},
	"json":     jsonFormatter{},
	"xlsx":     xlsxFormatter{},
	"sqlite":   sqliteFormatter{},
}

func Get(name string) (Formatter, error) {
	f, ok := formatters[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q, expected one of %v", name, Names())
	}
	return f, nil
}

func Names() []string {
	out := make([]string, 0, len(formatters))
	for name := range formatters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NeedsPath reports whether the format writes to a file rather than a stream.
func NeedsPath(name string) bool {
	return name == "sqlite"
}

// tabulate turns records into a header and rows of strings. The backend
// column always comes first, after the index when records are numbered.
func tabulate(records []Record, columns []string) ([]string, [][]string, error) {
	header, rows, err := tabulateFields(records, columns)
	if err != nil || !numbered(records) {
		return header, rows, err
	}
	header = append([]string{"#"}, header...)
	for i, row := range rows {
		rows[i] = append([]string{strconv.Itoa(records[i].Index)}, row...)
	}
	return header, rows, nil
}

func numbered(records []Record) bool {
	for _, r := range records {
		if r.Index > 0 {
			return true
		}
	}
	return false
}

func tabulateFields(records []Record, columns []string) ([]string, [][]string, error) {
	var header []string
	if len(columns) > 0 {
		header = append(header, columns...)
		if !slices.Contains(header, "backend") {
			header = append([]string{"backend"}, header...)
		}
	} else {
		header = []string{"backend"}
	}
	index := map[string]int{}
	for i, h := range header {
		index[h] = i
	}

	flattened := make([][]field, len(records))
	for i, r := range records {
		fields, err := flatten(r.Value)
		if err != nil {
			return nil, nil, err
		}
		flattened[i] = fields
		if len(columns) > 0 {
			continue
		}
		for _, f := range fields {
			if _, ok := index[f.key]; !ok {
				index[f.key] = len(header)
				header = append(header, f.key)
			}
		}
	}

	rows := make([][]string, len(records))
	for i, fields := range flattened {
		row := make([]string, len(header))
		row[index["backend"]] = records[i].Backend
		for _, f := range fields {
			col, ok := index[f.key]
			if !ok {
				continue
			}
			if f.key == "backend" && f.value == "" {
				continue
			}
			row[col] = f.value
		}
		rows[i] = row
	}
	return header, rows, nil
}
