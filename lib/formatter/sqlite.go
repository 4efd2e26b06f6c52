package formatter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteFormatter struct{}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableName(kind string) string {
	if kind == "" {
		return "results"
	}
	return kind
}

// Write appends the records to the table named after their kind in the
// database at opts.Path. Columns missing from an existing table are added.
func (sqliteFormatter) Write(ctx context.Context, w io.Writer, records []Record, opts Options) error {
	if opts.Path == "" {
		return fmt.Errorf("sqlite output needs a file path")
	}
	header, rows, err := tabulate(records, opts.Columns)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	name := tableName(opts.Kind)
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = quoteIdent(h) + " TEXT"
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(name), strings.Join(columns, ", "),
	))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := tableColumns(ctx, db, name)
	if err != nil {
		return err
	}
	for _, h := range header {
		if existing[h] {
			continue
		}
		_, err = db.ExecContext(ctx, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s TEXT",
			quoteIdent(name), quoteIdent(h),
		))
		if err != nil {
			return fmt.Errorf("add column %s: %w", h, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	quoted := make([]string, len(header))
	placeholders := make([]string, len(header))
	for i, h := range header {
		quoted[i] = quoteIdent(h)
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(row))
		for i, v := range row {
			args[i] = v
		}
		_, err = stmt.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "wrote %d rows to %s in %s\n", len(rows), name, opts.Path)
	return err
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name       string
			typ        string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		err = rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk)
		if err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
