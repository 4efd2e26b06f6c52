package formatter

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"
)

type xlsxFormatter struct{}

// sheet names are limited to 31 characters by excel
func sheetName(kind string) string {
	if kind == "" {
		kind = "results"
	}
	if len(kind) > 31 {
		kind = kind[:31]
	}
	return kind
}

func (xlsxFormatter) Write(ctx context.Context, w io.Writer, records []Record, opts Options) error {
	header, rows, err := tabulate(records, opts.Columns)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(opts.Kind)
	err = f.SetSheetName("Sheet1", sheet)
	if err != nil {
		return err
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	err = f.SetSheetRow(sheet, "A1", &headerRow)
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	err = f.SetRowStyle(sheet, 1, 1, bold)
	if err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		err = f.SetSheetRow(sheet, cell, &values)
		if err != nil {
			return err
		}
	}

	err = f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
