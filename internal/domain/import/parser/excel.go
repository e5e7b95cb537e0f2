package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
)

// Built-in spreadsheet number formats that render a date.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// ParseXLSX reads the first sheet of a workbook. Date cells are rendered as
// yyyy-MM-dd; every other cell keeps its raw value.
func (p *Parser) ParseXLSX(data []byte) (*model.RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}
	sheetName := sheets[0]

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}

	// Leading empty rows are common above the real header
	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, ErrEmptyData
	}

	dates := newDateCells(f, sheetName)
	table := &model.RawTable{Headers: cleanHeaders(rows[start]), Rows: make([]model.RawRow, 0, len(rows))}

	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		for col, cell := range row {
			row[col] = dates.render(col, i, cell)
		}
		if err := p.appendRow(table, i+1, row); err != nil {
			return nil, err
		}
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyData
	}
	return table, nil
}

// dateCells renders numeric cells formatted as dates. Style lookups are
// cached per style ID since most rows share the same few styles.
type dateCells struct {
	f         *excelize.File
	sheet     string
	date1904  bool
	dateStyle map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, dateStyle: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) render(col, rowIdx int, raw string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}

	cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+1)
	if err != nil {
		return raw
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleID) {
		return raw
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02")
}

func (d *dateCells) isDateStyle(styleID int) bool {
	if isDate, ok := d.dateStyle[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
		switch {
		case style.CustomNumFmt != nil:
			isDate = isDateFormatCode(*style.CustomNumFmt)
		default:
			isDate = builtinDateFormats[style.NumFmt]
		}
	}
	d.dateStyle[styleID] = isDate
	return isDate
}

// isDateFormatCode reports whether a custom number format renders a date:
// it must carry a day or year token outside quoted literals.
func isDateFormatCode(code string) bool {
	inQuote := false
	for _, r := range strings.ToLower(code) {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == 'd' || r == 'y':
			return true
		}
	}
	return false
}
