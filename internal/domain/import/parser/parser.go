// Package parser decodes uploaded bank statements into a RawTable. It reads
// CSV (UTF-8 with a Latin-1 fallback) and XLSX workbooks and keeps every cell
// as a string; coercion happens later in the normalizer.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/smart-import/internal/domain/common"
	"github.com/FACorreiaa/smart-import/internal/domain/import/model"
	"github.com/FACorreiaa/smart-import/internal/domain/import/sniffer"
)

var (
	ErrEmptyData     = errors.New("file contains no data rows")
	ErrTooManyRows   = errors.New("file exceeds the maximum number of rows")
	ErrEmptyWorkbook = errors.New("workbook contains no sheets")
	ErrUnsupported   = errors.New("unsupported file type")
)

// DefaultMaxRows bounds the rows accepted from a single upload.
const DefaultMaxRows = 10000

// ParseError represents a malformed record in the source file
type ParseError struct {
	Row     int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Parser turns raw bytes into a RawTable.
type Parser struct {
	maxRows int
}

// NewParser creates a parser that rejects files with more than maxRows data rows.
func NewParser(maxRows int) *Parser {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Parser{maxRows: maxRows}
}

// Parse dispatches on the (already validated) MIME type.
func (p *Parser) Parse(data []byte, mimeType string) (*model.RawTable, error) {
	var (
		table *model.RawTable
		err   error
	)

	switch sniffer.NormalizeMIME(mimeType) {
	case sniffer.MIMECSV:
		table, err = p.ParseCSV(data)
	case sniffer.MIMEXLSX, sniffer.MIMEZIP:
		table, err = p.ParseXLSX(data)
	default:
		err = ErrUnsupported
	}
	if err != nil {
		return nil, asInputError(err)
	}
	return table, nil
}

// ParseCSV reads a delimited file. Ragged rows are padded or truncated to the
// header width and blank rows are skipped.
func (p *Parser) ParseCSV(data []byte) (*model.RawTable, error) {
	text := decodeText(data)
	text = strings.TrimPrefix(text, "\uFEFF")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyData
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffer.DetectDelimiter(sniffer.FirstLine(text))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	headers := cleanHeaders(header)
	table := &model.RawTable{Headers: headers, Rows: make([]model.RawRow, 0, 256)}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, ParseError{Row: csvErr.Line, Message: csvErr.Err.Error()}
			}
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if isBlank(record) {
			continue
		}

		line, _ := reader.FieldPos(0)
		if err := p.appendRow(table, line, record); err != nil {
			return nil, err
		}
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyData
	}
	return table, nil
}

func (p *Parser) appendRow(table *model.RawTable, line int, record []string) error {
	if len(table.Rows) >= p.maxRows {
		return fmt.Errorf("%w (%d)", ErrTooManyRows, p.maxRows)
	}

	values := make(map[string]string, len(table.Headers))
	for i, h := range table.Headers {
		if i < len(record) {
			values[h] = record[i]
		} else {
			values[h] = ""
		}
	}
	table.Rows = append(table.Rows, model.RawRow{Line: line, Values: values})
	return nil
}

// decodeText returns data as UTF-8. Text that only decodes with replacement
// characters is re-read as Latin-1, the encoding of legacy bank exports.
func decodeText(data []byte) string {
	text := string(bytes.ToValidUTF8(data, []byte("\uFFFD")))
	if !strings.ContainsRune(text, utf8.RuneError) {
		return text
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return text
	}
	return string(decoded)
}

// cleanHeaders trims header names and makes them unique so they can key row maps.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int, len(raw))

	for i, h := range raw {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}

		if seen[h] > 0 {
			base := h
			for n := seen[base] + 1; ; n++ {
				candidate := base + "_" + strconv.Itoa(n)
				if seen[candidate] == 0 {
					h = candidate
					seen[base] = n
					break
				}
			}
		}
		seen[h]++
		headers[i] = h
	}
	return headers
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func asInputError(err error) error {
	var ce *common.Error
	if errors.As(err, &ce) {
		return err
	}
	return common.Wrap(common.KindInvalidInput, err.Error(), err)
}
