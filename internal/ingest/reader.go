package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// RowReader streams the data rows of a tabular source.
// Keys passed to fn are sanitized headers; values are trimmed cell text.
type RowReader interface {
	ReadRows(r io.Reader, fn func(domain.RawRow) error) error
}

// FileTypeFromName resolves the upload format from a file extension.
func FileTypeFromName(name string) (domain.FileType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return domain.FileTypeSpreadsheet, nil
	case ".csv":
		return domain.FileTypeDelimited, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, filepath.Ext(name))
	}
}

// Option adjusts how a source is read.
type Option func(*readOptions)

type readOptions struct {
	comma rune
}

// WithDelimiter sets the field separator of delimited sources.
// Zero keeps the default comma. Spreadsheets ignore it.
func WithDelimiter(comma rune) Option {
	return func(o *readOptions) {
		o.comma = comma
	}
}

// NewRowReader returns the reader for a file type.
func NewRowReader(ft domain.FileType, opts ...Option) (RowReader, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch ft {
	case domain.FileTypeSpreadsheet:
		return &SpreadsheetReader{}, nil
	case domain.FileTypeDelimited:
		return &DelimitedReader{Comma: o.comma}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, ft)
	}
}

// DelimitedReader reads comma separated text whose first record is the header.
type DelimitedReader struct {
	// Comma overrides the field delimiter; zero means ','.
	Comma rune
}

// ReadRows implements RowReader.
func (d *DelimitedReader) ReadRows(r io.Reader, fn func(domain.RawRow) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	if d.Comma != 0 {
		cr.Comma = d.Comma
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: header: %w", domain.ErrMalformedInput, err)
	}
	columns := sanitizeColumns(header)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
		}
		if err := fn(buildRow(columns, record)); err != nil {
			return err
		}
	}
}

// SpreadsheetReader reads the first worksheet of an xlsx workbook.
// The first non-blank row is the header; later blank rows are skipped.
// Cells with a date number format are emitted as YYYY-MM-DD.
type SpreadsheetReader struct{}

// ReadRows implements RowReader.
func (s *SpreadsheetReader) ReadRows(r io.Reader, fn func(domain.RawRow) error) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil
	}
	sheet := sheets[0]

	// GetRows pads missing rows, so index i is always worksheet row i+1.
	display, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("%w: sheet %q: %w", domain.ErrMalformedInput, sheet, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return fmt.Errorf("%w: sheet %q: %w", domain.ErrMalformedInput, sheet, err)
	}

	dates := newDateCells(f, sheet)
	var columns []string
	for i, cells := range display {
		if isBlank(cells) {
			continue
		}
		if columns == nil {
			columns = sanitizeColumns(cells)
			continue
		}
		if i < len(raw) {
			dates.resolve(i, cells, raw[i])
		}
		if err := fn(buildRow(columns, cells)); err != nil {
			return err
		}
	}
	return nil
}

// dateCells rewrites date-formatted serial numbers to ISO dates.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// resolve replaces, in place, every display cell whose raw value is a serial
// number under a date format.
func (d *dateCells) resolve(row int, display, raw []string) {
	for j := range display {
		if j >= len(raw) || raw[j] == display[j] {
			continue
		}
		serial, err := strconv.ParseFloat(raw[j], 64)
		if err != nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(j+1, row+1)
		if err != nil || !d.isDateCell(cell) {
			continue
		}
		t, err := excelize.ExcelDateToTime(serial, d.date1904)
		if err != nil {
			continue
		}
		display[j] = t.Format(domain.ISODateLayout)
	}
}

func (d *dateCells) isDateCell(cell string) bool {
	idx, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil {
		return false
	}
	if isDate, ok := d.styles[idx]; ok {
		return isDate
	}
	isDate := false
	if style, err := d.f.GetStyle(idx); err == nil {
		isDate = isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	}
	d.styles[idx] = isDate
	return isDate
}

// isDateNumFmt reports whether a number format renders a date. Built-in ids
// follow ECMA-376 18.8.30 plus the CJK date ids; custom formats count when
// they carry a day or year token outside quotes and brackets.
func isDateNumFmt(id int, custom *string) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	if custom == nil {
		return false
	}

	inQuote, inBracket, escaped := false, false, false
	for _, r := range *custom {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			if c := unicode.ToLower(r); c == 'd' || c == 'y' {
				return true
			}
		}
	}
	return false
}

func sanitizeColumns(header []string) []string {
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = SanitizeHeader(h)
	}
	return columns
}

// buildRow zips columns and cells. Cells beyond the header and columns with
// an empty header are dropped; duplicate headers keep the rightmost value.
func buildRow(columns, cells []string) domain.RawRow {
	row := make(domain.RawRow, len(columns))
	for i, v := range cells {
		if i >= len(columns) {
			break
		}
		if columns[i] == "" {
			continue
		}
		row[columns[i]] = strings.TrimSpace(v)
	}
	return row
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
