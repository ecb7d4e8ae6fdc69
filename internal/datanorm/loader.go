package datanorm

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMalformedInput is returned when the bytes cannot be parsed as the
	// format the extension promises.
	ErrMalformedInput = errors.New("malformed input")
)

// SupportedExtension reports whether Load accepts files with this name.
func SupportedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// Load reads a CSV or XLSX stream into a Table. Every cell is kept as text.
func Load(r io.Reader, filename string) (*Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv", ".txt":
		return loadDelimited(r)
	case ".xlsx", ".xlsm":
		return loadWorkbook(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func loadDelimited(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(stripBOM(r))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !utf8.Valid(data) {
		// Spreadsheet exports from older office suites are often Latin-1.
		if data, err = charmap.ISO8859_1.NewDecoder().Bytes(data); err != nil {
			return nil, fmt.Errorf("%w: decode latin-1: %v", ErrMalformedInput, err)
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedInput, err)
	}

	t := &Table{Header: header}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, line, err)
		}
		t.Rows = append(t.Rows, toCells(row, len(header)))
	}
	return t, nil
}

func loadWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrMalformedInput, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedInput)
	}

	// Raw values keep document numbers and date serials away from display
	// formatting; dates are reparsed later by the coalescer.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformedInput, sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMalformedInput)
	}

	header := rows[0]
	t := &Table{Header: header, Workbook: true}
	for _, row := range rows[1:] {
		cells := toCells(row, len(header))
		if allNull(cells) {
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	return t, nil
}

// toCells pads or truncates a row to width and maps blank cells to null.
func toCells(row []string, width int) []sql.NullString {
	cells := make([]sql.NullString, width)
	for i := 0; i < width && i < len(row); i++ {
		if strings.TrimSpace(row[i]) == "" {
			continue
		}
		cells[i] = sql.NullString{String: row[i], Valid: true}
	}
	return cells
}

func allNull(cells []sql.NullString) bool {
	for _, c := range cells {
		if c.Valid {
			return false
		}
	}
	return true
}

// sniffDelimiter picks the most frequent of , ; and tab on the first line.
func sniffDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return ','
	}
	line := sc.Text()

	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// stripBOM wraps a reader to strip a UTF-8 BOM if present.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	if err != nil || n < 3 {
		return io.MultiReader(bytes.NewReader(buf[:n]), r)
	}
	if buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF {
		return r
	}
	return io.MultiReader(bytes.NewReader(buf[:n]), r)
}
