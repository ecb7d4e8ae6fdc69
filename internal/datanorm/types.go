package datanorm

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Table is a spreadsheet as read from disk: the raw header row and every data
// row as positional, nullable text cells. No type coercion has happened yet.
type Table struct {
	Header []string
	Rows   [][]sql.NullString

	// Workbook is set for tables read from .xlsx/.xlsm. Only those carry
	// date cells as Excel serial numbers.
	Workbook bool
}

// Frame is a Table whose header has been canonicalized. Columns are unique.
type Frame struct {
	Columns  []string
	Rows     [][]sql.NullString
	Workbook bool

	index map[string]int
}

// NewFrame canonicalizes the table header and indexes the resulting columns.
func NewFrame(t *Table) *Frame {
	cols := NormalizeHeaders(t.Header)
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return &Frame{Columns: cols, Rows: t.Rows, Workbook: t.Workbook, index: idx}
}

// Len returns the number of data rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Row returns the i-th row keyed by canonical column name.
func (f *Frame) Row(i int) RawRow {
	return RawRow{frame: f, values: f.Rows[i]}
}

// RawRow is one input row addressed by canonical column key. It shares its
// column index with the owning Frame.
type RawRow struct {
	frame  *Frame
	values []sql.NullString
}

// Get returns the raw cell for key. Missing columns and short rows read as null.
func (r RawRow) Get(key string) sql.NullString {
	i, ok := r.frame.index[key]
	if !ok || i >= len(r.values) {
		return sql.NullString{}
	}
	return r.values[i]
}

// Each calls fn for every column in header order.
func (r RawRow) Each(fn func(key string, v sql.NullString)) {
	for i, c := range r.frame.Columns {
		var v sql.NullString
		if i < len(r.values) {
			v = r.values[i]
		}
		fn(c, v)
	}
}

// CanonicalRecord is a normalized people_records row. Empty canonical
// fields mean "absent" and are persisted as NULL.
type CanonicalRecord struct {
	ID           uuid.UUID
	ImportID     uuid.UUID
	Name         string
	BirthDate    string
	Document     string
	Phone        string
	Reason       string
	Valid        bool
	ErrorMessage string
	CreatedAt    time.Time
	Extras       map[string]string
}
