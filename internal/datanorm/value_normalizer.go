package datanorm

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// CanonicalDateLayout is the single output form for birth dates.
const CanonicalDateLayout = "02/01/2006"

// dateLayouts are tried in order; day-first wins when both could match.
var dateLayouts = []string{
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"2006/1/2",
	"2.1.2006",
	"2006.1.2",
}

// maxExcelSerial is 9999-12-31 in the 1900 date system.
const maxExcelSerial = 2958465

var degenerate = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
	"nat":  true,
	"n/a":  true,
	"na":   true,
	"-":    true,
}

// isAbsent reports whether a cell carries no usable content.
func isAbsent(v sql.NullString) bool {
	if !v.Valid {
		return true
	}
	return degenerate[strings.ToLower(strings.TrimSpace(v.String))]
}

// cleanText trims the value; degenerate placeholders become "".
func cleanText(v sql.NullString) string {
	if isAbsent(v) {
		return ""
	}
	return strings.TrimSpace(v.String)
}

// cleanDigits keeps only ASCII digits. Numeric cells exported as floats
// ("12345678901.0") lose the fractional zero first.
func cleanDigits(v sql.NullString) string {
	s := cleanText(v)
	if s == "" {
		return ""
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" && isDigits(whole) {
		s = whole
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// cleanDate reparses a textual date into DD/MM/YYYY. Anything unparsable,
// bare numbers included, is absent rather than passed through.
func cleanDate(v sql.NullString) string {
	s := cleanText(v)
	if s == "" {
		return ""
	}
	token := strings.Fields(s)[0]

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}
	return ""
}

// cleanWorkbookDate is cleanDate for workbook cells, where date cells
// arrive as serial day numbers, optionally with a fractional time of day.
func cleanWorkbookDate(v sql.NullString) string {
	if d := cleanDate(v); d != "" {
		return d
	}
	s := cleanText(v)
	if s == "" {
		return ""
	}
	token := strings.Fields(s)[0]
	if serial, err := strconv.ParseFloat(token, 64); err == nil && serial >= 1 && serial <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(CanonicalDateLayout)
		}
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
