package datanorm

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildRecords coalesces and validates every row of f into records owned by
// importID. Columns that are not canonical field columns go to Extras.
func BuildRecords(f *Frame, importID uuid.UUID, now time.Time) []CanonicalRecord {
	extraKeys := extraKeysFor(f.Columns)

	records := make([]CanonicalRecord, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		c := Coalesce(row)
		valid, msg := Validate(c)

		extras := make(map[string]string)
		row.Each(func(key string, v sql.NullString) {
			k, ok := extraKeys[key]
			if !ok || !v.Valid {
				return
			}
			extras[k] = strings.TrimSpace(v.String)
		})

		records = append(records, CanonicalRecord{
			ID:           uuid.New(),
			ImportID:     importID,
			Name:         c.Name,
			BirthDate:    c.BirthDate,
			Document:     c.Document,
			Phone:        c.Phone,
			Reason:       c.Reason,
			Valid:        valid,
			ErrorMessage: msg,
			CreatedAt:    now,
			Extras:       extras,
		})
	}
	return records
}

var canonicalColumns = func() map[string]bool {
	m := make(map[string]bool, len(Fields))
	for _, f := range Fields {
		m[f.Column()] = true
	}
	return m
}()

// ExtraKey maps a canonical source column to its extras-bag key. Canonical
// field columns return "" because their value lives in the typed field.
func ExtraKey(column string) string {
	if canonicalColumns[column] {
		return ""
	}
	if systemColumns[column] {
		return NormalizeHeader("raw_" + column)
	}
	return column
}

// extraKeysFor maps each non-canonical column to a distinct extras key.
// Columns keep their own name; remapped system columns that land on a name
// already used by the file get the next free _<n> suffix.
func extraKeysFor(columns []string) map[string]string {
	keys := make(map[string]string, len(columns))
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		if k := ExtraKey(c); k == c {
			keys[c] = k
			taken[k] = true
		}
	}
	for _, c := range columns {
		k := ExtraKey(c)
		if k == "" || k == c {
			continue
		}
		if taken[k] {
			k = nextFreeKey(k, taken)
		}
		keys[c] = k
		taken[k] = true
	}
	return keys
}

// ExtraColumns returns the sorted union of extras keys across records.
func ExtraColumns(records []CanonicalRecord) []string {
	seen := make(map[string]bool)
	for i := range records {
		for k := range records[i].Extras {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
