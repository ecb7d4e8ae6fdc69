package datanorm

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentifierLen is the longest column name Postgres keeps without truncation.
const MaxIdentifierLen = 63

// NormalizeHeader canonicalizes one header into a stable column key:
// lowercase, accents removed, separators folded to "_", anything outside
// [a-z0-9_] dropped, underscore runs collapsed. The result is a fixed point:
// NormalizeHeader(NormalizeHeader(h)) == NormalizeHeader(h).
func NormalizeHeader(h string) string {
	s := stripAccents(strings.ToLower(h))

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := true // suppresses leading "_"
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '/' || r == '.' || r == '-' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.TrimRight(b.String(), "_")
	if len(out) > MaxIdentifierLen {
		out = strings.TrimRight(out[:MaxIdentifierLen], "_")
	}
	return out
}

// NormalizeHeaders canonicalizes a whole header row. Blank headers become
// unnamed_<position>; repeated keys get _1, _2, ... in order of appearance,
// skipping any suffix already taken by another column.
func NormalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			key = "unnamed_" + strconv.Itoa(i)
		}
		if taken[key] {
			key = nextFreeKey(key, taken)
		}
		taken[key] = true
		out[i] = key
	}
	return out
}

func nextFreeKey(base string, taken map[string]bool) string {
	for n := 1; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		stem := base
		if len(stem)+len(suffix) > MaxIdentifierLen {
			stem = stem[:MaxIdentifierLen-len(suffix)]
		}
		if k := stem + suffix; !taken[k] {
			return k
		}
	}
}

var accentStripper = runes.Remove(runes.In(unicode.Mn))

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, accentStripper, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
