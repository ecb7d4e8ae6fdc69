package datanorm

import "strings"

const (
	// DiscardThreshold is how many canonical fields may be missing before a
	// row is rejected outright.
	DiscardThreshold = 4

	MsgDiscarded    = "record discarded: 4 or more critical fields empty"
	MsgNoDiagnostic = "no diagnostic"

	noteSeparator = "; "
)

// notes are informational per-field diagnostics. Phone is never reported.
var notes = []struct {
	field Field
	text  string
}{
	{FieldName, "name missing"},
	{FieldBirthDate, "birth date missing or invalid"},
	{FieldDocument, "document missing"},
	{FieldReason, "reason missing"},
}

// Validate applies the missing-field rule. A row with DiscardThreshold or
// more empty canonical fields is invalid; any other row is valid and its
// message lists the missing fields (phone excluded).
func Validate(c Coalesced) (valid bool, message string) {
	missing := 0
	for _, f := range Fields {
		if c.Get(f) == "" {
			missing++
		}
	}
	if missing >= DiscardThreshold {
		return false, MsgDiscarded
	}

	var b strings.Builder
	for _, n := range notes {
		if c.Get(n.field) == "" {
			b.WriteString(n.text)
			b.WriteString(noteSeparator)
		}
	}
	msg := strings.TrimRight(strings.TrimSpace(b.String()), ";")
	if msg == "" {
		return true, MsgNoDiagnostic
	}
	return true, msg
}
