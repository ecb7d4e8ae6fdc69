package datanorm

import "database/sql"

// Field is one of the five canonical semantic attributes of a record.
type Field string

const (
	FieldName      Field = "name"
	FieldBirthDate Field = "birth_date"
	FieldDocument  Field = "document"
	FieldPhone     Field = "phone"
	FieldReason    Field = "reason"
)

// Fields lists the canonical fields in evaluation order.
var Fields = []Field{FieldName, FieldBirthDate, FieldDocument, FieldPhone, FieldReason}

// Column returns the people_records column that stores the field.
func (f Field) Column() string {
	switch f {
	case FieldName:
		return "nome"
	case FieldBirthDate:
		return "data_nascimento"
	case FieldDocument:
		return "documento"
	case FieldPhone:
		return "telefone"
	case FieldReason:
		return "motivo_acidente"
	}
	return ""
}

// ReasonSentinel marks rows whose only narrative lives in unrecognized columns.
const ReasonSentinel = "content present in supplementary columns"

// candidates are the canonical source columns per field, highest priority first.
var candidates = map[Field][]string{
	FieldName: {
		"nome", "funcionario", "trabalhador", "empregado", "segurado",
		"nome_completo", "nome_do_segurado", "paciente",
	},
	FieldBirthDate: {
		"data_nascimento", "nascimento", "data_de_nascimento", "dt_nascimento", "data_nasc",
	},
	FieldDocument: {
		"documento", "cpf", "rg", "numero_de_inscricao",
	},
	FieldPhone: {
		"telefone", "celular", "contato", "telefones", "fone",
	},
	FieldReason: {
		"motivo", "motivo_acidente", "descricao", "relato", "relato_original",
		"descricao_da_situacao_geradora_do_acidente_ou_doenca", "agente_causador",
	},
}

var cleaners = map[Field]func(sql.NullString) string{
	FieldName:      cleanText,
	FieldBirthDate: cleanDate,
	FieldDocument:  cleanDigits,
	FieldPhone:     cleanDigits,
	FieldReason:    cleanText,
}

// SystemColumns are people_records columns the pipeline owns. Source columns
// with these names are stored under a raw_ prefix.
var SystemColumns = []string{"id", "import_id", "valid", "error_message", "created_at"}

var (
	systemColumns = toSet(SystemColumns)
	knownColumns  = buildKnownColumns()
)

func buildKnownColumns() map[string]bool {
	known := toSet(SystemColumns)
	for _, f := range Fields {
		known[f.Column()] = true
		for _, c := range candidates[f] {
			known[c] = true
		}
	}
	return known
}

// Coalesced holds the five canonical fields for one row. "" means absent.
type Coalesced struct {
	Name      string
	BirthDate string
	Document  string
	Phone     string
	Reason    string
}

// Get returns the value of f.
func (c Coalesced) Get(f Field) string {
	switch f {
	case FieldName:
		return c.Name
	case FieldBirthDate:
		return c.BirthDate
	case FieldDocument:
		return c.Document
	case FieldPhone:
		return c.Phone
	case FieldReason:
		return c.Reason
	}
	return ""
}

func (c *Coalesced) set(f Field, v string) {
	switch f {
	case FieldName:
		c.Name = v
	case FieldBirthDate:
		c.BirthDate = v
	case FieldDocument:
		c.Document = v
	case FieldPhone:
		c.Phone = v
	case FieldReason:
		c.Reason = v
	}
}

// Coalesce merges each field's candidate columns: the first candidate that
// is non-empty after cleanup wins. A row with no reason but any content in
// unrecognized columns gets ReasonSentinel.
func Coalesce(row RawRow) Coalesced {
	var out Coalesced
	for _, f := range Fields {
		clean := cleaners[f]
		if f == FieldBirthDate && row.frame.Workbook {
			clean = cleanWorkbookDate
		}
		out.set(f, firstNonEmpty(row, candidates[f], clean))
	}
	if out.Reason == "" && hasSupplementaryContent(row) {
		out.Reason = ReasonSentinel
	}
	return out
}

func firstNonEmpty(row RawRow, cols []string, clean func(sql.NullString) string) string {
	for _, c := range cols {
		if v := clean(row.Get(c)); v != "" {
			return v
		}
	}
	return ""
}

func hasSupplementaryContent(row RawRow) bool {
	found := false
	row.Each(func(key string, v sql.NullString) {
		if !found && !knownColumns[key] && !isAbsent(v) {
			found = true
		}
	})
	return found
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
