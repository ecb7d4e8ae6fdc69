package datanorm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFNome,CPF,Motivo\nAna,111.222.333-44,queda\n,,\nBeto,555\n"
	tbl, err := Load(strings.NewReader(in), "lista.CSV")
	require.NoError(t, err)

	assert.Equal(t, []string{"Nome", "CPF", "Motivo"}, tbl.Header)
	require.Len(t, tbl.Rows, 3)

	assert.Equal(t, "Ana", tbl.Rows[0][0].String)
	assert.Equal(t, "111.222.333-44", tbl.Rows[0][1].String, "values stay text")

	for _, c := range tbl.Rows[1] {
		assert.False(t, c.Valid, "blank cells are null")
	}

	require.Len(t, tbl.Rows[2], 3, "short rows are padded")
	assert.False(t, tbl.Rows[2][2].Valid)
}

func TestLoadCSVSniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"semicolon", "nome;documento;motivo\nAna;111;queda, escada\n"},
		{"tab", "nome\tdocumento\tmotivo\nAna\t111\tqueda, escada\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Load(strings.NewReader(tt.in), "x.csv")
			require.NoError(t, err)
			require.Len(t, tbl.Header, 3)
			assert.Equal(t, "queda, escada", tbl.Rows[0][2].String)
		})
	}
}

func TestLoadCSVLongRowsTruncated(t *testing.T) {
	tbl, err := Load(strings.NewReader("a,b\n1,2,3,4\n"), "x.csv")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows[0], 2)
}

func TestLoadCSVLatin1(t *testing.T) {
	in := []byte("Descri\xe7\xe3o\nqueda\n")
	tbl, err := Load(bytes.NewReader(in), "x.csv")
	require.NoError(t, err)
	assert.Equal(t, "Descrição", tbl.Header[0])
}

func TestLoadErrors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(strings.NewReader("x"), "report.pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("legacy xls", func(t *testing.T) {
		_, err := Load(strings.NewReader("x"), "report.xls")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
	t.Run("empty csv", func(t *testing.T) {
		_, err := Load(strings.NewReader(""), "empty.csv")
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
	t.Run("bytes are not a workbook", func(t *testing.T) {
		_, err := Load(strings.NewReader("not a zip archive"), "fake.xlsx")
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}

func TestLoadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Nome", "Documento", "Nascimento"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", 12345678901, 33713}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"Beto"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	tbl, err := Load(bytes.NewReader(buf.Bytes()), "planilha.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []string{"Nome", "Documento", "Nascimento"}, tbl.Header)
	require.Len(t, tbl.Rows, 2, "blank row 3 is skipped")
	assert.Equal(t, "12345678901", tbl.Rows[0][1].String)
	assert.Equal(t, "33713", tbl.Rows[0][2].String)
	assert.Equal(t, "Beto", tbl.Rows[1][0].String)
	assert.False(t, tbl.Rows[1][1].Valid)
}

func TestBirthDateSerialsOnlyFromWorkbooks(t *testing.T) {
	tbl, err := Load(strings.NewReader("nome,data_nascimento,documento\nAna,1992,111\nBia,33713,222\n"), "pessoas.csv")
	require.NoError(t, err)
	assert.False(t, tbl.Workbook)
	f := NewFrame(tbl)
	assert.Empty(t, Coalesce(f.Row(0)).BirthDate, "bare year in text is not a date")
	assert.Empty(t, Coalesce(f.Row(1)).BirthDate, "serial in text is not a date")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]interface{}{"nome", "data_nascimento"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", 33713}))
	buf, err := wb.WriteToBuffer()
	require.NoError(t, err)

	tbl, err = Load(bytes.NewReader(buf.Bytes()), "pessoas.xlsx")
	require.NoError(t, err)
	assert.True(t, tbl.Workbook)
	assert.Equal(t, "19/04/1992", Coalesce(NewFrame(tbl).Row(0)).BirthDate)
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("a.csv"))
	assert.True(t, SupportedExtension("A.XLSX"))
	assert.True(t, SupportedExtension("a.xlsm"))
	assert.False(t, SupportedExtension("a.xls"))
	assert.False(t, SupportedExtension("a"))
}
