package datanorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Nome", "nome"},
		{"Data de Nascimento", "data_de_nascimento"},
		{"  Número de Inscrição ", "numero_de_inscricao"},
		{"Descrição da Situação Geradora do Acidente ou Doença", "descricao_da_situacao_geradora_do_acidente_ou_doenca"},
		{"Tipo/Categoria", "tipo_categoria"},
		{"dt.nascimento", "dt_nascimento"},
		{"CNPJ-Empregador", "cnpj_empregador"},
		{"Observações (1)", "observacoes_1"},
		{"a  -- b", "a_b"},
		{"__leading", "leading"},
		{"trailing__", "trailing"},
		{"E-mail!", "e_mail"},
		{"???", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeader(tt.in))
		})
	}
}

func TestNormalizeHeaderIdempotent(t *testing.T) {
	inputs := []string{
		"Nome Completo", "CPF", "Ação", "x__y", "  spaced out  ", "Tipo", "tipo_1",
		"ÀÉÎÕÜ ç", "a.b/c-d e", strings.Repeat("coluna muito longa ", 10), "日本語 column",
	}
	for _, in := range inputs {
		once := NormalizeHeader(in)
		assert.Equal(t, once, NormalizeHeader(once), "input %q", in)
	}
}

func TestNormalizeHeaderTruncatesToIdentifierLimit(t *testing.T) {
	got := NormalizeHeader(strings.Repeat("abc ", 40))
	assert.LessOrEqual(t, len(got), MaxIdentifierLen)
	assert.False(t, strings.HasSuffix(got, "_"))
}

func TestNormalizeHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"duplicate pair", []string{"Tipo", "Tipo"}, []string{"tipo", "tipo_1"}},
		{"triple", []string{"Obs", "obs", "OBS"}, []string{"obs", "obs_1", "obs_2"}},
		{"collision after normalization", []string{"Observações", "observacoes"}, []string{"observacoes", "observacoes_1"}},
		{"suffix already taken", []string{"a", "a_1", "a"}, []string{"a", "a_1", "a_2"}},
		{"blank headers", []string{"", "nome", "  "}, []string{"unnamed_0", "nome", "unnamed_2"}},
		{"no duplicates", []string{"Nome", "CPF"}, []string{"nome", "cpf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHeaders(tt.in))
		})
	}
}

func TestNormalizeHeadersDeterministic(t *testing.T) {
	in := []string{"Tipo", "Tipo", "Nome", "tipo"}
	first := NormalizeHeaders(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, NormalizeHeaders(in))
	}
	assert.Equal(t, []string{"tipo", "tipo_1", "nome", "tipo_2"}, first)
}

func TestNormalizeHeadersLongDuplicatesStayWithinLimit(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := NormalizeHeaders([]string{long, long})
	assert.Len(t, got[0], MaxIdentifierLen)
	assert.LessOrEqual(t, len(got[1]), MaxIdentifierLen)
	assert.NotEqual(t, got[0], got[1])
	assert.True(t, strings.HasSuffix(got[1], "_1"))
}
