package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/releve/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func table(source string, rows ...[]string) *model.Table {
	return &model.Table{
		Source:  source,
		Columns: []string{model.ColDate, model.ColDescription, model.ColExpense, model.ColIncome, model.ColAccount},
		Rows:    rows,
	}
}

func testConfig() Config {
	return Config{
		Window:     model.Window{Start: date(2024, 5, 13), End: date(2024, 5, 19)},
		InsertDate: time.Date(2024, 5, 19, 21, 4, 0, 0, time.UTC),
	}
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"PRLV SEPA  EDF\nCLIENTS   PARTICULIERS", "Prlv Sepa Edfclients Particuliers"},
		{"  CARTE X1234   LECLERC  ", "Carte X1234 Leclerc"},
		{"cheque emis 9355334", "Cheque Emis 9355334"},
		{"VIR l'EAU", "Vir L'Eau"},
		{"ÉPICERIE ÉTÉ", "Épicerie Été"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanDescription(tt.in), "CleanDescription(%q)", tt.in)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Cheque Emis 9355334 Dupont", "9355334"},
		{"Cheque Emis 9355334", "9355334"},
		{"Virement 9355334", ""},
		{"Cheque Emis 123456", ""},
		{"Cheque Emis 12345678 Then 7654321", "7654321"},
		{"Courses Leclerc", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseReference(tt.in), "ParseReference(%q)", tt.in)
	}
}

func TestIsExcluded(t *testing.T) {
	assert.True(t, IsExcluded("Remboursement De Pret Mars", []string{"REMBOURSEMENT DE PRET"}))
	assert.True(t, IsExcluded("Retrait Au Distributeur", []string{"Retrait"}))
	assert.False(t, IsExcluded("Courses Leclerc", []string{"REMBOURSEMENT DE PRET"}))
	assert.False(t, IsExcluded("Courses Leclerc", nil))
	assert.False(t, IsExcluded("Courses Leclerc", []string{""}))
}

func TestMapKeyword_LastMatchWins(t *testing.T) {
	mappings := []model.Mapping{
		{Keyword: "Leclerc", Target: "Courses"},
		{Keyword: "Carte", Target: "Carte Bancaire"},
		{Keyword: "Essence", Target: "Voiture"},
	}
	got, ok := MapKeyword("Carte X1234 Leclerc", mappings)
	require.True(t, ok)
	assert.Equal(t, "Carte Bancaire", got)

	_, ok = MapKeyword("Virement Salaire", mappings)
	assert.False(t, ok)
}

func TestMapKeyword_CaseSensitive(t *testing.T) {
	_, ok := MapKeyword("Courses Leclerc", []model.Mapping{{Keyword: "LECLERC", Target: "Courses"}})
	assert.False(t, ok)

	desc := CleanDescription("PRLV SEPA EDF CLIENTS")
	_, ok = MapKeyword(desc, []model.Mapping{{Keyword: "EDF", Target: "Énergie"}})
	assert.False(t, ok, "capitals never survive the description cleaning")
	got, ok := MapKeyword(desc, []model.Mapping{{Keyword: "Edf", Target: "Énergie"}})
	require.True(t, ok)
	assert.Equal(t, "Énergie", got)
}

func TestNormalize(t *testing.T) {
	cfg := testConfig()
	cfg.Exclusions = []string{"REMBOURSEMENT DE PRET"}
	cfg.Categories = []model.Mapping{{Keyword: "Leclerc", Target: "Courses"}}
	cfg.Organismes = []model.Mapping{{Keyword: "Cpam", Target: "Sécurité Sociale"}}

	n := New(cfg, zerolog.Nop())
	res, err := n.Normalize([]*model.Table{
		table("Crédit Agricole",
			[]string{"2024-05-14", "CARTE  LECLERC", "45.20", "", "Crédit Agricole"},
			[]string{"2024-05-15", "REMBOURSEMENT DE PRET MARS", "650.00", "0", "Crédit Agricole"},
			[]string{"2024-05-02", "ANCIENNE OPERATION", "12.00", "", "Crédit Agricole"},
		),
		table("Boursorama",
			[]string{"2024-05-16", "VIR CPAM\nREMBOURSEMENT", "0", "23.50", "Boursorama"},
			[]string{"2024-05-17", "CHEQUE EMIS 9355334", "120", "", "Boursorama"},
		),
	})
	require.NoError(t, err)

	require.Len(t, res.Current, 3)
	require.Len(t, res.Excluded, 1)
	require.Len(t, res.Anterior, 1)

	leclerc := res.Current[0]
	assert.Equal(t, "Carte Leclerc", leclerc.Description)
	assert.Equal(t, "Courses", leclerc.Category)
	assert.Equal(t, date(2024, 5, 1), leclerc.Month)
	assert.Equal(t, date(2024, 5, 19), leclerc.InsertDate)
	assert.Equal(t, model.FilterCurrent, leclerc.Filter)
	assert.Equal(t, "45.2", leclerc.Expense.Decimal.String())
	assert.True(t, leclerc.InitialExpense.Valid)
	assert.False(t, leclerc.Income.Valid)

	cpam := res.Current[1]
	assert.Equal(t, "Vir Cpamremboursement", cpam.Description)
	assert.False(t, cpam.Expense.Valid, "zero expense becomes null")
	assert.Equal(t, "Sécurité Sociale", cpam.Organisme)

	cheque := res.Current[2]
	assert.Equal(t, "9355334", cheque.Reference)

	assert.True(t, res.Excluded[0].Excluded)
	assert.False(t, res.Excluded[0].Income.Valid)

	assert.Equal(t, model.FilterPrevious, res.Anterior[0].Filter)
	assert.Len(t, res.All(), 5)
}

func TestNormalize_MissingColumn(t *testing.T) {
	tbl := &model.Table{
		Source:  "Boursorama",
		Columns: []string{model.ColDate, model.ColDescription, model.ColExpense, model.ColAccount},
		Rows:    [][]string{{"2024-05-14", "x", "1", "Boursorama"}},
	}
	_, err := New(testConfig(), zerolog.Nop()).Normalize([]*model.Table{tbl})
	require.Error(t, err)

	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Boursorama", se.Source)
	assert.Equal(t, model.ColIncome, se.Column)
}

func TestNormalize_BadCellAborts(t *testing.T) {
	_, err := New(testConfig(), zerolog.Nop()).Normalize([]*model.Table{
		table("Liquide", []string{"2024-05-14", "ok", "1.00", "", "Liquide"}),
		table("Crédit Agricole", []string{"14/05/2024", "bad date", "1.00", "", "Crédit Agricole"}),
	})
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Crédit Agricole", se.Source)
	assert.Equal(t, 1, se.Row)
	assert.Contains(t, err.Error(), "row 1")
}

func TestNormalize_BadAmount(t *testing.T) {
	_, err := New(testConfig(), zerolog.Nop()).Normalize([]*model.Table{
		table("Liquide", []string{"2024-05-14", "ok", "12,50", "", "Liquide"}),
	})
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.ColExpense, se.Column)
}

func TestNormalize_RaggedRow(t *testing.T) {
	_, err := New(testConfig(), zerolog.Nop()).Normalize([]*model.Table{
		table("Liquide", []string{"2024-05-14", "ok"}),
	})
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
}

func TestNormalize_Empty(t *testing.T) {
	res, err := New(testConfig(), zerolog.Nop()).Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Current)
}
