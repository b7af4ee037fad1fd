package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/releve/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("nonexistent"))

	ca := &CreditAgricole{Account: "Crédit Agricole"}
	bs := &Boursorama{Account: "Boursorama"}
	r.Register(ca)
	r.Register(bs)
	assert.Same(t, ca, r.Get("crédit agricole"))
	assert.Equal(t, []Extractor{ca, bs}, r.All())

	sel, err := r.Select([]string{"Boursorama"})
	require.NoError(t, err)
	assert.Equal(t, []Extractor{bs}, sel)

	_, err = r.Select([]string{"Revolut"})
	assert.Error(t, err)

	assert.Panics(t, func() { r.Register(&Boursorama{Account: "BOURSORAMA"}) })
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	for _, name := range []string{"CA20240519_080000.xlsx", "CA20240512_080000.xlsx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(archive, "CA20240501_080000.xlsx"), []byte("data"), 0o644))

	files, err := Scan(dir, caFile)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "CA20240512_080000.xlsx", files[0].Name)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestScan_MissingDir(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "nope"), regexp.MustCompile(`.*`))
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export-operations-1.csv")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	err := Archive([]FileInfo{{Name: "export-operations-1.csv", Path: path}}, "archive")
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "archive", "export-operations-1.csv"))
	assert.NoError(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"45,20", "45.2", true},
		{"-1 200,00", "-1200", true},
		{"12,50 €", "12.5", true},
		{"1.234,56", "1234.56", true},
		{"45.2", "45.2", true},
		{"1 000,00", "1000", true},
		{"", "0", false},
		{"  ", "0", false},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.valid, got.Valid, tt.in)
		if tt.valid {
			assert.Equal(t, tt.want, got.Decimal.String(), tt.in)
		}
	}
	_, err := ParseAmount("douze")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"14/05/2024", "2024-05-14", "2024-05-14T00:00:00Z", "45426"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, date(2024, 5, 14), got, in)
	}
	_, err := ParseDate("mardi")
	assert.Error(t, err)
	_, err = ParseDate("")
	assert.Error(t, err)
}

func copyTestdata(t *testing.T, name, dir string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestBoursorama(t *testing.T) {
	dir := t.TempDir()
	copyTestdata(t, "export-operations-19-05-2024_08-00-00.csv", dir)

	b := &Boursorama{Account: "Boursorama", Dir: dir, ArchiveDir: "archive"}
	tbl, err := b.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Boursorama", tbl.Source)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"2024-05-14", "CARTE 13/05/24 LECLERC", "45.2", "", "Boursorama", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"2024-05-15", "VIR CPAM REMBOURSEMENT", "", "23.5", "Boursorama", ""}, tbl.Rows[1])
	assert.Equal(t, "1200", tbl.Rows[2][2])

	require.NoError(t, b.Flush())
	_, err = os.Stat(filepath.Join(dir, "archive", "export-operations-19-05-2024_08-00-00.csv"))
	assert.NoError(t, err)

	_, err = b.Extract(context.Background())
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestBoursorama_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	content := "dateOp;label;montant\n2024-05-14;CARTE;-1,00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export-operations-x.csv"), []byte(content), 0o644))

	_, err := (&Boursorama{Account: "Boursorama", Dir: dir}).Extract(context.Background())
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "amount", se.Column)
	assert.Equal(t, "Boursorama", se.Source)
}

func writeStatement(t *testing.T, dir, name string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &r))
	}
	require.NoError(t, f.SaveAs(filepath.Join(dir, name)))
}

func TestCreditAgricole(t *testing.T) {
	dir := t.TempDir()
	writeStatement(t, dir, "CA20240519_080000.xlsx", [][]any{
		{"Crédit Agricole"},
		{"Compte de Dépôt carte N° 123"},
		{},
		{"Date", "Libellé", "Débit euros", "Crédit euros"},
		{date(2024, 5, 14), "PRLV SEPA EDF\nCLIENTS", 32.43, nil},
		{date(2024, 5, 15), "VIREMENT SALAIRE", nil, 2100.5},
		{},
	})

	ca := &CreditAgricole{Account: "Crédit Agricole", Dir: dir, ArchiveDir: "archive"}
	tbl, err := ca.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"2024-05-14", "PRLV SEPA EDF\nCLIENTS", "32.43", "", "Crédit Agricole", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"2024-05-15", "VIREMENT SALAIRE", "", "2100.5", "Crédit Agricole", ""}, tbl.Rows[1])

	require.NoError(t, ca.Flush())
	files, err := Scan(dir, caFile)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCreditAgricole_NoHeader(t *testing.T) {
	dir := t.TempDir()
	writeStatement(t, dir, "CA20240519_080000.xlsx", [][]any{{"Opération", "Montant"}})

	_, err := (&CreditAgricole{Account: "Crédit Agricole", Dir: dir}).Extract(context.Background())
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Date", se.Column)
}

func TestCreditAgricole_NoFile(t *testing.T) {
	_, err := (&CreditAgricole{Account: "Crédit Agricole", Dir: t.TempDir()}).Extract(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
}

type fakeSheets struct {
	rows map[string][][]string
	err  error
}

func (f *fakeSheets) Values(_ context.Context, _ string, worksheet string) ([][]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[worksheet], nil
}

func TestCashSheet(t *testing.T) {
	reader := &fakeSheets{rows: map[string][][]string{
		"Liquide Vincent": {
			{"Date", "Description", "Dépense", "Recette", "Catégorie"},
			{"14/05/2024", "Boulangerie", "12,50 €", "", "Courses"},
			{"", "", "", "", ""},
			{"15/05/2024", "Retrait", "", "40,00 €", ""},
		},
	}}

	c := &CashSheet{Account: "Liquide Vincent", SpreadsheetID: "sheet-id", Reader: reader}
	tbl, err := c.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"2024-05-14", "Boulangerie", "12.5", "", "Liquide Vincent", "Courses"}, tbl.Rows[0])
	assert.Equal(t, []string{"2024-05-15", "Retrait", "", "40", "Liquide Vincent", ""}, tbl.Rows[1])

	_, err = (&CashSheet{Account: "Liquide Aurélie", Reader: reader}).Extract(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCashSheet_Unavailable(t *testing.T) {
	_, err := (&CashSheet{Account: "Liquide"}).Extract(context.Background())
	assert.True(t, errors.Is(err, ErrNoCredentials))

	_, err = (&CashSheet{Account: "Liquide", Reader: &fakeSheets{err: errors.New("403")}}).Extract(context.Background())
	var se *SourceError
	assert.ErrorAs(t, err, &se)
}

func TestCashSheet_BadDate(t *testing.T) {
	reader := &fakeSheets{rows: map[string][][]string{
		"Liquide": {
			{"Date", "Description", "Dépense", "Recette"},
			{"hier", "Boulangerie", "1", ""},
		},
	}}
	_, err := (&CashSheet{Account: "Liquide", Reader: reader}).Extract(context.Background())
	var se *model.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Row)
}

func TestFixture(t *testing.T) {
	tbl, err := (&Fixture{Today: date(2024, 5, 19)}).Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, "2024-05-19", tbl.Rows[0][0])
	assert.Equal(t, model.RequiredColumns, tbl.Columns[:5])
}

func TestNewGoogleSheets_NoKey(t *testing.T) {
	_, err := NewGoogleSheets(context.Background(), "")
	assert.True(t, errors.Is(err, ErrNoCredentials))
}
