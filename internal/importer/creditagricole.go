package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/releve/internal/model"
)

// Crédit Agricole statement downloads are named CAyyyymmdd_hhmmss.
var caFile = regexp.MustCompile(`^CA\d{8}_\d{6}.*\.xlsx?$`)

const (
	caHeaderDate    = "Date"
	caHeaderLabel   = "Libellé"
	caHeaderDebit   = "Débit euros"
	caHeaderCredit  = "Crédit euros"
	caMaxXLSColumns = 16
)

// CreditAgricole reads the statement workbooks downloaded from Crédit
// Agricole. The data starts below the row whose first cell is "Date".
type CreditAgricole struct {
	Account    string
	Dir        string
	ArchiveDir string

	files []FileInfo
}

// Name returns the account the statements belong to.
func (c *CreditAgricole) Name() string { return c.Account }

// Extract reads every statement found in Dir.
func (c *CreditAgricole) Extract(ctx context.Context) (*model.Table, error) {
	files, err := Scan(c.Dir, caFile)
	if err != nil {
		return nil, &SourceError{Source: c.Name(), Err: err}
	}
	if len(files) == 0 {
		return nil, &SourceError{Source: c.Name(), Err: fmt.Errorf("no statement in %s: %w", c.Dir, ErrNoData)}
	}

	out := canonical(c.Name())
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readWorkbook(f.Path)
		if err != nil {
			return nil, &SourceError{Source: c.Name(), Err: err}
		}
		if err := c.appendStatement(out, f.Name, rows); err != nil {
			return nil, err
		}
	}
	c.files = files
	return out, nil
}

func (c *CreditAgricole) appendStatement(out *model.Table, file string, rows [][]string) error {
	start := -1
	for i, r := range rows {
		if cell(r, 0) == caHeaderDate {
			start = i
			break
		}
	}
	if start < 0 {
		return &model.SchemaError{Source: c.Name(), Column: caHeaderDate, Err: fmt.Errorf("%s: header row not found", file)}
	}
	idx := headerIndex(rows[start])
	cols := make(map[string]int, 3)
	for _, h := range []string{caHeaderLabel, caHeaderDebit, caHeaderCredit} {
		i, ok := idx[h]
		if !ok {
			return &model.SchemaError{Source: c.Name(), Column: h, Err: fmt.Errorf("%s: required column missing", file)}
		}
		cols[h] = i
	}

	for n, r := range rows[start+1:] {
		if blank(r) {
			continue
		}
		rowNum := start + n + 2
		d, err := ParseDate(cell(r, 0))
		if err != nil {
			return &model.SchemaError{Source: c.Name(), Column: caHeaderDate, Row: rowNum, Err: err}
		}
		debit, err := ParseAmount(cell(r, cols[caHeaderDebit]))
		if err != nil {
			return &model.SchemaError{Source: c.Name(), Column: caHeaderDebit, Row: rowNum, Err: err}
		}
		credit, err := ParseAmount(cell(r, cols[caHeaderCredit]))
		if err != nil {
			return &model.SchemaError{Source: c.Name(), Column: caHeaderCredit, Row: rowNum, Err: err}
		}
		if debit.Valid {
			debit.Decimal = debit.Decimal.Abs()
		}
		out.Rows = append(out.Rows, []string{
			d.Format(model.DateFormat),
			cell(r, cols[caHeaderLabel]),
			formatAmount(debit),
			formatAmount(credit),
			c.Account,
			"",
		})
	}
	return nil
}

// Flush moves the statements read by the last Extract to the archive.
func (c *CreditAgricole) Flush() error {
	if err := Archive(c.files, c.ArchiveDir); err != nil {
		return err
	}
	c.files = nil
	return nil
}

// readWorkbook returns the raw cells of the first sheet of an .xlsx or
// legacy .xls file. Dates come back as serial numbers or ISO text.
func readWorkbook(path string) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return readXLS(path)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func readXLS(path string) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, errors.New("no sheet found in " + path)
	}
	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		last := row.LastCol()
		if last > caMaxXLSColumns {
			last = caMaxXLSColumns
		}
		cells := make([]string, 0, last)
		for j := 0; j < last; j++ {
			cells = append(cells, row.Col(j))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
