package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/releve/internal/model"
)

// ErrNoFile is returned by LatestFile when nothing matches.
var ErrNoFile = errors.New("no matching file")

// LatestFile returns the lexicographically greatest file in dir whose name
// ends with ext. Extract and ledger files carry a timestamp in their names,
// so this is also the most recent one.
func LatestFile(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(ext)) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%s files in %s: %w", ext, dir, ErrNoFile)
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Workbook is the spreadsheet form of the ledger. Rows are appended below the
// last non-empty row of one sheet.
type Workbook struct {
	path  string
	sheet string
	f     *excelize.File
}

// OpenWorkbook opens path and checks that sheet exists.
func OpenWorkbook(path, sheet string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		f.Close()
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, path)
	}
	return &Workbook{path: path, sheet: sheet, f: f}, nil
}

// LastRow returns the 1-based number of the last row holding a value, or 0
// for an empty sheet.
func (w *Workbook) LastRow() (int, error) {
	rows, err := w.f.GetRows(w.sheet)
	if err != nil {
		return 0, fmt.Errorf("reading sheet %q: %w", w.sheet, err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) != "" {
				return i + 1, nil
			}
		}
	}
	return 0, nil
}

// AppendRows writes records after the last non-empty row. Each new cell
// takes the style of the cell above it in the previous last row.
func (w *Workbook) AppendRows(records []*model.Transaction) (int, error) {
	last, err := w.LastRow()
	if err != nil {
		return 0, err
	}
	for i, r := range records {
		rowNum := last + 1 + i
		values := WorkbookRow(r)
		start, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return i, err
		}
		if err := w.f.SetSheetRow(w.sheet, start, &values); err != nil {
			return i, fmt.Errorf("writing row %d: %w", rowNum, err)
		}
		if last == 0 {
			continue
		}
		for col := 1; col <= len(values); col++ {
			if err := w.copyStyle(col, last, rowNum); err != nil {
				return i, err
			}
		}
	}
	return len(records), nil
}

func (w *Workbook) copyStyle(col, from, to int) error {
	src, err := excelize.CoordinatesToCellName(col, from)
	if err != nil {
		return err
	}
	dst, err := excelize.CoordinatesToCellName(col, to)
	if err != nil {
		return err
	}
	style, err := w.f.GetCellStyle(w.sheet, src)
	if err != nil {
		return fmt.Errorf("reading style of %s: %w", src, err)
	}
	if err := w.f.SetCellStyle(w.sheet, dst, dst, style); err != nil {
		return fmt.Errorf("styling %s: %w", dst, err)
	}
	return nil
}

// Save writes the workbook back to its file.
func (w *Workbook) Save() error {
	if err := w.f.SaveAs(w.path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", w.path, err)
	}
	return nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	return w.f.Close()
}

// WorkbookRow lays out a record in ledger sheet column order, the CSV export
// order without the bookkeeping columns.
func WorkbookRow(r *model.Transaction) []any {
	return []any{
		r.No,
		cellDate(r.Date),
		r.Description,
		cellAmount(r.Expense.Valid, r.Expense.Decimal.InexactFloat64()),
		cellAmount(r.Income.Valid, r.Income.Decimal.InexactFloat64()),
		r.Account,
		r.Category,
		cellDate(r.Month),
		cellDate(r.InsertDate),
		r.Reference,
		r.Organisme,
	}
}

func cellDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func cellAmount(valid bool, v float64) any {
	if !valid {
		return nil
	}
	return v
}
