package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"

	"github.com/cleared-dev/releve/internal/model"
)

var boursoramaFile = regexp.MustCompile(`^export-operations.*\.csv$`)

const (
	bsColDate   = "dateOp"
	bsColLabel  = "label"
	bsColAmount = "amount"
)

// Boursorama reads the semicolon separated operation exports of Boursorama
// Banque. Amounts are signed with a decimal comma.
type Boursorama struct {
	Account    string
	Dir        string
	ArchiveDir string

	files []FileInfo
}

// Name returns the account the exports belong to.
func (b *Boursorama) Name() string { return b.Account }

// Extract reads every export found in Dir.
func (b *Boursorama) Extract(ctx context.Context) (*model.Table, error) {
	files, err := Scan(b.Dir, boursoramaFile)
	if err != nil {
		return nil, &SourceError{Source: b.Name(), Err: err}
	}
	if len(files) == 0 {
		return nil, &SourceError{Source: b.Name(), Err: fmt.Errorf("no export in %s: %w", b.Dir, ErrNoData)}
	}

	out := canonical(b.Name())
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.readFile(out, f); err != nil {
			return nil, err
		}
	}
	b.files = files
	return out, nil
}

func (b *Boursorama) readFile(out *model.Table, f FileInfo) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return &SourceError{Source: b.Name(), Err: err}
	}
	defer fh.Close()

	cr := csv.NewReader(fh)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return &model.SchemaError{Source: b.Name(), Err: fmt.Errorf("reading %s: %w", f.Name, err)}
	}
	if len(records) == 0 {
		return nil
	}

	idx := headerIndex(records[0])
	for _, col := range []string{bsColDate, bsColLabel, bsColAmount} {
		if _, ok := idx[col]; !ok {
			return &model.SchemaError{Source: b.Name(), Column: col, Err: fmt.Errorf("%s: required column missing", f.Name)}
		}
	}

	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rowNum := i + 2
		d, err := ParseDate(cell(rec, idx[bsColDate]))
		if err != nil {
			return &model.SchemaError{Source: b.Name(), Column: bsColDate, Row: rowNum, Err: err}
		}
		amount, err := ParseAmount(cell(rec, idx[bsColAmount]))
		if err != nil {
			return &model.SchemaError{Source: b.Name(), Column: bsColAmount, Row: rowNum, Err: err}
		}
		expense, income := "", ""
		if amount.Valid {
			if amount.Decimal.IsNegative() {
				expense = amount.Decimal.Neg().String()
			} else {
				income = amount.Decimal.String()
			}
		}
		out.Rows = append(out.Rows, []string{
			d.Format(model.DateFormat),
			cell(rec, idx[bsColLabel]),
			expense,
			income,
			b.Account,
			"",
		})
	}
	return nil
}

// Flush moves the exports read by the last Extract to the archive.
func (b *Boursorama) Flush() error {
	if err := Archive(b.files, b.ArchiveDir); err != nil {
		return err
	}
	b.files = nil
	return nil
}
