// Package ledger reads and writes the file forms of the ledger: CSV exports
// and the spreadsheet workbook.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/model"
)

// Header is the CSV header of ledger exports.
const Header = "no,date,description,expense,income,account,category,month,insert_date,reference,organisme,user_label,date_out_of_bound,parent_no"

const (
	numFields     = 14
	colNo         = 0
	colDate       = 1
	colDesc       = 2
	colExpense    = 3
	colIncome     = 4
	colAccount    = 5
	colCategory   = 6
	colMonth      = 7
	colInsertDate = 8
	colReference  = 9
	colOrganisme  = 10
	colUserLabel  = 11
	colOutOfBound = 12
	colParentNo   = 13
)

// WriteRecords writes records to w, header included.
func WriteRecords(w io.Writer, records []*model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range records {
		if err := cw.Write(MarshalRecord(r)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecords reads a ledger export written by WriteRecords.
func ReadRecords(r io.Reader) ([]*model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var out []*model.Transaction
	for i, row := range rows[1:] {
		rec, err := UnmarshalRecord(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarshalRecord converts a record to a CSV row.
func MarshalRecord(r *model.Transaction) []string {
	row := make([]string, numFields)
	row[colNo] = strconv.Itoa(r.No)
	row[colDate] = formatDate(r.Date)
	row[colDesc] = r.Description
	row[colExpense] = formatAmount(r.Expense)
	row[colIncome] = formatAmount(r.Income)
	row[colAccount] = r.Account
	row[colCategory] = r.Category
	row[colMonth] = formatDate(r.Month)
	row[colInsertDate] = formatDate(r.InsertDate)
	row[colReference] = r.Reference
	row[colOrganisme] = r.Organisme
	row[colUserLabel] = r.UserLabel
	row[colOutOfBound] = strconv.FormatBool(r.DateOutOfBound)
	if r.ParentNo != nil {
		row[colParentNo] = strconv.Itoa(*r.ParentNo)
	}
	return row
}

// UnmarshalRecord converts a CSV row to a record.
func UnmarshalRecord(row []string) (*model.Transaction, error) {
	if len(row) != numFields {
		return nil, fmt.Errorf("expected %d fields, got %d", numFields, len(row))
	}
	no, err := strconv.Atoi(row[colNo])
	if err != nil {
		return nil, fmt.Errorf("parsing no %q: %w", row[colNo], err)
	}
	r := &model.Transaction{
		No:          no,
		Description: row[colDesc],
		Account:     row[colAccount],
		Category:    row[colCategory],
		Reference:   row[colReference],
		Organisme:   row[colOrganisme],
		UserLabel:   row[colUserLabel],
	}
	for _, f := range []struct {
		col int
		dst *time.Time
	}{{colDate, &r.Date}, {colMonth, &r.Month}, {colInsertDate, &r.InsertDate}} {
		if *f.dst, err = parseDate(row[f.col]); err != nil {
			return nil, err
		}
	}
	if r.Expense, err = parseAmount(row[colExpense]); err != nil {
		return nil, err
	}
	if r.Income, err = parseAmount(row[colIncome]); err != nil {
		return nil, err
	}
	r.InitialExpense, r.InitialIncome = r.Expense, r.Income
	if row[colOutOfBound] != "" {
		if r.DateOutOfBound, err = strconv.ParseBool(row[colOutOfBound]); err != nil {
			return nil, fmt.Errorf("parsing date_out_of_bound %q: %w", row[colOutOfBound], err)
		}
	}
	if row[colParentNo] != "" {
		p, err := strconv.Atoi(row[colParentNo])
		if err != nil {
			return nil, fmt.Errorf("parsing parent_no %q: %w", row[colParentNo], err)
		}
		r.ParentNo = &p
	}
	return r, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.DateFormat)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

func formatAmount(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.StringFixed(2)
}

func parseAmount(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return model.Amount(d), nil
}
