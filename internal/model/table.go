package model

import (
	"fmt"
)

// Canonical column names produced by extractors.
const (
	ColDate        = "date"
	ColDescription = "description"
	ColExpense     = "expense"
	ColIncome      = "income"
	ColAccount     = "account"
	ColCategory    = "category"
)

// RequiredColumns must be present in every extract.
var RequiredColumns = []string{ColDate, ColDescription, ColExpense, ColIncome, ColAccount}

// Table is a raw extract: string cells under canonical column names.
// Dates are ISO formatted and amounts use a dot decimal separator.
type Table struct {
	Source  string
	Columns []string
	Rows    [][]string
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// SchemaError reports an extract that does not have the canonical shape.
type SchemaError struct {
	Source string
	Column string
	Row    int // 0 when the whole extract is affected
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("schema error in %s, row %d, column %q: %v", e.Source, e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("schema error in %s, column %q: %v", e.Source, e.Column, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }
