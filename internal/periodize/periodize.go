// Package periodize spreads large one-off amounts over twelve monthly
// installments.
package periodize

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/id"
	"github.com/cleared-dev/releve/internal/model"
)

// Installments is the number of rows a selected record is split into.
const Installments = 12

// Column selects which amount is split.
type Column string

const (
	Expense Column = "expense"
	Income  Column = "income"
)

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	switch Column(s) {
	case Expense, Income:
		return Column(s), nil
	}
	return "", fmt.Errorf("unknown amount column %q", s)
}

func (c Column) get(t *model.Transaction) decimal.NullDecimal {
	if c == Income {
		return t.Income
	}
	return t.Expense
}

func (c Column) set(t *model.Transaction, v decimal.NullDecimal) {
	if c == Income {
		t.Income = v
		return
	}
	t.Expense = v
}

// SplitAmount divides v into 12 parts rounded to the cent. The last part
// absorbs the rounding remainder so the parts always sum to v.
func SplitAmount(v decimal.Decimal) []decimal.Decimal {
	n := decimal.NewFromInt(Installments)
	part := v.Div(n).Round(2)
	parts := make([]decimal.Decimal, Installments)
	for i := 0; i < Installments-1; i++ {
		parts[i] = part
	}
	parts[Installments-1] = v.Sub(part.Mul(decimal.NewFromInt(Installments - 1)))
	return parts
}

// SplitMonths returns the first day of each month of year.
//
// The months always belong to the given (current) year, whatever the date of
// the original record.
func SplitMonths(year int) []time.Time {
	months := make([]time.Time, Installments)
	for i := range months {
		months[i] = time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
	}
	return months
}

// SelectOverThreshold returns the indices of rows whose amount in col is at
// least threshold.
func SelectOverThreshold(rows []*model.Transaction, col Column, threshold decimal.Decimal) []int {
	var idx []int
	for i, r := range rows {
		v := col.get(r)
		if v.Valid && v.Decimal.GreaterThanOrEqual(threshold) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Explode replaces every selected row by 12 installments of its col amount
// dated to the months of year. Other rows pass through unchanged. Selected
// rows without an amount in col are kept as they are.
func Explode(rows []*model.Transaction, selected []int, col Column, year int) []*model.Transaction {
	pick := make(map[int]bool, len(selected))
	for _, i := range selected {
		pick[i] = true
	}

	out := make([]*model.Transaction, 0, len(rows)+len(selected)*(Installments-1))
	months := SplitMonths(year)
	for i, r := range rows {
		v := col.get(r)
		if !pick[i] || !v.Valid {
			out = append(out, r)
			continue
		}
		key := id.NewSplitKey()
		for k, part := range SplitAmount(v.Decimal) {
			inst := r.Clone()
			col.set(inst, model.Amount(part))
			inst.Month = months[k]
			inst.SplitKey = key
			out = append(out, inst)
		}
	}
	return out
}
