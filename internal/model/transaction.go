package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateFilter tells whether a record falls inside the import window.
type DateFilter string

const (
	FilterCurrent  DateFilter = "Current"
	FilterPrevious DateFilter = "Previous"
)

// Transaction is the canonical ledger row. The same struct is used for
// candidates produced by an import run and for rows read back from the store.
type Transaction struct {
	No             int       // sequence number, unique in the ledger
	Date           time.Time //nolint:revive // plain field name is clearest
	Description    string
	Expense        decimal.NullDecimal // positive, null when absent
	Income         decimal.NullDecimal // positive, null when absent
	InitialExpense decimal.NullDecimal // snapshot taken before reconciliation
	InitialIncome  decimal.NullDecimal
	Account        string
	Category       string // "" = none
	Reference      string // cheque number, "" for anything else
	Organisme      string
	Month          time.Time // first day of the month of Date
	InsertDate     time.Time
	DateOutOfBound bool
	UserLabel      string
	ParentNo       *int
	JobKey         string

	// Not persisted.
	Excluded bool
	Filter   DateFilter
	SplitKey string // shared by the installments of one periodized row
}

// IsCheque reports whether the record carries a cheque number.
func (t *Transaction) IsCheque() bool {
	return t.Reference != ""
}

// Net returns income minus expense, absent values counting as zero.
func (t *Transaction) Net() decimal.Decimal {
	return valueOf(t.Income).Sub(valueOf(t.Expense))
}

// InitialNet is Net computed on the snapshot columns.
func (t *Transaction) InitialNet() decimal.Decimal {
	return valueOf(t.InitialIncome).Sub(valueOf(t.InitialExpense))
}

// Clone returns a deep copy of t.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.ParentNo != nil {
		p := *t.ParentNo
		c.ParentNo = &p
	}
	return &c
}

// MonthOf returns the first calendar day of d's month.
func MonthOf(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Amount builds a valid NullDecimal, or an absent one when d is zero.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func valueOf(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}
