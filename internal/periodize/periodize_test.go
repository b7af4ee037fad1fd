package periodize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/releve/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplitAmount_SumsToOriginal(t *testing.T) {
	for _, s := range []string{"1000", "1500", "0.05", "150.00", "999.99", "1234.57", "12", "0.13"} {
		v := dec(s)
		parts := SplitAmount(v)
		require.Len(t, parts, Installments)

		sum := decimal.Zero
		for _, p := range parts {
			sum = sum.Add(p)
			assert.True(t, p.Equal(p.Round(2)), "part %s of %s has more than 2 decimals", p, s)
		}
		assert.True(t, sum.Equal(v), "sum %s != %s", sum, s)
	}
}

func TestSplitAmount_RemainderOnLast(t *testing.T) {
	parts := SplitAmount(dec("1000"))
	assert.Equal(t, "83.33", parts[0].StringFixed(2))
	assert.Equal(t, "83.33", parts[10].StringFixed(2))
	assert.Equal(t, "83.37", parts[11].StringFixed(2))
}

func TestSplitMonths(t *testing.T) {
	months := SplitMonths(2024)
	require.Len(t, months, 12)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), months[0])
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), months[11])
}

func TestSelectOverThreshold(t *testing.T) {
	rows := []*model.Transaction{
		{Expense: model.Amount(dec("45.42"))},
		{Expense: model.Amount(dec("150"))},
		{Income: model.Amount(dec("1500"))},
		{Expense: model.Amount(dec("1000"))},
	}
	assert.Equal(t, []int{1, 3}, SelectOverThreshold(rows, Expense, dec("150")))
	assert.Equal(t, []int{2}, SelectOverThreshold(rows, Income, dec("150")))
}

func TestExplode(t *testing.T) {
	original := &model.Transaction{
		Date:           time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC),
		Description:    "Assurance Habitation",
		Expense:        model.Amount(dec("1000")),
		InitialExpense: model.Amount(dec("1000")),
		Account:        "Liquide",
		Month:          time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
	}
	other := &model.Transaction{Description: "Courses", Expense: model.Amount(dec("45.42"))}

	out := Explode([]*model.Transaction{other, original}, []int{1}, Expense, 2024)
	require.Len(t, out, 13)
	assert.Same(t, other, out[0])

	sum := decimal.Zero
	for k, inst := range out[1:] {
		assert.Equal(t, "Assurance Habitation", inst.Description)
		assert.Equal(t, original.Date, inst.Date)
		assert.Equal(t, time.Month(k+1), inst.Month.Month())
		assert.Equal(t, 2024, inst.Month.Year(), "months follow the current year")
		assert.Equal(t, out[1].SplitKey, inst.SplitKey)
		assert.True(t, inst.InitialExpense.Decimal.Equal(dec("1000")))
		sum = sum.Add(inst.Expense.Decimal)
	}
	assert.NotEmpty(t, out[1].SplitKey)
	assert.True(t, sum.Equal(dec("1000")))

	// The input row is left untouched.
	assert.True(t, original.Expense.Decimal.Equal(dec("1000")))
	assert.Empty(t, original.SplitKey)
}

func TestExplode_NothingSelected(t *testing.T) {
	rows := []*model.Transaction{{Income: model.Amount(dec("1500"))}}
	out := Explode(rows, nil, Income, 2024)
	assert.Equal(t, rows, out)
}

func TestExplode_SelectedWithoutAmount(t *testing.T) {
	rows := []*model.Transaction{{Income: model.Amount(dec("1500"))}}
	out := Explode(rows, []int{0}, Expense, 2024)
	require.Len(t, out, 1)
}

func TestParseColumn(t *testing.T) {
	c, err := ParseColumn("income")
	require.NoError(t, err)
	assert.Equal(t, Income, c)
	_, err = ParseColumn("balance")
	assert.Error(t, err)
}
