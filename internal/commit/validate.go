package commit

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/model"
)

// Rules checked before anything is written.
const (
	RuleUniqueSequence = "unique-sequence"
	RuleSingleAmount   = "single-amount"
	RulePositive       = "positive-amount"
	RuleCents          = "cents"
	RuleAccount        = "account"
	RuleDate           = "date"
)

// ValidationError describes a single rule violation.
type ValidationError struct {
	Rule        string
	No          int
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s [no %d]: %s", e.Rule, e.No, e.Description)
}

// Validate checks the rows a run is about to write. New rows must carry at
// most one positive amount in cents, a date and an account. Sequence numbers
// must be unique across new and updated rows.
func Validate(inserts, updates []*model.Transaction) []ValidationError {
	var errs []ValidationError

	seen := make(map[int]bool, len(inserts)+len(updates))
	for _, r := range append(append([]*model.Transaction{}, updates...), inserts...) {
		if seen[r.No] {
			errs = append(errs, ValidationError{
				Rule:        RuleUniqueSequence,
				No:          r.No,
				Description: "sequence number used twice",
			})
		}
		seen[r.No] = true
	}

	for _, r := range inserts {
		if r.Expense.Valid && r.Income.Valid {
			errs = append(errs, ValidationError{
				Rule:        RuleSingleAmount,
				No:          r.No,
				Description: fmt.Sprintf("both expense (%s) and income (%s) set", r.Expense.Decimal, r.Income.Decimal),
			})
		}
		for _, a := range []struct {
			name string
			v    decimal.NullDecimal
		}{{"expense", r.Expense}, {"income", r.Income}} {
			if !a.v.Valid {
				continue
			}
			if a.v.Decimal.IsNegative() {
				errs = append(errs, ValidationError{
					Rule:        RulePositive,
					No:          r.No,
					Description: fmt.Sprintf("%s %s is negative", a.name, a.v.Decimal),
				})
			}
			if !a.v.Decimal.Equal(a.v.Decimal.Round(2)) {
				errs = append(errs, ValidationError{
					Rule:        RuleCents,
					No:          r.No,
					Description: fmt.Sprintf("%s %s has more than 2 decimal places", a.name, a.v.Decimal),
				})
			}
		}
		if strings.TrimSpace(r.Account) == "" {
			errs = append(errs, ValidationError{Rule: RuleAccount, No: r.No, Description: "account missing"})
		}
		if r.Date.IsZero() && (r.Expense.Valid || r.Income.Valid) {
			errs = append(errs, ValidationError{Rule: RuleDate, No: r.No, Description: "date missing"})
		}
	}
	return errs
}

func joinValidation(errs []ValidationError) error {
	msgs := make([]string, len(errs))
	for i, ve := range errs {
		msgs[i] = ve.Error()
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}
