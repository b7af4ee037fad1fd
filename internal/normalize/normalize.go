// Package normalize turns raw extracts into canonical ledger records.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/model"
)

// Config carries everything the normalizer needs for one run. It is built
// once by the caller; the normalizer keeps no global state.
type Config struct {
	Exclusions []string
	Categories []model.Mapping
	Organismes []model.Mapping
	Window     model.Window
	InsertDate time.Time
}

// Result splits normalized rows by destination.
type Result struct {
	Current  []*model.Transaction // to reconcile and commit
	Excluded []*model.Transaction // matched an exclusion keyword
	Anterior []*model.Transaction // before the window, kept for audit
}

// All returns every row in Current, Excluded, Anterior order.
func (r Result) All() []*model.Transaction {
	all := make([]*model.Transaction, 0, len(r.Current)+len(r.Excluded)+len(r.Anterior))
	all = append(all, r.Current...)
	all = append(all, r.Excluded...)
	return append(all, r.Anterior...)
}

// Normalizer converts extractor tables into canonical records.
type Normalizer struct {
	cfg Config
	log zerolog.Logger
}

// New creates a Normalizer.
func New(cfg Config, log zerolog.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, log: log}
}

// Normalize concatenates the tables and normalizes every row. Any schema
// problem aborts the whole call.
func (n *Normalizer) Normalize(tables []*model.Table) (Result, error) {
	var rows []*model.Transaction
	for _, t := range tables {
		parsed, err := project(t)
		if err != nil {
			return Result{}, err
		}
		n.log.Debug().Str("source", t.Source).Int("rows", len(parsed)).Msg("extract projected")
		rows = append(rows, parsed...)
	}

	var res Result
	for _, r := range rows {
		n.apply(r)
		switch {
		case r.Excluded:
			res.Excluded = append(res.Excluded, r)
		case r.Filter == model.FilterPrevious:
			res.Anterior = append(res.Anterior, r)
		default:
			res.Current = append(res.Current, r)
		}
	}
	n.log.Info().
		Int("current", len(res.Current)).
		Int("excluded", len(res.Excluded)).
		Int("anterior", len(res.Anterior)).
		Msg("rows normalized")
	return res, nil
}

func (n *Normalizer) apply(r *model.Transaction) {
	r.Description = CleanDescription(r.Description)
	r.Month = model.MonthOf(r.Date)
	r.Reference = ParseReference(r.Description)
	r.Expense = dropZero(r.Expense)
	r.Income = dropZero(r.Income)
	r.InitialExpense = r.Expense
	r.InitialIncome = r.Income
	r.Excluded = IsExcluded(r.Description, n.cfg.Exclusions)
	if c, ok := MapKeyword(r.Description, n.cfg.Categories); ok {
		r.Category = c
	}
	if o, ok := MapKeyword(r.Description, n.cfg.Organismes); ok {
		r.Organisme = o
	}
	r.Filter = n.cfg.Window.Filter(r.Date)
	r.InsertDate = model.Day(n.cfg.InsertDate)
}

var (
	lineBreaks = regexp.MustCompile(`[\r\n]+`)
	spaceRuns  = regexp.MustCompile(`\s{2,}`)
	// Cheque numbers are exactly seven digits, not part of a longer run.
	chequeNumber = regexp.MustCompile(`(?:^|\D)(\d{7})(?:\D|$)`)
)

const chequePrefix = "Cheque Emis"

// CleanDescription strips line breaks, collapses whitespace and title-cases.
func CleanDescription(s string) string {
	s = lineBreaks.ReplaceAllString(s, "")
	s = spaceRuns.ReplaceAllString(s, " ")
	return TitleCase(strings.TrimSpace(s))
}

// TitleCase upper-cases every letter that follows a non-letter and
// lower-cases the others.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}

// ParseReference returns the cheque number of an issued-cheque description,
// or "" for any other description.
func ParseReference(description string) string {
	if !strings.HasPrefix(description, chequePrefix) {
		return ""
	}
	m := chequeNumber.FindStringSubmatch(description)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsExcluded reports whether description contains one of the keywords.
// Keywords are also tried in display casing so that configured upper-case
// bank labels still match cleaned descriptions.
func IsExcluded(description string, keywords []string) bool {
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(description, k) || strings.Contains(description, TitleCase(k)) {
			return true
		}
	}
	return false
}

// MapKeyword walks mappings in order and returns the target of the last one
// whose keyword occurs in description. Unlike IsExcluded the keyword is used
// as stored: it must be written in the title casing of cleaned descriptions
// ("Edf", not "EDF"). mapping.Shouted flags keywords that cannot match.
func MapKeyword(description string, mappings []model.Mapping) (string, bool) {
	target, found := "", false
	for _, m := range mappings {
		if m.Keyword != "" && strings.Contains(description, m.Keyword) {
			target, found = m.Target, true
		}
	}
	return target, found
}

func dropZero(n decimal.NullDecimal) decimal.NullDecimal {
	if n.Valid && n.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return n
}

// project reads a table into records. Missing columns and unreadable cells
// are schema errors.
func project(t *model.Table) ([]*model.Transaction, error) {
	idx := make(map[string]int, len(model.RequiredColumns))
	for _, col := range model.RequiredColumns {
		i := t.Index(col)
		if i < 0 {
			return nil, &model.SchemaError{Source: t.Source, Column: col, Err: errors.New("required column missing")}
		}
		idx[col] = i
	}
	catIdx := t.Index(model.ColCategory)

	out := make([]*model.Transaction, 0, len(t.Rows))
	for i, row := range t.Rows {
		rowNum := i + 1
		if len(row) != len(t.Columns) {
			return nil, &model.SchemaError{
				Source: t.Source, Row: rowNum,
				Err: fmt.Errorf("expected %d cells, got %d", len(t.Columns), len(row)),
			}
		}
		d, err := time.Parse(model.DateFormat, strings.TrimSpace(row[idx[model.ColDate]]))
		if err != nil {
			return nil, &model.SchemaError{Source: t.Source, Column: model.ColDate, Row: rowNum, Err: err}
		}
		expense, err := parseAmount(row[idx[model.ColExpense]])
		if err != nil {
			return nil, &model.SchemaError{Source: t.Source, Column: model.ColExpense, Row: rowNum, Err: err}
		}
		income, err := parseAmount(row[idx[model.ColIncome]])
		if err != nil {
			return nil, &model.SchemaError{Source: t.Source, Column: model.ColIncome, Row: rowNum, Err: err}
		}
		tx := &model.Transaction{
			Date:        d,
			Description: row[idx[model.ColDescription]],
			Expense:     expense,
			Income:      income,
			Account:     strings.TrimSpace(row[idx[model.ColAccount]]),
		}
		if catIdx >= 0 {
			tx.Category = strings.TrimSpace(row[catIdx])
		}
		out = append(out, tx)
	}
	return out, nil
}

func parseAmount(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
