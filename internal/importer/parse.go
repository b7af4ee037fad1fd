package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/cleared-dev/releve/internal/model"
)

// Layouts tried for dates, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	model.DateFormat,
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"01-02-06",
}

// ParseDate reads a date as found in bank exports: French day-first text,
// ISO text or an Excel serial number.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
		}
		return model.Day(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing date %q: unknown format", s)
}

// ParseAmount reads "1 234,56 €", "-45,20" or "45.2". Blank cells give an
// invalid NullDecimal.
func ParseAmount(s string) (decimal.NullDecimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '€':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if clean == "" || clean == "-" {
		return decimal.NullDecimal{}, nil
	}
	if strings.Contains(clean, ",") {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func formatAmount(n decimal.NullDecimal) string {
	if !n.Valid {
		return ""
	}
	return n.Decimal.String()
}

// headerIndex maps trimmed header names to their column.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
