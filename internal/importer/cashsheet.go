package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/cleared-dev/releve/internal/model"
)

// ErrNoCredentials is returned when the cash sheet cannot be reached for
// lack of a service account key.
var ErrNoCredentials = errors.New("no service account key configured")

const (
	cashColDate        = "Date"
	cashColDescription = "Description"
	cashColExpense     = "Dépense"
	cashColIncome      = "Recette"
	cashColCategory    = "Catégorie"
)

// SheetReader returns the displayed values of one worksheet, header first.
type SheetReader interface {
	Values(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error)
}

// CashSheet reads the cash spending ledger kept in a shared spreadsheet.
// Each account has its own worksheet named after it.
type CashSheet struct {
	Account       string
	SpreadsheetID string
	// Reader is nil when no credentials are available.
	Reader SheetReader
}

// Name returns the account, which is also the worksheet title.
func (c *CashSheet) Name() string { return c.Account }

// Extract reads the account's worksheet.
func (c *CashSheet) Extract(ctx context.Context) (*model.Table, error) {
	if c.Reader == nil {
		return nil, &SourceError{Source: c.Name(), Err: ErrNoCredentials}
	}
	rows, err := c.Reader.Values(ctx, c.SpreadsheetID, c.Account)
	if err != nil {
		return nil, &SourceError{Source: c.Name(), Err: err}
	}
	if len(rows) < 2 {
		return nil, &SourceError{Source: c.Name(), Err: ErrNoData}
	}

	idx := headerIndex(rows[0])
	for _, col := range []string{cashColDate, cashColDescription, cashColExpense, cashColIncome} {
		if _, ok := idx[col]; !ok {
			return nil, &model.SchemaError{Source: c.Name(), Column: col, Err: errors.New("required column missing")}
		}
	}
	catCol := -1
	if i, ok := idx[cashColCategory]; ok {
		catCol = i
	}

	out := canonical(c.Name())
	for i, r := range rows[1:] {
		if blank(r) {
			continue
		}
		rowNum := i + 2
		d, err := ParseDate(cell(r, idx[cashColDate]))
		if err != nil {
			return nil, &model.SchemaError{Source: c.Name(), Column: cashColDate, Row: rowNum, Err: err}
		}
		expense, err := ParseAmount(cell(r, idx[cashColExpense]))
		if err != nil {
			return nil, &model.SchemaError{Source: c.Name(), Column: cashColExpense, Row: rowNum, Err: err}
		}
		income, err := ParseAmount(cell(r, idx[cashColIncome]))
		if err != nil {
			return nil, &model.SchemaError{Source: c.Name(), Column: cashColIncome, Row: rowNum, Err: err}
		}
		out.Rows = append(out.Rows, []string{
			d.Format(model.DateFormat),
			cell(r, idx[cashColDescription]),
			formatAmount(expense),
			formatAmount(income),
			c.Account,
			cell(r, catCol),
		})
	}
	return out, nil
}

// Flush is a no-op: the sheet stays where it is.
func (c *CashSheet) Flush() error { return nil }

// GoogleSheets reads worksheets through the Sheets API.
type GoogleSheets struct {
	srv *sheets.Service
}

// NewGoogleSheets authenticates with a service account key file.
func NewGoogleSheets(ctx context.Context, keyFile string) (*GoogleSheets, error) {
	if keyFile == "" {
		return nil, ErrNoCredentials
	}
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(keyFile),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return &GoogleSheets{srv: srv}, nil
}

// Values implements SheetReader.
func (g *GoogleSheets) Values(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error) {
	rng := "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
	resp, err := g.srv.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading worksheet %q: %w", worksheet, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = fmt.Sprint(v)
		}
	}
	return rows, nil
}
