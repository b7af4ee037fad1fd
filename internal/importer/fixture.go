package importer

import (
	"context"
	"time"

	"github.com/cleared-dev/releve/internal/model"
)

// Fixture is a synthetic source used by --test-mode. It covers a plain
// expense, a plain income and two rows large enough to be periodized.
type Fixture struct {
	Today time.Time
}

// Name returns the fixture source name.
func (f *Fixture) Name() string { return "Test Extractor" }

// Extract returns the synthetic rows dated today.
func (f *Fixture) Extract(context.Context) (*model.Table, error) {
	day := f.Today.Format(model.DateFormat)
	out := canonical(f.Name())
	out.Rows = [][]string{
		{day, "Dépense de test", "45.42", "", "Crédit Agricole", ""},
		{day, "Recette de test", "", "32.43", "Boursorama", ""},
		{day, "Dépense à splitter", "1000", "", "Liquide", ""},
		{day, "Recette à splitter", "", "1500", "Liquide", ""},
	}
	return out, nil
}

// Flush is a no-op.
func (f *Fixture) Flush() error { return nil }
