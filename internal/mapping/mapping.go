// Package mapping loads the keyword lists that enrich imported records.
package mapping

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/cleared-dev/releve/internal/model"
	"github.com/cleared-dev/releve/internal/store"
)

// Source provides ordered keyword mappings.
type Source interface {
	Categories(ctx context.Context) ([]model.Mapping, error)
	Organismes(ctx context.Context) ([]model.Mapping, error)
}

// Set is a loaded pair of mapping lists.
type Set struct {
	Categories []model.Mapping
	Organismes []model.Mapping
}

// Load reads both lists from src.
func Load(ctx context.Context, src Source) (Set, error) {
	cats, err := src.Categories(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("loading category mappings: %w", err)
	}
	orgs, err := src.Organismes(ctx)
	if err != nil {
		return Set{}, fmt.Errorf("loading organisme mappings: %w", err)
	}
	return Set{Categories: cats, Organismes: orgs}, nil
}

// StoreSource reads the mapping tables of the database.
type StoreSource struct {
	Store *store.Store
}

func (s StoreSource) Categories(ctx context.Context) ([]model.Mapping, error) {
	return s.Store.Mappings(ctx, store.Categories)
}

func (s StoreSource) Organismes(ctx context.Context) ([]model.Mapping, error) {
	return s.Store.Mappings(ctx, store.Organismes)
}

// FileSource reads mappings from CSV files. An empty path yields no
// mappings.
type FileSource struct {
	CategoriesPath string
	OrganismesPath string
}

func (f FileSource) Categories(context.Context) ([]model.Mapping, error) {
	return readFile(f.CategoriesPath)
}

func (f FileSource) Organismes(context.Context) ([]model.Mapping, error) {
	return readFile(f.OrganismesPath)
}

func readFile(path string) ([]model.Mapping, error) {
	if path == "" {
		return nil, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file: %w", err)
	}
	defer fh.Close()
	return ReadCSV(fh)
}

// ReadCSV reads a two column keyword,target file. A first row reading
// keyword,<anything> is taken as a header. Order is kept.
func ReadCSV(r io.Reader) ([]model.Mapping, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var out []model.Mapping
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mapping CSV: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "keyword") {
			continue
		}
		if rec[0] == "" {
			return nil, fmt.Errorf("line %d: empty keyword", line)
		}
		out = append(out, model.Mapping{Keyword: rec[0], Target: strings.TrimSpace(rec[1])})
	}
	return out, nil
}

// WriteCSV writes mappings with a keyword,target header.
func WriteCSV(w io.Writer, mappings []model.Mapping) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"keyword", "target"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, m := range mappings {
		if err := cw.Write([]string{m.Keyword, m.Target}); err != nil {
			return fmt.Errorf("writing mapping %q: %w", m.Keyword, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Shouted returns the keywords containing a word written in capitals.
// Descriptions are title-cased before matching, so these keywords never
// match.
func Shouted(mappings []model.Mapping) []string {
	var out []string
	for _, m := range mappings {
		for _, w := range strings.Fields(m.Keyword) {
			if capitalized(w) {
				out = append(out, m.Keyword)
				break
			}
		}
	}
	return out
}

// capitalized reports whether w has at least two letters, all upper case.
func capitalized(w string) bool {
	letters := 0
	for _, r := range w {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 2
}
