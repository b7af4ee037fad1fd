// Package importer extracts raw rows from bank exports and the cash ledger
// into canonical tables.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cleared-dev/releve/internal/model"
)

// Extractor produces one canonical table per run and archives its inputs
// once the run succeeded.
type Extractor interface {
	Name() string
	// Extract returns a *SourceError when the source has nothing to offer
	// and a *model.SchemaError when its content is malformed.
	Extract(ctx context.Context) (*model.Table, error)
	Flush() error
}

// ErrNoData means the source exists but holds nothing to import.
var ErrNoData = errors.New("no data")

// SourceError marks a source that could not contribute. It is not fatal:
// the run carries on without that source.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Registry holds named extractors in registration order.
type Registry struct {
	byName map[string]Extractor
	order  []Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Extractor)}
}

// Register adds an extractor. Panics on a duplicate name.
func (r *Registry) Register(e Extractor) {
	key := strings.ToLower(e.Name())
	if _, ok := r.byName[key]; ok {
		panic("duplicate extractor: " + key)
	}
	r.byName[key] = e
	r.order = append(r.order, e)
}

// Get returns the extractor called name, or nil.
func (r *Registry) Get(name string) Extractor {
	return r.byName[strings.ToLower(name)]
}

// All returns the extractors in registration order.
func (r *Registry) All() []Extractor {
	return append([]Extractor(nil), r.order...)
}

// Select returns the named extractors, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]Extractor, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Extractor, 0, len(names))
	for _, n := range names {
		e := r.Get(n)
		if e == nil {
			return nil, fmt.Errorf("unknown source %q", n)
		}
		out = append(out, e)
	}
	return out, nil
}

// FileInfo describes a downloaded export.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// Scan returns the files of dir whose name matches pattern, sorted by name.
// A missing directory yields no files.
func Scan(dir string, pattern *regexp.Regexp) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Archive moves files into archiveDir, creating it if needed. A relative
// archiveDir is taken relative to each file's directory.
func Archive(files []FileInfo, archiveDir string) error {
	for _, f := range files {
		dstDir := archiveDir
		if !filepath.IsAbs(dstDir) {
			dstDir = filepath.Join(filepath.Dir(f.Path), archiveDir)
		}
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("creating archive dir: %w", err)
		}
		if err := os.Rename(f.Path, filepath.Join(dstDir, f.Name)); err != nil {
			return fmt.Errorf("moving %s to archive: %w", f.Name, err)
		}
	}
	return nil
}

// canonical returns an empty table with the canonical columns.
func canonical(source string) *model.Table {
	return &model.Table{
		Source: source,
		Columns: []string{
			model.ColDate, model.ColDescription, model.ColExpense,
			model.ColIncome, model.ColAccount, model.ColCategory,
		},
	}
}
