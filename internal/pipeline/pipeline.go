// Package pipeline runs one import from the downloaded exports to the
// chosen ledger: extraction, normalization, optional periodization, then a
// spreadsheet append, a plain database insert or a reconciled commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/releve/internal/commit"
	"github.com/cleared-dev/releve/internal/config"
	"github.com/cleared-dev/releve/internal/cursor"
	"github.com/cleared-dev/releve/internal/id"
	"github.com/cleared-dev/releve/internal/importer"
	"github.com/cleared-dev/releve/internal/ledger"
	"github.com/cleared-dev/releve/internal/logger"
	"github.com/cleared-dev/releve/internal/mapping"
	"github.com/cleared-dev/releve/internal/model"
	"github.com/cleared-dev/releve/internal/normalize"
	"github.com/cleared-dev/releve/internal/periodize"
	"github.com/cleared-dev/releve/internal/reconcile"
	"github.com/cleared-dev/releve/internal/runlog"
)

// Mode selects where the normalized rows go.
type Mode string

const (
	ModeSpreadsheet Mode = "spreadsheet" // append to the latest ledger workbook
	ModeDatabase    Mode = "database"    // plain insert
	ModeRefined     Mode = "refined"     // reconcile, then commit
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSpreadsheet, ModeDatabase, ModeRefined:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want spreadsheet, database or refined)", s)
}

// Stage names a step of the run for error reporting.
type Stage string

const (
	StageCursor         Stage = "cursor"
	StageExtraction     Stage = "extraction"
	StageNormalization  Stage = "normalization"
	StagePeriodization  Stage = "periodization"
	StageExport         Stage = "export"
	StageReconciliation Stage = "reconciliation"
	StageCommit         Stage = "commit"
	StageArchive        Stage = "archive"
	StageDone           Stage = "done"
)

// StageError is a run that stopped at Stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Options are the per-run switches of the import command.
type Options struct {
	Mode          Mode
	IntervalType  model.IntervalType
	IntervalCount int
	// Pinned keeps the interval start instead of resuming after the last
	// insert date.
	Pinned bool
	// PerAccount reconciles each source separately against its own
	// account, carrying the sequence across sources.
	PerAccount bool
	Simulate   bool
	CSVOnly    bool
	NoArchive  bool
	Periodize  bool
	Now        time.Time
}

// Store is what the pipeline needs from the ledger database.
type Store interface {
	commit.Store
	cursor.Source
}

// Deps wires a Pipeline. Store may be nil in spreadsheet mode and
// Mappings may be nil when no mapping is configured.
type Deps struct {
	Config     *config.Config
	Store      Store
	Mappings   mapping.Source
	Extractors []importer.Extractor
	WorkDir    string
	Log        zerolog.Logger
}

// Pipeline runs imports.
type Pipeline struct {
	cfg        *config.Config
	store      Store
	mappings   mapping.Source
	extractors []importer.Extractor
	workDir    string
	log        zerolog.Logger
}

// New creates a Pipeline.
func New(d Deps) *Pipeline {
	return &Pipeline{
		cfg:        d.Config,
		store:      d.Store,
		mappings:   d.Mappings,
		extractors: d.Extractors,
		workDir:    d.WorkDir,
		log:        logger.Component(d.Log, "pipeline"),
	}
}

// Report summarizes a run.
type Report struct {
	Jobs       []string
	Mode       Mode
	Window     model.Window
	StartIndex int
	NextIndex  int
	Sources    int // sources that returned an extract
	Current    int
	Excluded   int
	Anterior   int
	Inserted   int
	Updated    int
	Matched    int
	Shifted    int
	Exports    []string
	Simulated  bool
	Stage      Stage // last stage reached
}

// batch is one normalized extract ready for a sink.
type batch struct {
	current  []*model.Transaction
	excluded []*model.Transaction
	anterior []*model.Transaction
}

// Position returns where an import in mode would start.
func (p *Pipeline) Position(ctx context.Context, opts Options) (cursor.Position, error) {
	window, err := model.NewWindow(opts.IntervalType, opts.IntervalCount, opts.Now)
	if err != nil {
		return cursor.Position{}, &StageError{Stage: StageCursor, Err: err}
	}
	return p.position(ctx, opts.Mode, window, opts.Pinned, ""), nil
}

func (p *Pipeline) position(ctx context.Context, mode Mode, window model.Window, pinned bool, account string) cursor.Position {
	log := logger.Component(p.log, "cursor")
	if mode == ModeSpreadsheet || p.store == nil {
		return cursor.FromFolder(p.path(p.cfg.Extracts.Folder), window, pinned, log)
	}
	return cursor.FromStore(ctx, p.store, window, pinned, account, log)
}

// Run performs one import. The run is recorded in the import log whatever
// its outcome.
func (p *Pipeline) Run(ctx context.Context, opts Options) (rep Report, err error) {
	rep.Mode = opts.Mode
	defer func() { p.record(opts, rep, err) }()

	if err := p.check(opts); err != nil {
		return rep, err
	}
	window, err := model.NewWindow(opts.IntervalType, opts.IntervalCount, opts.Now)
	if err != nil {
		return rep, &StageError{Stage: StageCursor, Err: err}
	}

	rep.Stage = StageNormalization
	maps, err := p.loadMappings(ctx)
	if err != nil {
		return rep, &StageError{Stage: rep.Stage, Err: err}
	}

	if opts.PerAccount {
		err = p.runPerAccount(ctx, opts, window, maps, &rep)
	} else {
		err = p.runAll(ctx, opts, window, maps, &rep)
	}
	if err != nil {
		return rep, err
	}
	rep.Simulated = opts.Simulate
	rep.Stage = StageDone
	p.log.Info().
		Strs("jobs", rep.Jobs).
		Int("current", rep.Current).
		Int("inserted", rep.Inserted).
		Int("updated", rep.Updated).
		Bool("simulated", rep.Simulated).
		Msg("import finished")
	return rep, nil
}

func (p *Pipeline) check(opts Options) error {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return err
	}
	if opts.PerAccount && opts.Mode != ModeRefined {
		return errors.New("per-account import needs the refined mode")
	}
	if p.store == nil && opts.Mode != ModeSpreadsheet {
		return fmt.Errorf("%s mode needs a database", opts.Mode)
	}
	return nil
}

// runAll extracts every source, then writes one batch to the sink.
func (p *Pipeline) runAll(ctx context.Context, opts Options, window model.Window, maps mapping.Set, rep *Report) error {
	rep.Stage = StageCursor
	pos := p.position(ctx, opts.Mode, window, opts.Pinned, "")
	rep.Window, rep.StartIndex, rep.NextIndex = pos.Window, pos.StartIndex, pos.StartIndex

	rep.Stage = StageExtraction
	tables, used, err := p.extract(ctx, p.extractors)
	if err != nil {
		return &StageError{Stage: rep.Stage, Err: err}
	}
	rep.Sources = len(tables)
	if len(tables) == 0 {
		p.log.Info().Msg("0 rows to import")
		return nil
	}

	b, err := p.prepare(tables, pos, maps, opts, rep)
	if err != nil {
		return err
	}

	rep.Stage = StageExport
	key := id.NewJobKey(opts.Now)
	paths, err := p.export(key, b, opts.Simulate)
	if err != nil {
		return &StageError{Stage: rep.Stage, Err: err}
	}
	rep.Exports = paths
	rep.NextIndex = pos.StartIndex + len(b.current)

	if opts.CSVOnly {
		rep.Jobs = append(rep.Jobs, key)
	} else {
		req := commit.Request{
			Candidates: b.current,
			StartIndex: pos.StartIndex,
			Window:     pos.Window,
			Simulate:   opts.Simulate,
			Job:        model.Job{Key: key, CreatedAt: opts.Now},
		}
		if err := p.write(ctx, opts.Mode, req, rep); err != nil {
			return err
		}
	}

	return p.archive(opts, used, rep)
}

// runPerAccount reconciles each source against its own account. Each
// source resumes after its account's last insert date and gets its own job.
func (p *Pipeline) runPerAccount(ctx context.Context, opts Options, window model.Window, maps mapping.Set, rep *Report) error {
	rep.Stage = StageCursor
	base := p.position(ctx, opts.Mode, window, opts.Pinned, "")
	rep.Window, rep.StartIndex, rep.NextIndex = base.Window, base.StartIndex, base.StartIndex
	next := base.StartIndex

	for _, ex := range p.extractors {
		log := p.log.With().Str("source", ex.Name()).Logger()

		rep.Stage = StageExtraction
		tables, used, err := p.extract(ctx, []importer.Extractor{ex})
		if err != nil {
			return &StageError{Stage: rep.Stage, Err: err}
		}
		if len(tables) == 0 {
			log.Info().Msg("0 rows to import")
			continue
		}
		rep.Sources++

		rep.Stage = StageCursor
		pos := p.position(ctx, opts.Mode, window, opts.Pinned, ex.Name())
		pos.StartIndex = next

		b, err := p.prepare(tables, pos, maps, opts, rep)
		if err != nil {
			return err
		}
		req := commit.Request{
			Candidates: b.current,
			StartIndex: next,
			Window:     pos.Window,
			Account:    ex.Name(),
			Simulate:   opts.Simulate,
			Job:        model.Job{Key: id.NewJobKey(opts.Now), CreatedAt: opts.Now},
		}
		if err := p.write(ctx, opts.Mode, req, rep); err != nil {
			return err
		}
		next = rep.NextIndex
		if err := p.archive(opts, used, rep); err != nil {
			return err
		}
		log.Info().Int("next_index", next).Msg("account imported")
	}
	return nil
}

// extract runs the extractors. Unavailable sources are skipped; any other
// failure, schema problems included, stops the run.
func (p *Pipeline) extract(ctx context.Context, exs []importer.Extractor) ([]*model.Table, []importer.Extractor, error) {
	var (
		tables []*model.Table
		used   []importer.Extractor
	)
	for _, ex := range exs {
		t, err := ex.Extract(ctx)
		var se *importer.SourceError
		switch {
		case errors.As(err, &se):
			p.log.Warn().Err(err).Str("source", ex.Name()).Msg("source unavailable, skipped")
			continue
		case err != nil:
			return nil, nil, err
		}
		p.log.Info().Str("source", ex.Name()).Int("rows", t.Len()).Msg("extract found")
		tables = append(tables, t)
		used = append(used, ex)
	}
	return tables, used, nil
}

// prepare normalizes tables, periodizes if asked and numbers the current
// rows from pos.StartIndex.
func (p *Pipeline) prepare(tables []*model.Table, pos cursor.Position, maps mapping.Set, opts Options, rep *Report) (batch, error) {
	rep.Stage = StageNormalization
	n := normalize.New(normalize.Config{
		Exclusions: p.cfg.Exclusions,
		Categories: maps.Categories,
		Organismes: maps.Organismes,
		Window:     pos.Window,
		InsertDate: opts.Now,
	}, logger.Component(p.log, "normalize"))
	res, err := n.Normalize(tables)
	if err != nil {
		return batch{}, &StageError{Stage: rep.Stage, Err: err}
	}
	b := batch{current: res.Current, excluded: res.Excluded, anterior: res.Anterior}

	if opts.Periodize {
		rep.Stage = StagePeriodization
		col, err := periodize.ParseColumn(p.cfg.Periodization.Column)
		if err != nil {
			return batch{}, &StageError{Stage: rep.Stage, Err: err}
		}
		threshold := decimal.NewFromFloat(p.cfg.Periodization.Threshold)
		selected := periodize.SelectOverThreshold(b.current, col, threshold)
		b.current = periodize.Explode(b.current, selected, col, opts.Now.Year())
		p.log.Info().Int("split", len(selected)).Str("column", string(col)).Msg("rows periodized")
	}

	reconcile.Number(b.current, pos.StartIndex)
	rep.Current += len(b.current)
	rep.Excluded += len(b.excluded)
	rep.Anterior += len(b.anterior)
	return b, nil
}

// write sends one batch to the sink of mode.
func (p *Pipeline) write(ctx context.Context, mode Mode, req commit.Request, rep *Report) error {
	switch mode {
	case ModeSpreadsheet:
		rep.Stage = StageCommit
		n, err := p.appendWorkbook(req.Candidates, req.Simulate)
		if err != nil {
			return &StageError{Stage: rep.Stage, Err: err}
		}
		rep.Jobs = append(rep.Jobs, req.Job.Key)
		rep.Inserted += n
		rep.NextIndex = req.StartIndex + len(req.Candidates)
		return nil

	case ModeDatabase:
		rep.Stage = StageCommit
		if len(req.Candidates) == 0 {
			return nil
		}
		cr, err := p.coordinator().Insert(ctx, req)
		if err != nil {
			return &StageError{Stage: rep.Stage, Err: err}
		}
		p.addCommit(cr, rep)
		return nil

	default:
		rep.Stage = StageReconciliation
		cr, err := p.coordinator().Run(ctx, req)
		if err != nil {
			return &StageError{Stage: rep.Stage, Err: err}
		}
		p.addCommit(cr, rep)
		return nil
	}
}

func (p *Pipeline) coordinator() *commit.Coordinator {
	engine := reconcile.New(logger.Component(p.log, "reconcile"))
	return commit.New(p.store, engine, logger.Component(p.log, "commit"))
}

func (p *Pipeline) addCommit(cr commit.Report, rep *Report) {
	rep.Jobs = append(rep.Jobs, cr.Job.Key)
	rep.Inserted += cr.Inserted
	rep.Updated += cr.Updated
	rep.Matched += cr.Matched
	rep.Shifted += cr.Shifted
	rep.NextIndex = cr.NextIndex
}

// appendWorkbook appends rows to the latest ledger workbook. In simulation
// the workbook is not saved.
func (p *Pipeline) appendWorkbook(rows []*model.Transaction, simulate bool) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	path, err := ledger.LatestFile(p.path(p.cfg.Ledger.Folder), ".xlsx")
	if err != nil {
		return 0, err
	}
	wb, err := ledger.OpenWorkbook(path, p.cfg.Ledger.Sheet)
	if err != nil {
		return 0, err
	}
	defer wb.Close()

	n, err := wb.AppendRows(rows)
	if err != nil {
		return 0, err
	}
	if simulate {
		p.log.Info().Str("workbook", path).Int("rows", n).Msg("simulation, workbook left unchanged")
		return n, nil
	}
	if err := wb.Save(); err != nil {
		return 0, err
	}
	p.log.Info().Str("workbook", path).Int("rows", n).Msg("rows appended to workbook")
	return n, nil
}

// Export subfolders of the extracts folder. Current rows stay at the top
// level so that the latest export also carries the cursor; simulated runs
// export aside so that they do not move it.
const (
	excludedDir  = "excluded"
	anteriorDir  = "anterior"
	simulatedDir = "simulated"
)

// export writes the three row sets as CSV files named after the job.
func (p *Pipeline) export(key string, b batch, simulate bool) ([]string, error) {
	root := p.path(p.cfg.Extracts.Folder)
	if simulate {
		root = filepath.Join(root, simulatedDir)
	}
	sets := []struct {
		dir  string
		rows []*model.Transaction
	}{
		{root, b.current},
		{filepath.Join(root, excludedDir), b.excluded},
		{filepath.Join(root, anteriorDir), b.anterior},
	}
	var paths []string
	for _, s := range sets {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating export dir: %w", err)
		}
		path := filepath.Join(s.dir, key+".csv")
		if err := writeExport(path, s.rows); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	p.log.Info().Str("dir", root).Str("job", key).Msg("rows exported")
	return paths, nil
}

func writeExport(path string, rows []*model.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}
	if err := ledger.WriteRecords(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// archive flushes the sources that produced an extract, unless the run is
// a simulation or archiving is off.
func (p *Pipeline) archive(opts Options, used []importer.Extractor, rep *Report) error {
	if opts.Simulate || opts.NoArchive || !p.cfg.Archive.Enabled {
		return nil
	}
	rep.Stage = StageArchive
	for _, ex := range used {
		if err := ex.Flush(); err != nil {
			return &StageError{Stage: rep.Stage, Err: fmt.Errorf("archiving %s: %w", ex.Name(), err)}
		}
		p.log.Info().Str("source", ex.Name()).Msg("source archived")
	}
	return nil
}

func (p *Pipeline) loadMappings(ctx context.Context) (mapping.Set, error) {
	if p.mappings == nil {
		return mapping.Set{}, nil
	}
	set, err := mapping.Load(ctx, p.mappings)
	if err != nil {
		return mapping.Set{}, err
	}
	p.log.Info().
		Int("categories", len(set.Categories)).
		Int("organismes", len(set.Organismes)).
		Msg("mappings loaded")
	return set, nil
}

// record appends the run to the import log. A failure there only warns.
func (p *Pipeline) record(opts Options, rep Report, runErr error) {
	e := runlog.Entry{
		Timestamp: opts.Now,
		Mode:      string(opts.Mode),
		Stage:     string(rep.Stage),
		Current:   rep.Current,
		Excluded:  rep.Excluded,
		Anterior:  rep.Anterior,
		Inserted:  rep.Inserted,
		Updated:   rep.Updated,
		Simulated: opts.Simulate,
	}
	e.JobKey = strings.Join(rep.Jobs, " ")
	if runErr != nil {
		e.Error = runErr.Error()
	}
	if err := runlog.Append(p.workDir, []runlog.Entry{e}); err != nil {
		p.log.Warn().Err(err).Msg("failed to write import log")
	}
}

// path resolves a configured folder against the work directory.
func (p *Pipeline) path(dir string) string {
	return resolve(p.workDir, dir)
}

func resolve(workDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workDir, dir)
}
