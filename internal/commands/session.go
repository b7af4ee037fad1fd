package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/releve/internal/config"
	"github.com/cleared-dev/releve/internal/logger"
	"github.com/cleared-dev/releve/internal/mapping"
	"github.com/cleared-dev/releve/internal/store"
)

const configFileName = config.FileName

type globalFlags struct {
	dir        string
	configPath string
	envFile    string
	logLevel   string
}

// session is the loaded work directory a command runs against.
type session struct {
	dir string
	cfg *config.Config
	log zerolog.Logger
}

func (g *globalFlags) open() (*session, error) {
	dir, err := filepath.Abs(g.dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	path := g.configPath
	if path == "" {
		path = filepath.Join(dir, configFileName)
	}
	cfg, err := config.LoadOrInit(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(inDir(dir, g.envFile)); err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	return &session{
		dir: dir,
		cfg: cfg,
		log: logger.New(logger.ParseLevel(level)),
	}, nil
}

// openStore connects to the configured database and brings its schema up
// to date. A relative SQLite path is taken from the work directory.
func (s *session) openStore(ctx context.Context) (*store.Store, error) {
	driver, dsn := s.cfg.Database.Driver, s.cfg.Database.DSN
	if driver == store.DriverSQLite && !strings.HasPrefix(dsn, "file:") {
		dsn = inDir(s.dir, dsn)
	}
	st, err := store.Open(ctx, driver, dsn, logger.Component(s.log, "store"))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// mappingSource reads the configured CSV files, or the database tables when
// no file is configured. st may be nil.
func (s *session) mappingSource(st *store.Store) mapping.Source {
	m := s.cfg.Mappings
	if m.CategoriesFile != "" || m.OrganismesFile != "" {
		return mapping.FileSource{
			CategoriesPath: inDir(s.dir, m.CategoriesFile),
			OrganismesPath: inDir(s.dir, m.OrganismesFile),
		}
	}
	if st == nil {
		return nil
	}
	return mapping.StoreSource{Store: st}
}

func inDir(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
