package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/releve/internal/config"
	"github.com/cleared-dev/releve/internal/importer"
)

// SourceOptions selects the extractors of a run.
type SourceOptions struct {
	// TestMode replaces every source by the synthetic fixture.
	TestMode bool
	// Names restricts the run to these sources; empty means all.
	Names []string
	Now   time.Time
}

// Sources builds the configured extractors. The cash sheets are registered
// even without credentials; they then report themselves unavailable.
func Sources(ctx context.Context, cfg *config.Config, workDir string, opts SourceOptions, log zerolog.Logger) ([]importer.Extractor, error) {
	reg := importer.NewRegistry()
	if opts.TestMode {
		reg.Register(&importer.Fixture{Today: opts.Now})
		return reg.Select(opts.Names)
	}

	download := resolve(workDir, cfg.Source.DownloadFolder)
	reg.Register(&importer.CreditAgricole{
		Account:    cfg.Accounts.CreditAgricole,
		Dir:        download,
		ArchiveDir: cfg.Archive.CreditAgricoleSubfolder,
	})
	reg.Register(&importer.Boursorama{
		Account:    cfg.Accounts.Boursorama,
		Dir:        download,
		ArchiveDir: cfg.Archive.BoursoramaSubfolder,
	})

	if len(cfg.Cash.Accounts) > 0 {
		var reader importer.SheetReader
		if cfg.Credentials.ServiceAccountKey != "" {
			gs, err := importer.NewGoogleSheets(ctx, resolve(workDir, cfg.Credentials.ServiceAccountKey))
			if err != nil {
				log.Warn().Err(err).Msg("cash sheet client unavailable")
			} else {
				reader = gs
			}
		}
		for _, account := range cfg.Cash.Accounts {
			reg.Register(&importer.CashSheet{
				Account:       account,
				SpreadsheetID: cfg.Cash.SpreadsheetID,
				Reader:        reader,
			})
		}
	}
	return reg.Select(opts.Names)
}
