package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/model"
	"github.com/cleared-dev/releve/internal/pipeline"
)

type importFlags struct {
	mode          string
	intervalType  string
	intervalCount int
	credentials   string
	simulate      bool
	csvOnly       bool
	perAccount    bool
	noArchive     bool
	testMode      bool
	periodize     bool
	sources       []string
}

func newImportCommand(g *globalFlags) *cobra.Command {
	f := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the latest bank exports into the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := pipeline.ParseMode(f.mode)
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			if f.credentials != "" {
				s.cfg.Credentials.ServiceAccountKey = f.credentials
			}

			opts := pipeline.Options{
				Mode:          mode,
				IntervalType:  model.IntervalType(f.intervalType),
				IntervalCount: f.intervalCount,
				Pinned:        cmd.Flags().Changed("interval-type") || cmd.Flags().Changed("interval-count"),
				PerAccount:    f.perAccount,
				Simulate:      f.simulate,
				CSVOnly:       f.csvOnly,
				NoArchive:     f.noArchive,
				Periodize:     f.periodize,
				Now:           time.Now(),
			}
			return runImport(cmd, s, f, opts)
		},
	}

	cmd.Flags().StringVar(&f.mode, "mode", "", "sink: spreadsheet, database or refined (required)")
	_ = cmd.MarkFlagRequired("mode")
	cmd.Flags().StringVar(&f.intervalType, "interval-type", string(model.IntervalWeek), "window unit: day, week or month")
	cmd.Flags().IntVar(&f.intervalCount, "interval-count", 1, "number of units in the window")
	cmd.Flags().StringVar(&f.credentials, "credentials", "", "Google service account key file for this run")
	cmd.Flags().BoolVar(&f.simulate, "simulate", false, "run every stage without persisting")
	cmd.Flags().BoolVar(&f.csvOnly, "csv-only", false, "only write the CSV exports")
	cmd.Flags().BoolVar(&f.perAccount, "per-account", false, "reconcile each source against its own account")
	cmd.Flags().BoolVar(&f.noArchive, "no-archive", false, "leave processed exports in the download folder")
	cmd.Flags().BoolVar(&f.testMode, "test-mode", false, "import synthetic rows instead of the bank exports")
	cmd.Flags().BoolVar(&f.periodize, "periodize", false, "spread large rows over twelve months")
	cmd.Flags().StringSliceVar(&f.sources, "source", nil, "restrict the import to these sources")

	return cmd
}

func runImport(cmd *cobra.Command, s *session, f *importFlags, opts pipeline.Options) error {
	ctx := cmd.Context()

	unlock, err := pipeline.Lock(s.dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			s.log.Warn().Err(err).Msg("releasing lock")
		}
	}()

	// The spreadsheet mode only reads mappings from the database, so a
	// missing one is not fatal there.
	st, err := s.openStore(ctx)
	switch {
	case err == nil:
		defer st.Close()
	case opts.Mode == pipeline.ModeSpreadsheet:
		s.log.Warn().Err(err).Msg("database unavailable, importing without mappings")
	default:
		return err
	}

	sources, err := pipeline.Sources(ctx, s.cfg, s.dir, pipeline.SourceOptions{
		TestMode: f.testMode,
		Names:    f.sources,
		Now:      opts.Now,
	}, s.log)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Config:     s.cfg,
		Mappings:   s.mappingSource(st),
		Extractors: sources,
		WorkDir:    s.dir,
		Log:        s.log,
	}
	if st != nil && opts.Mode != pipeline.ModeSpreadsheet {
		deps.Store = st
	}

	rep, err := pipeline.New(deps).Run(ctx, opts)
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), rep)
	return nil
}

func printReport(w io.Writer, rep pipeline.Report) {
	prefix := ""
	if rep.Simulated {
		prefix = "[simulation] "
	}
	if rep.Sources == 0 {
		fmt.Fprintf(w, "%sNothing to import for %s\n", prefix, rep.Window)
		return
	}
	fmt.Fprintf(w, "%sImported %s in %s mode\n", prefix, rep.Window, rep.Mode)
	fmt.Fprintf(w, "  jobs:       %s\n", strings.Join(rep.Jobs, " "))
	fmt.Fprintf(w, "  indexes:    %d to %d\n", rep.StartIndex, rep.NextIndex)
	fmt.Fprintf(w, "  current:    %d (excluded %d, anterior %d)\n", rep.Current, rep.Excluded, rep.Anterior)
	fmt.Fprintf(w, "  inserted:   %d\n", rep.Inserted)
	fmt.Fprintf(w, "  updated:    %d (matched %d, shifted %d)\n", rep.Updated, rep.Matched, rep.Shifted)
	for _, e := range rep.Exports {
		fmt.Fprintf(w, "  export:     %s\n", e)
	}
}
