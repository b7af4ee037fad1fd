package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/model"
	"github.com/cleared-dev/releve/internal/pipeline"
	"github.com/cleared-dev/releve/internal/store"
)

func newIndexCommand(g *globalFlags) *cobra.Command {
	var (
		mode          string
		intervalType  string
		intervalCount int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Show where the next import starts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.ParseMode(mode)
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}

			var st *store.Store
			deps := pipeline.Deps{Config: s.cfg, WorkDir: s.dir, Log: s.log}
			if m != pipeline.ModeSpreadsheet {
				st, err = s.openStore(cmd.Context())
				if err != nil {
					return err
				}
				defer st.Close()
				deps.Store = st
			}

			pos, err := pipeline.New(deps).Position(cmd.Context(), pipeline.Options{
				Mode:          m,
				IntervalType:  model.IntervalType(intervalType),
				IntervalCount: intervalCount,
				Pinned:        cmd.Flags().Changed("interval-type") || cmd.Flags().Changed("interval-count"),
				Now:           time.Now(),
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "next index:  %d\n", pos.StartIndex)
			fmt.Fprintf(w, "window:      %s\n", pos.Window)
			if pos.LastInsert.IsZero() {
				fmt.Fprintln(w, "last insert: none")
			} else {
				fmt.Fprintf(w, "last insert: %s\n", pos.LastInsert.Format(model.DateFormat))
			}
			if pos.Miss != nil {
				fmt.Fprintf(w, "warning:     %v\n", pos.Miss)
			}

			if st == nil {
				return nil
			}
			updates, err := st.LastUpdatesByAccount(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range updates {
				fmt.Fprintf(w, "  %-20s %s\n", u.Account, u.LastInsert.Format(model.DateFormat))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "sink whose cursor is read: spreadsheet, database or refined (required)")
	_ = cmd.MarkFlagRequired("mode")
	cmd.Flags().StringVar(&intervalType, "interval-type", string(model.IntervalWeek), "window unit: day, week or month")
	cmd.Flags().IntVar(&intervalCount, "interval-count", 1, "number of units in the window")

	return cmd
}
