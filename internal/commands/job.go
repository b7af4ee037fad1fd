package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/id"
)

func newJobCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and roll back import jobs",
	}
	cmd.AddCommand(newJobListCommand(g))
	cmd.AddCommand(newJobDeleteCommand(g))
	return cmd
}

func newJobListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List import jobs with their record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(w, "No jobs.")
				return nil
			}
			for _, j := range jobs {
				fmt.Fprintf(w, "%s  %s  %d records\n", j.Key, j.CreatedAt.Local().Format("2006-01-02 15:04"), j.Records)
			}
			return nil
		},
	}
}

func newJobDeleteCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-key>",
		Short: "Delete a job and every record it inserted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := id.ParseJobKey(args[0]); err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			st, err := s.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.DeleteJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s (%d records)\n", args[0], n)
			return nil
		},
	}
}
