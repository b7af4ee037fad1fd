package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/mapping"
	"github.com/cleared-dev/releve/internal/store"
)

func newMappingsCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage the category and organisme keyword mappings",
	}
	cmd.AddCommand(newMappingsListCommand(g))
	cmd.AddCommand(newMappingsImportCommand(g))
	return cmd
}

func newMappingsListCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <categories|organismes>",
		Short: "Print the mappings of a kind as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseMappingKind(args[0])
			if err != nil {
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

			mappings, err := st.Mappings(cmd.Context(), kind)
			if err != nil {
				return err
			}
			return mapping.WriteCSV(cmd.OutOrStdout(), mappings)
		},
	}
}

func newMappingsImportCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <categories|organismes> <file.csv>",
		Short: "Replace the mappings of a kind with a keyword,target CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseMappingKind(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("opening mappings: %w", err)
			}
			defer f.Close()
			mappings, err := mapping.ReadCSV(f)
			if err != nil {
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

			if err := st.ReplaceMappings(cmd.Context(), kind, mappings); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Imported %d %s\n", len(mappings), kind)
			if shouted := mapping.Shouted(mappings); len(shouted) > 0 {
				fmt.Fprintf(w, "warning: descriptions are title-cased, these keywords never match: %s\n",
					strings.Join(shouted, ", "))
			}
			return nil
		},
	}
}
