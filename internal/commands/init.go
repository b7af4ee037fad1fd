package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/releve/internal/config"
)

func newInitCommand(g *globalFlags) *cobra.Command {
	var credentials string

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a releve work directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				g.dir = args[0]
			}
			if err := os.MkdirAll(g.dir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", g.dir, err)
			}

			s, err := g.open()
			if err != nil {
				return err
			}
			if credentials != "" {
				s.cfg.Credentials.ServiceAccountKey = credentials
			}
			if err := runInit(cmd, s, g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized releve work directory at %s\n", s.dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&credentials, "credentials", "", "Google service account key file")

	return cmd
}

func runInit(cmd *cobra.Command, s *session, g *globalFlags) error {
	dirs := []string{
		s.cfg.Extracts.Folder,
		filepath.Join(s.cfg.Extracts.Folder, "excluded"),
		filepath.Join(s.cfg.Extracts.Folder, "anterior"),
		s.cfg.Ledger.Folder,
		"logs",
		s.cfg.Source.DownloadFolder,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(inDir(s.dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	path := g.configPath
	if path == "" {
		path = filepath.Join(s.dir, configFileName)
	}
	if err := config.Save(path, s.cfg); err != nil {
		return err
	}

	st, err := s.openStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	return st.Close()
}
