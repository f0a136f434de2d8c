package main

import (
	"context"
	"fmt"

	"crab-rebase-sim/internal/app"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rebuild CSV files from the snapshot journal",
	RunE:  runExport,
}

var (
	exportJournalDir string
	exportOutDir     string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportJournalDir, "journal", "", "journal directory (default: output.journal_dir)")
	exportCmd.Flags().StringVar(&exportOutDir, "out", "", "CSV output directory (default: output.dir)")
}

func runExport(cmd *cobra.Command, args []string) error {
	journalDir, outDir := exportJournalDir, exportOutDir
	if journalDir == "" || outDir == "" {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		_ = log.Sync()
		if journalDir == "" {
			journalDir = cfg.Output.JournalDir
		}
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
	}
	if journalDir == "" {
		return fmt.Errorf("journal directory is required")
	}
	n, err := app.ExportJournal(context.Background(), journalDir, outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", n, outDir)
	return nil
}
