package app

import (
	"context"
	"errors"

	"crab-rebase-sim/internal/report"
)

// ExportJournal replays every journaled row into CSV files under outDir and
// returns the number of rows written.
func ExportJournal(ctx context.Context, journalDir, outDir string) (int, error) {
	journal, err := report.OpenJournal(journalDir)
	if err != nil {
		return 0, err
	}
	defer journal.Close()

	rows, err := journal.Rows()
	if err != nil {
		return 0, err
	}
	out := report.NewCSV(outDir)
	for i, row := range rows {
		if err := out.Record(ctx, row); err != nil {
			return i, errors.Join(err, out.Close())
		}
	}
	return len(rows), out.Close()
}
