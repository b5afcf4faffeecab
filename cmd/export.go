package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/viktsys/bolsaingest/database"
	"github.com/viktsys/bolsaingest/query"
	"github.com/viktsys/bolsaingest/report"
)

var (
	exportOut   string
	exportLimit int
)

var exportCMD = &cobra.Command{
	Use:   "export",
	Short: "Export the current ranking to an Excel workbook",
	Long:  `Rank the latest snapshot of every instrument by relative change and write the leaderboard as an xlsx file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := database.InitDB(ctx, cfg.DB, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		entries, err := query.NewService(database.NewStore(db)).Ranking(ctx, exportLimit)
		if err != nil {
			return fmt.Errorf("failed to build ranking: %w", err)
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		if err := report.WriteRanking(f, entries, time.Now()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		logger.Infow("Ranking exported", "file", exportOut, "entries", len(entries))
		return nil
	},
}

func init() {
	exportCMD.Flags().StringVarP(&exportOut, "out", "o", "ranking.xlsx", "output file")
	exportCMD.Flags().IntVarP(&exportLimit, "limit", "n", query.DefaultRankingLimit, "number of instruments")
}
