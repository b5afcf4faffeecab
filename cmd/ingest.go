package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/viktsys/bolsaingest/config"
	"github.com/viktsys/bolsaingest/database"
	"github.com/viktsys/bolsaingest/ingest"
	"github.com/viktsys/bolsaingest/market"
)

var forceCycle bool

var ingestCMD = &cobra.Command{
	Use:   "ingest",
	Short: "Run a single snapshot cycle and exit",
	Long:  `Fetch the current market summary once, store one row per instrument and prune rows older than the retention window.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger.Info("Initializing database...")
		db, err := database.InitDB(ctx, cfg.DB, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		ingestor, err := newIngestor(db, cfg.Ingest)
		if err != nil {
			return err
		}

		res := ingestor.RunCycle(ctx, forceCycle)
		if res.Err != nil {
			return res.Err
		}
		fmt.Printf("Cycle %s: %d inserted, %d pruned, %d skipped\n", res.Status, res.Inserted, res.Pruned, res.Skipped)
		return nil
	},
}

func init() {
	ingestCMD.Flags().BoolVarP(&forceCycle, "force", "f", false, "ignore the market-hours gate")
}

// newIngestor wires the upstream client and the gorm store into an Ingestor.
func newIngestor(db *gorm.DB, ic config.IngestConfig) (*ingest.Ingestor, error) {
	hours, err := marketHours(ic)
	if err != nil {
		return nil, err
	}
	client := ingest.NewClient(ic.URL, ic.Timeout, logger)
	return ingest.NewIngestor(client, database.NewStore(db), ingest.Options{
		RetentionDays: ic.RetentionDays,
		Hours:         hours,
		Names:         ic.Names,
	}, logger), nil
}

func marketHours(ic config.IngestConfig) (market.Hours, error) {
	open, err := config.ParseClock(ic.MarketOpen)
	if err != nil {
		return market.Hours{}, err
	}
	closing, err := config.ParseClock(ic.MarketClose)
	if err != nil {
		return market.Hours{}, err
	}
	return market.Hours{Open: open, Close: closing}, nil
}
