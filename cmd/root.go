package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viktsys/bolsaingest/config"
	"github.com/viktsys/bolsaingest/logging"
)

var (
	configFile string

	cfg    *config.Config
	logger *zap.SugaredLogger
)

var rootCMD = &cobra.Command{
	Use:   "bolsaingest",
	Short: "Bolsa de Caracas price snapshot ingestion and query tool",
	Long: `A CLI application that periodically captures the Bolsa de Caracas
equity market summary, keeps a rolling window of snapshots and serves
latest prices, per-symbol history and a daily ranking through a REST API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	err := rootCMD.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./config.yaml)")

	rootCMD.AddCommand(serverCMD, ingestCMD, exportCMD, versionCMD)
}
