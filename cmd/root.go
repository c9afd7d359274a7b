package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fullcount-labs/athlete-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "athlete-cli",
	Short: "Athlete identity resolution and training data ETL",
	Long:  "Ingests instrument exports (HitTrax, TrackMan, force plates, motion capture), resolves every row to a canonical athlete, and maintains the athlete warehouse.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
