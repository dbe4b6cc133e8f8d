package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prospectpro/leadengine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadengine",
	Short: "Cost-aware multi-source lead discovery engine",
	Long:  "Discovers business leads across provider APIs, deduplicates by fingerprint, enriches under a per-campaign budget ceiling, and scores confidence.",
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
