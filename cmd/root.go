package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/searchlab/ablate/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ablate",
	Short: "Controlled ablation testing for metadata search",
	Long:  "Measures each metadata collection's contribution to search precision and recall by snapshotting collections, emptying them, re-running queries against ground truth, and restoring.",
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
