package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tracthist/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tracthist",
	Short: "Neighborhood time series from shifting census tract geography",
	Long: "Redistributes historical census tract counts onto fixed neighborhood polygons " +
		"by areal interpolation, verifies that totals are conserved, and assembles the " +
		"per-decade results into long-run time series.",
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
