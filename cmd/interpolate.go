package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tracthist/internal/overlay"
	"github.com/sells-group/tracthist/internal/series"
	"github.com/sells-group/tracthist/internal/vintage"
)

var (
	interpolateManifest string
	interpolateYear     int
	interpolateOut      string
)

var interpolateCmd = &cobra.Command{
	Use:   "interpolate",
	Short: "Interpolate one census vintage onto the neighborhood geometry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "interpolate"))

		manifestPath := interpolateManifest
		if manifestPath == "" {
			manifestPath = cfg.Pipeline.Manifest
		}
		m, err := vintage.LoadManifest(manifestPath)
		if err != nil {
			return err
		}

		var found *vintage.Vintage
		for i := range m.Vintages {
			if m.Vintages[i].Year == interpolateYear {
				found = &m.Vintages[i]
				break
			}
		}
		if found == nil {
			return eris.Errorf("year %d is not in manifest %s", interpolateYear, manifestPath)
		}

		loader := vintage.NewLoader(filepath.Dir(manifestPath))
		tgt, err := loader.Targets(m.Target)
		if err != nil {
			return err
		}
		src, err := loader.Sources(ctx, *found)
		if err != nil {
			return err
		}

		res, verdicts, err := overlay.Interpolate(ctx, src, tgt, overlayOptions(*found)...)
		if err != nil {
			return err
		}

		failed := false
		for _, v := range verdicts {
			logger.Info("conservation verdict",
				zap.Int("year", found.Year),
				zap.String("attribute", v.Attribute),
				zap.Float64("source_total", v.SourceTotal),
				zap.Float64("target_total", v.TargetTotal),
				zap.Float64("discrepancy", v.Discrepancy),
				zap.Bool("conserved", v.Conserved),
				zap.Bool("expected", v.Expected),
			)
			if !v.OK() {
				failed = true
			}
		}

		joined, err := series.OuterJoin([]series.Table{series.FromResult(found.Year, res)})
		if err != nil {
			return err
		}
		if err := writeJoined(interpolateOut, joined); err != nil {
			return err
		}

		if failed {
			return eris.Errorf("vintage %d: conservation check failed", found.Year)
		}
		return nil
	},
}

func init() {
	interpolateCmd.Flags().StringVar(&interpolateManifest, "manifest", "", "vintage manifest path (default from config)")
	interpolateCmd.Flags().IntVar(&interpolateYear, "year", 0, "census year to interpolate")
	interpolateCmd.Flags().StringVar(&interpolateOut, "out", "-", "output CSV path (- for stdout)")
	interpolateCmd.MarkFlagRequired("year") //nolint:errcheck
	rootCmd.AddCommand(interpolateCmd)
}
