package main

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tracthist/internal/overlay"
	"github.com/sells-group/tracthist/internal/series"
	"github.com/sells-group/tracthist/internal/store"
	"github.com/sells-group/tracthist/internal/vintage"
)

var (
	pipelineManifest string
	pipelineOut      string
	pipelinePersist  bool
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Interpolate every configured vintage and assemble the joined series",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := zap.L().With(zap.String("component", "pipeline"))

		manifestPath := pipelineManifest
		if manifestPath == "" {
			manifestPath = cfg.Pipeline.Manifest
		}
		outPath := pipelineOut
		if outPath == "" {
			outPath = cfg.Pipeline.OutputCSV
		}

		m, err := vintage.LoadManifest(manifestPath)
		if err != nil {
			return err
		}
		vintages := append([]vintage.Vintage(nil), m.Vintages...)
		sort.Slice(vintages, func(i, j int) bool { return vintages[i].Year < vintages[j].Year })

		loader := vintage.NewLoader(filepath.Dir(manifestPath))
		tgt, err := loader.Targets(m.Target)
		if err != nil {
			return err
		}

		var st store.Store
		var run *store.Run
		if pipelinePersist {
			if st, err = openStore(ctx); err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if run, err = st.CreateRun(ctx, manifestPath); err != nil {
				return err
			}
			logger.Info("run started", zap.String("run_id", run.ID))

			feats := tgt.Features()
			hoods := make([]store.Neighborhood, len(feats))
			for i, f := range feats {
				hoods[i] = store.Neighborhood{ID: f.ID, Geom: f.Geom}
			}
			if err := st.UpsertNeighborhoods(ctx, tgt.CRS(), hoods); err != nil {
				return finishRun(ctx, st, run, err)
			}
		}

		var (
			tables   []series.Table
			failures []string
		)
		for _, v := range vintages {
			src, err := loader.Sources(ctx, v)
			if err != nil {
				return finishRun(ctx, st, run, err)
			}

			res, verdicts, err := overlay.Interpolate(ctx, src, tgt, overlayOptions(v)...)
			if err != nil {
				return finishRun(ctx, st, run, eris.Wrapf(err, "vintage %d", v.Year))
			}

			for _, vd := range verdicts {
				logger.Info("conservation verdict",
					zap.Int("year", v.Year),
					zap.String("attribute", vd.Attribute),
					zap.Float64("discrepancy", vd.Discrepancy),
					zap.Bool("conserved", vd.Conserved),
					zap.Bool("expected", vd.Expected),
				)
				if !vd.OK() {
					failures = append(failures, vd.Attribute)
				}
			}

			tbl := series.FromResult(v.Year, res)
			tables = append(tables, tbl)

			if st != nil {
				if err := persistVintage(ctx, st, run.ID, v.Year, tbl, verdicts); err != nil {
					return finishRun(ctx, st, run, err)
				}
			}
		}

		if len(failures) > 0 {
			err := eris.Errorf("conservation check failed for %d attribute-year(s)", len(failures))
			return finishRun(ctx, st, run, err)
		}

		joined, err := series.OuterJoin(tables)
		if err != nil {
			return finishRun(ctx, st, run, err)
		}
		if err := writeJoined(outPath, joined); err != nil {
			return finishRun(ctx, st, run, err)
		}

		logger.Info("pipeline complete",
			zap.Int("vintages", len(tables)),
			zap.Int("neighborhoods", tgt.Len()),
			zap.String("out", outPath),
		)
		return finishRun(ctx, st, run, nil)
	},
}

// finishRun records the run outcome when persisting, then returns err.
func finishRun(ctx context.Context, st store.Store, run *store.Run, err error) error {
	if st != nil && run != nil {
		if ferr := st.FinishRun(ctx, run.ID, err); ferr != nil {
			zap.L().Error("pipeline: finish run", zap.Error(ferr))
		}
	}
	return err
}

func persistVintage(ctx context.Context, st store.Store, runID string, year int, tbl series.Table, verdicts []overlay.Verdict) error {
	var estimates []store.Estimate
	for _, id := range tbl.IDs() {
		for _, a := range tbl.Attributes() {
			v, _ := tbl.Value(id, a)
			estimates = append(estimates, store.Estimate{
				RunID: runID, Year: year, Neighborhood: id, Attribute: a, Value: v,
			})
		}
	}
	if err := st.SaveEstimates(ctx, estimates); err != nil {
		return err
	}

	records := make([]store.VerdictRecord, len(verdicts))
	for i, vd := range verdicts {
		records[i] = store.VerdictRecord{
			RunID:       runID,
			Year:        year,
			Attribute:   vd.Attribute,
			SourceTotal: vd.SourceTotal,
			TargetTotal: vd.TargetTotal,
			Discrepancy: vd.Discrepancy,
			Conserved:   vd.Conserved,
			Expected:    vd.Expected,
		}
	}
	return st.SaveVerdicts(ctx, records)
}

func init() {
	pipelineCmd.Flags().StringVar(&pipelineManifest, "manifest", "", "vintage manifest path (default from config)")
	pipelineCmd.Flags().StringVar(&pipelineOut, "out", "", "output CSV path (default from config)")
	pipelineCmd.Flags().BoolVar(&pipelinePersist, "persist", false, "record the run, estimates, and verdicts in the store")
	rootCmd.AddCommand(pipelineCmd)
}
