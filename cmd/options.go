package main

import (
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tracthist/internal/overlay"
	"github.com/sells-group/tracthist/internal/series"
	"github.com/sells-group/tracthist/internal/vintage"
)

// overlayOptions builds engine options from config plus the vintage's
// declared shortfall.
func overlayOptions(v vintage.Vintage) []overlay.Option {
	opts := []overlay.Option{
		overlay.WithEpsilon(cfg.Overlay.Epsilon),
		overlay.WithTolerance(overlay.Tolerance{
			Rel: cfg.Overlay.RelTolerance,
			Abs: cfg.Overlay.AbsTolerance,
		}),
	}
	if cfg.Overlay.Workers > 0 {
		opts = append(opts, overlay.WithWorkers(cfg.Overlay.Workers))
	}
	if len(v.ExpectedShortfall) > 0 {
		opts = append(opts, overlay.WithExpectedShortfall(v.ExpectedShortfall))
	}
	return opts
}

// writeJoined writes the joined series table to path, or stdout for "-".
func writeJoined(path string, j *series.Joined) error {
	if path == "" || path == "-" {
		return j.WriteCSV(os.Stdout, "neighborhood")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := j.WriteCSV(f, "neighborhood"); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}
