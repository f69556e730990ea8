package overlay

import (
	"context"
	"runtime"

	"go.uber.org/zap"
)

const defaultEpsilon = 1e-9

type options struct {
	epsilon  float64
	workers  int
	tol      Tolerance
	expected map[string]float64
}

// Option configures an interpolation run.
type Option func(*options)

// WithEpsilon sets the minimum retained weight fraction. Intersections whose
// fraction falls at or below it are treated as floating-point boundary noise
// along shared edges and dropped from the weight table.
func WithEpsilon(eps float64) Option {
	return func(o *options) {
		if eps > 0 {
			o.epsilon = eps
		}
	}
}

// WithWorkers caps the overlay worker pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTolerance overrides the conservation tolerance.
func WithTolerance(tol Tolerance) Option {
	return func(o *options) { o.tol = tol }
}

// WithExpectedShortfall declares known per-attribute discrepancies, for
// vintages where the targets intentionally do not cover every source.
func WithExpectedShortfall(expected map[string]float64) Option {
	return func(o *options) { o.expected = expected }
}

func buildOptions(opts []Option) options {
	o := options{
		epsilon: defaultEpsilon,
		workers: runtime.GOMAXPROCS(0),
		tol:     DefaultTolerance,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Interpolate runs the full pipeline: build weights, redistribute every
// source attribute, verify conservation. Validation or geometry errors abort
// with no partial result. Verification failure does not: the table and its
// verdicts are both returned, and the caller decides whether to halt.
func Interpolate(ctx context.Context, src *SourceSet, tgt *TargetSet, opts ...Option) (*ResultTable, []Verdict, error) {
	o := buildOptions(opts)

	weights, err := BuildWeights(ctx, src, tgt, opts...)
	if err != nil {
		return nil, nil, err
	}

	res, err := Redistribute(src, tgt, weights, nil)
	if err != nil {
		return nil, nil, err
	}

	verdicts := VerifyConservation(src, res, o.expected, o.tol)
	for _, v := range verdicts {
		if !v.OK() {
			zap.L().Warn("overlay: conservation mismatch",
				zap.String("attribute", v.Attribute),
				zap.Float64("source_total", v.SourceTotal),
				zap.Float64("target_total", v.TargetTotal),
				zap.Float64("discrepancy", v.Discrepancy),
			)
		}
	}
	return res, verdicts, nil
}
