package overlay

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Weight is one (source, target) overlap: Fraction is the share of the source
// polygon's area that falls inside the target polygon, in (0, 1].
type Weight struct {
	SourceID string
	TargetID string
	Fraction float64
}

// indexedTarget is a target polygon stored in the R-tree.
type indexedTarget struct {
	geom.Polygonal
	id string
}

// BuildWeights computes the full weight table for interpolating src onto tgt.
// Candidate pairs come from an R-tree over target bounding boxes; exact
// fractions come from polygon intersection areas. Work is parallel across
// source polygons; each worker fills its own result slot, and the slots are
// flattened afterwards, so there is no shared mutable state.
//
// For a source fully covered by the targets, its fractions sum to 1 within
// floating-point tolerance. Partial coverage yields a sum below 1; that
// shortfall is caller policy, not an error.
func BuildWeights(ctx context.Context, src *SourceSet, tgt *TargetSet, opts ...Option) ([]Weight, error) {
	o := buildOptions(opts)

	if src.crs != tgt.crs {
		return nil, eris.Wrapf(ErrCRSMismatch, "source %q target %q", src.crs, tgt.crs)
	}

	tree := rtree.NewTree(25, 50)
	for i := range tgt.polys {
		tree.Insert(&indexedTarget{Polygonal: tgt.polys[i].geom, id: tgt.polys[i].id})
	}

	results := make([][]Weight, len(src.polys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range src.polys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "overlay: build weights cancelled")
			}
			sp := src.polys[i]
			if sp.area <= 0 {
				// Unreachable after set validation, but a zero divisor here
				// would silently corrupt every downstream estimate.
				return eris.Wrapf(ErrZeroAreaPolygon, "source %q", sp.id)
			}
			var ws []Weight
			for _, item := range tree.SearchIntersect(sp.geom.Bounds()) {
				it := item.(*indexedTarget)
				isect := sp.geom.Intersection(it.Polygonal)
				if isect == nil {
					continue
				}
				frac := isect.Area() / sp.area
				if frac <= o.epsilon {
					continue
				}
				if frac > 1 {
					frac = 1
				}
				ws = append(ws, Weight{SourceID: sp.id, TargetID: it.id, Fraction: frac})
			}
			results[i] = ws
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var n int
	for _, ws := range results {
		n += len(ws)
	}
	weights := make([]Weight, 0, n)
	for _, ws := range results {
		weights = append(weights, ws...)
	}

	zap.L().Debug("overlay: weight table built",
		zap.Int("sources", len(src.polys)),
		zap.Int("targets", len(tgt.polys)),
		zap.Int("weights", len(weights)),
	)
	return weights, nil
}

// Coverage returns, per source identifier, the sum of its outgoing weight
// fractions. A value near 1 means the source is fully covered by the targets;
// less than 1 quantifies the area-weighted share that falls outside every
// target and will be dropped by redistribution.
func Coverage(weights []Weight) map[string]float64 {
	cov := make(map[string]float64)
	for _, w := range weights {
		cov[w.SourceID] += w.Fraction
	}
	return cov
}
