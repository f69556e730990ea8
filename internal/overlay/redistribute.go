package overlay

import (
	"github.com/rotisserie/eris"
)

// ResultTable holds interpolated attribute values: one row per target
// identifier, one column per attribute. Values are unrounded; rounding is a
// caller policy because it would break the conservation check.
type ResultTable struct {
	targetIDs []string
	attrs     []string
	values    map[string]map[string]float64
}

// TargetIDs returns the row identifiers in target-set order.
func (r *ResultTable) TargetIDs() []string { return append([]string(nil), r.targetIDs...) }

// Attributes returns the column names in declaration order.
func (r *ResultTable) Attributes() []string { return append([]string(nil), r.attrs...) }

// Value returns the interpolated value for one (target, attribute) cell.
// Targets with no contributing weights hold explicit zeros.
func (r *ResultTable) Value(targetID, attr string) float64 {
	row, ok := r.values[targetID]
	if !ok {
		return 0
	}
	return row[attr]
}

// Total returns the sum of one attribute column over all targets.
func (r *ResultTable) Total(attr string) float64 {
	var sum float64
	for _, row := range r.values {
		sum += row[attr]
	}
	return sum
}

// Redistribute applies the weight table to the source attributes in a single
// pass: every target receives, per attribute, the sum of source value times
// fraction over its incoming weights. All requested attributes are
// accumulated in that one pass over the weights.
func Redistribute(src *SourceSet, tgt *TargetSet, weights []Weight, attrs []string) (*ResultTable, error) {
	if len(attrs) == 0 {
		attrs = src.attrs
	}
	srcAttrs := make(map[string]bool, len(src.attrs))
	for _, a := range src.attrs {
		srcAttrs[a] = true
	}
	for _, a := range attrs {
		if !srcAttrs[a] {
			return nil, eris.Wrapf(ErrUnknownAttribute, "%q", a)
		}
	}

	byID := make(map[string]*sourcePoly, len(src.polys))
	for i := range src.polys {
		byID[src.polys[i].id] = &src.polys[i]
	}

	res := &ResultTable{
		targetIDs: tgt.IDs(),
		attrs:     append([]string(nil), attrs...),
		values:    make(map[string]map[string]float64, len(tgt.polys)),
	}
	for _, id := range res.targetIDs {
		row := make(map[string]float64, len(attrs))
		for _, a := range attrs {
			row[a] = 0
		}
		res.values[id] = row
	}

	for _, w := range weights {
		sp, ok := byID[w.SourceID]
		if !ok {
			return nil, eris.Errorf("overlay: weight references unknown source %q", w.SourceID)
		}
		row, ok := res.values[w.TargetID]
		if !ok {
			return nil, eris.Errorf("overlay: weight references unknown target %q", w.TargetID)
		}
		for _, a := range attrs {
			row[a] += sp.attrs[a] * w.Fraction
		}
	}

	return res, nil
}
