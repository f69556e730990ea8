package overlay

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Tolerance bounds the acceptable gap between source and target totals:
// |source - target| <= Abs + Rel*max(|source|, |target|).
type Tolerance struct {
	Rel float64
	Abs float64
}

// DefaultTolerance suits population-scale counts: relative 1e-6 with a small
// absolute floor so near-zero totals compare sanely.
var DefaultTolerance = Tolerance{Rel: 1e-6, Abs: 1e-9}

func (t Tolerance) within(a, b float64) bool {
	return math.Abs(a-b) <= t.Abs+t.Rel*math.Max(math.Abs(a), math.Abs(b))
}

// Verdict is the conservation outcome for one attribute.
type Verdict struct {
	Attribute   string
	SourceTotal float64
	TargetTotal float64
	// Discrepancy is SourceTotal - TargetTotal; positive means attribute
	// mass was dropped (targets do not fully cover the sources).
	Discrepancy float64
	// Conserved reports whether the totals agree within tolerance.
	Conserved bool
	// Expected reports whether a non-conserved discrepancy matches a
	// declared shortfall for this attribute.
	Expected bool
}

// OK reports whether this verdict should let a strict pipeline proceed:
// either the attribute was conserved or its shortfall was declared.
func (v Verdict) OK() bool { return v.Conserved || v.Expected }

// VerifyConservation compares per-attribute source totals against the
// interpolated target totals. It returns one verdict per attribute rather
// than an aggregate pass/fail, so a caller can see exactly which attribute
// leaked. expected declares known shortfalls (attribute name to discrepancy
// amount, e.g. a tract whose geometry is missing from one vintage); a
// discrepancy matching its declared amount within tolerance is flagged
// Expected instead of being indistinguishable from a defect.
//
// Verification never withholds the result table; whether a failed verdict is
// fatal is pipeline policy, not engine behavior.
func VerifyConservation(src *SourceSet, res *ResultTable, expected map[string]float64, tol Tolerance) []Verdict {
	if tol == (Tolerance{}) {
		tol = DefaultTolerance
	}

	verdicts := make([]Verdict, 0, len(res.attrs))
	for _, attr := range res.attrs {
		srcVals := make([]float64, len(src.polys))
		for i := range src.polys {
			srcVals[i] = src.polys[i].attrs[attr]
		}
		tgtVals := make([]float64, 0, len(res.targetIDs))
		for _, id := range res.targetIDs {
			tgtVals = append(tgtVals, res.values[id][attr])
		}

		v := Verdict{
			Attribute:   attr,
			SourceTotal: floats.Sum(srcVals),
			TargetTotal: floats.Sum(tgtVals),
		}
		v.Discrepancy = v.SourceTotal - v.TargetTotal
		v.Conserved = tol.within(v.SourceTotal, v.TargetTotal)

		if !v.Conserved {
			if want, ok := expected[attr]; ok && tol.within(v.Discrepancy, want) {
				v.Expected = true
			}
		}
		verdicts = append(verdicts, v)
	}
	return verdicts
}
