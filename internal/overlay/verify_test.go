package overlay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyConservation_FullCoverage(t *testing.T) {
	src := mustSourceSet(t, []Feature{
		{ID: "t1", Geom: rect(0, 0, 10, 10), Attrs: map[string]float64{"pop": 700, "black": 300}},
		{ID: "t2", Geom: rect(10, 0, 20, 10), Attrs: map[string]float64{"pop": 300, "black": 100}},
	}, []string{"pop", "black"})
	tgt := mustTargetSet(t, []Feature{
		{ID: "n1", Geom: rect(0, 0, 4, 10)},
		{ID: "n2", Geom: rect(4, 0, 16, 10)},
		{ID: "n3", Geom: rect(16, 0, 20, 10)},
	})

	res, verdicts, err := Interpolate(context.Background(), src, tgt)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	for _, v := range verdicts {
		assert.True(t, v.Conserved, "attribute %s: %v != %v", v.Attribute, v.SourceTotal, v.TargetTotal)
		assert.True(t, v.OK())
		assert.InDelta(t, 0.0, v.Discrepancy, 1e-6)
	}
	assert.InDelta(t, 1000.0, res.Total("pop"), 1e-6)
	assert.InDelta(t, 400.0, res.Total("black"), 1e-6)
}

func TestVerifyConservation_KnownShortfall(t *testing.T) {
	// Source totals 1000 but targets only reach 988 of it: 12 units sit on
	// area no target covers. Declared, the verdict is an expected failure;
	// undeclared, it is indistinguishable from a defect and not OK.
	src := mustSourceSet(t, []Feature{
		{ID: "t1", Geom: rect(0, 0, 10, 10), Attrs: map[string]float64{"pop": 1000}},
	}, []string{"pop"})
	tgt := mustTargetSet(t, []Feature{
		{ID: "n1", Geom: rect(0, 0, 9.88, 10)},
	})

	t.Run("declared shortfall", func(t *testing.T) {
		res, verdicts, err := Interpolate(context.Background(), src, tgt,
			WithExpectedShortfall(map[string]float64{"pop": 12}))
		require.NoError(t, err)
		require.Len(t, verdicts, 1)

		v := verdicts[0]
		assert.False(t, v.Conserved)
		assert.True(t, v.Expected)
		assert.True(t, v.OK())
		assert.InDelta(t, 12.0, v.Discrepancy, 1e-6)
		assert.InDelta(t, 988.0, res.Total("pop"), 1e-6)
	})

	t.Run("undeclared shortfall", func(t *testing.T) {
		_, verdicts, err := Interpolate(context.Background(), src, tgt)
		require.NoError(t, err)
		require.Len(t, verdicts, 1)

		v := verdicts[0]
		assert.False(t, v.Conserved)
		assert.False(t, v.Expected)
		assert.False(t, v.OK())
	})

	t.Run("declared amount does not match", func(t *testing.T) {
		_, verdicts, err := Interpolate(context.Background(), src, tgt,
			WithExpectedShortfall(map[string]float64{"pop": 40}))
		require.NoError(t, err)
		require.Len(t, verdicts, 1)

		v := verdicts[0]
		assert.False(t, v.Conserved)
		assert.False(t, v.Expected, "a 12-unit gap must not satisfy a declared 40-unit shortfall")
		assert.False(t, v.OK())
	})
}

func TestVerifyConservation_PerAttributeVerdicts(t *testing.T) {
	src := mustSourceSet(t, []Feature{
		{ID: "t1", Geom: rect(0, 0, 10, 10), Attrs: map[string]float64{"pop": 100, "black": 40}},
	}, []string{"pop", "black"})
	tgt := mustTargetSet(t, []Feature{
		{ID: "n1", Geom: rect(0, 0, 10, 10)},
	})

	weights, err := BuildWeights(context.Background(), src, tgt)
	require.NoError(t, err)
	res, err := Redistribute(src, tgt, weights, nil)
	require.NoError(t, err)

	verdicts := VerifyConservation(src, res, nil, DefaultTolerance)
	require.Len(t, verdicts, 2)
	byAttr := map[string]Verdict{}
	for _, v := range verdicts {
		byAttr[v.Attribute] = v
	}
	assert.Contains(t, byAttr, "pop")
	assert.Contains(t, byAttr, "black")
}

func TestTolerance_Within(t *testing.T) {
	tests := []struct {
		name string
		tol  Tolerance
		a, b float64
		want bool
	}{
		{name: "exact", tol: DefaultTolerance, a: 100, b: 100, want: true},
		{name: "within relative", tol: DefaultTolerance, a: 1e9, b: 1e9 + 100, want: true},
		{name: "outside relative", tol: DefaultTolerance, a: 1000, b: 988, want: false},
		{name: "absolute floor near zero", tol: DefaultTolerance, a: 0, b: 1e-12, want: true},
		{name: "loose tolerance", tol: Tolerance{Rel: 0.05, Abs: 0}, a: 100, b: 96, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tol.within(tt.a, tt.b))
		})
	}
}

func TestVerifyConservation_ZeroToleranceDefaults(t *testing.T) {
	src := mustSourceSet(t, []Feature{
		{ID: "t1", Geom: rect(0, 0, 10, 10), Attrs: map[string]float64{"pop": 100}},
	}, []string{"pop"})
	tgt := mustTargetSet(t, []Feature{
		{ID: "n1", Geom: rect(0, 0, 10, 10)},
	})

	weights, err := BuildWeights(context.Background(), src, tgt)
	require.NoError(t, err)
	res, err := Redistribute(src, tgt, weights, nil)
	require.NoError(t, err)

	// A zero-value Tolerance falls back to the default rather than demanding
	// bit-exact equality of floating-point sums.
	verdicts := VerifyConservation(src, res, nil, Tolerance{})
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].Conserved)
}
