package store

import (
	"context"
	"path/filepath"
	"testing"

	ctgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testPolygon() ctgeom.Polygonal {
	return ctgeom.Polygon{{
		{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
	}}
}

// --- Runs ---

func TestSQLite_Run_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "config/vintages.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "config/vintages.yaml", got.Manifest)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, st.FinishRun(ctx, run.ID, nil))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.FinishedAt)
}

func TestSQLite_Run_FinishWithError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "config/vintages.yaml")
	require.NoError(t, err)

	require.NoError(t, st.FinishRun(ctx, run.ID, eris.New("1970 shapefile unreadable")))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "1970 shapefile unreadable")
}

func TestSQLite_Run_FinishMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FinishRun(context.Background(), "no-such-run", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Run_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for range 3 {
		_, err := st.CreateRun(ctx, "config/vintages.yaml")
		require.NoError(t, err)
	}

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = st.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// --- Neighborhoods ---

func TestSQLite_UpsertNeighborhoods(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	hoods := []Neighborhood{
		{ID: "back_bay", Geom: testPolygon()},
		{ID: "fenway", Geom: testPolygon()},
	}
	require.NoError(t, st.UpsertNeighborhoods(ctx, "EPSG:26986", hoods))

	// Upsert again with the same IDs. No duplicate-key error.
	require.NoError(t, st.UpsertNeighborhoods(ctx, "EPSG:26986", hoods))
}

// --- Estimates and verdicts ---

func TestSQLite_EstimatesAndSeries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "config/vintages.yaml")
	require.NoError(t, err)

	estimates := []Estimate{
		{RunID: run.ID, Year: 1940, Neighborhood: "back_bay", Attribute: "pop", Value: 21100},
		{RunID: run.ID, Year: 1950, Neighborhood: "back_bay", Attribute: "pop", Value: 19850.5},
		{RunID: run.ID, Year: 1940, Neighborhood: "fenway", Attribute: "pop", Value: 30400},
	}
	require.NoError(t, st.SaveEstimates(ctx, estimates))

	series, err := st.Series(ctx, run.ID, "back_bay")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 1940, series[0].Year)
	assert.InDelta(t, 21100, series[0].Value, 1e-9)
	assert.Equal(t, 1950, series[1].Year)
	assert.InDelta(t, 19850.5, series[1].Value, 1e-9)

	series, err = st.Series(ctx, run.ID, "no_such_neighborhood")
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestSQLite_Verdicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "config/vintages.yaml")
	require.NoError(t, err)

	verdicts := []VerdictRecord{
		{RunID: run.ID, Year: 1940, Attribute: "pop", SourceTotal: 770816, TargetTotal: 770816, Conserved: true},
		{RunID: run.ID, Year: 1960, Attribute: "pop", SourceTotal: 697197, TargetTotal: 697185, Discrepancy: 12, Expected: true},
	}
	require.NoError(t, st.SaveVerdicts(ctx, verdicts))

	got, err := st.Verdicts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Conserved)
	assert.False(t, got[1].Conserved)
	assert.True(t, got[1].Expected)
	assert.InDelta(t, 12, got[1].Discrepancy, 1e-9)
}

func TestSQLite_SaveEstimates_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.SaveEstimates(context.Background(), nil))
}
