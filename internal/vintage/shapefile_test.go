package vintage

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockwise closed rectangle ring, shapefile convention.
func shpRect(x0, y0, x1, y1 float64) []shp.Point {
	return []shp.Point{
		{X: x0, Y: y0},
		{X: x0, Y: y1},
		{X: x1, Y: y1},
		{X: x1, Y: y0},
		{X: x0, Y: y0},
	}
}

// writeShapefile writes polygon records with a TRACTID string field and a
// POP numeric field.
func writeShapefile(t *testing.T, rings [][]shp.Point, ids []string, pops []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracts.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("TRACTID", 25),
		shp.FloatField("POP", 16, 2),
	}))

	for i, ring := range rings {
		pl := shp.NewPolyLine([][]shp.Point{ring})
		poly := shp.Polygon(*pl)
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, ids[i]))
		require.NoError(t, w.WriteAttribute(i, 1, pops[i]))
	}
	w.Close()
	return path
}

func TestReadPolygons_WithAttributes(t *testing.T) {
	path := writeShapefile(t,
		[][]shp.Point{shpRect(0, 0, 10, 10), shpRect(10, 0, 20, 10)},
		[]string{"1", "2"},
		[]float64{700, 300},
	)

	feats, err := ReadPolygons(path, "TRACTID", []string{"pad:4"}, []AttrMap{{Column: "POP", Name: "pop"}})
	require.NoError(t, err)
	require.Len(t, feats, 2)

	assert.Equal(t, "0001", feats[0].ID)
	assert.Equal(t, "0002", feats[1].ID)
	assert.Equal(t, 700.0, feats[0].Attrs["pop"])
	assert.Equal(t, 300.0, feats[1].Attrs["pop"])

	// Rings come back with positive area in the geometry library's winding.
	assert.InDelta(t, 100.0, feats[0].Geom.Area(), 1e-9)
	assert.InDelta(t, 100.0, feats[1].Geom.Area(), 1e-9)
}

func TestReadPolygons_GeometryOnly(t *testing.T) {
	path := writeShapefile(t,
		[][]shp.Point{shpRect(0, 0, 5, 5)},
		[]string{"west-end"},
		[]float64{0},
	)

	feats, err := ReadPolygons(path, "TRACTID", nil, nil)
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.Equal(t, "west-end", feats[0].ID)
	assert.Nil(t, feats[0].Attrs)
}

func TestReadPolygons_Errors(t *testing.T) {
	path := writeShapefile(t,
		[][]shp.Point{shpRect(0, 0, 5, 5)},
		[]string{"1"},
		[]float64{10},
	)

	t.Run("missing id field", func(t *testing.T) {
		_, err := ReadPolygons(path, "GEOID", nil, nil)
		assert.Error(t, err)
	})

	t.Run("missing attribute field", func(t *testing.T) {
		_, err := ReadPolygons(path, "TRACTID", nil, []AttrMap{{Column: "HOUSING", Name: "housing"}})
		assert.Error(t, err)
	})

	t.Run("bad transform for data", func(t *testing.T) {
		path := writeShapefile(t, [][]shp.Point{shpRect(0, 0, 5, 5)}, []string{"abc"}, []float64{1})
		_, err := ReadPolygons(path, "TRACTID", []string{"cast"}, nil)
		assert.Error(t, err)
	})

	t.Run("file missing", func(t *testing.T) {
		_, err := ReadPolygons(filepath.Join(t.TempDir(), "nope.shp"), "TRACTID", nil, nil)
		assert.Error(t, err)
	})
}
