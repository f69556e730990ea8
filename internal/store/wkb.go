package store

import (
	"strconv"
	"strings"

	ctgeom "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB converts a neighborhood polygon to EWKB bytes tagged with the
// SRID parsed from crs (zero for non-EPSG tags). Stored as a MultiPolygon so
// single- and multi-part neighborhoods share one column type.
func EncodeEWKB(p ctgeom.Polygonal, crs string) ([]byte, error) {
	if p == nil {
		return nil, eris.New("store: nil geometry")
	}
	srid := sridFromCRS(crs)

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for _, poly := range p.Polygons() {
		out := geom.NewPolygon(geom.XY).SetSRID(srid)
		for _, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			// EWKB rings close explicitly.
			flat := make([]float64, 0, (len(ring)+1)*2)
			for _, pt := range ring {
				flat = append(flat, pt.X, pt.Y)
			}
			flat = append(flat, ring[0].X, ring[0].Y)

			if err := out.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
				return nil, eris.Wrap(err, "store: encode ring")
			}
		}
		if out.NumLinearRings() == 0 {
			continue
		}
		if err := mp.Push(out); err != nil {
			return nil, eris.Wrap(err, "store: encode polygon")
		}
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("store: geometry has no valid rings")
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal EWKB")
	}
	return data, nil
}

func sridFromCRS(crs string) int {
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0
	}
	srid, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return srid
}
