package vintage

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/tracthist/internal/overlay"
)

// ReadPolygons reads a polygon shapefile into overlay features. idField names
// the DBF column carrying the identifier, which is NFC-normalized and run
// through transforms. attrCols, when non-nil, names the DBF columns to read
// as extensive attributes; pass nil when attributes come from a separate
// table (or for target geometry).
func ReadPolygons(path, idField string, transforms []string, attrCols []AttrMap) ([]overlay.Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name -> index map. DBF field names are fixed-width and
	// NUL-padded.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	idIdx, ok := fieldIdx[strings.ToLower(idField)]
	if !ok {
		return nil, eris.Errorf("vintage: shapefile %s has no field %q", path, idField)
	}

	var feats []overlay.Feature
	var skipped int
	row := -1
	for reader.Next() {
		row++
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		g := polygonFromShape(poly)
		if g == nil {
			skipped++
			continue
		}

		rawID := norm.NFC.String(dbfValue(reader, idIdx))
		id, err := ApplyTransforms(transforms, rawID)
		if err != nil {
			return nil, eris.Wrapf(err, "vintage: shapefile %s row %d", path, row)
		}

		f := overlay.Feature{ID: id, Geom: g}
		if len(attrCols) > 0 {
			f.Attrs = make(map[string]float64, len(attrCols))
			for _, a := range attrCols {
				idx, ok := fieldIdx[strings.ToLower(a.Column)]
				if !ok {
					return nil, eris.Errorf("vintage: shapefile %s has no field %q", path, a.Column)
				}
				val := dbfValue(reader, idx)
				if val == "" {
					f.Attrs[a.Name] = 0
					continue
				}
				n, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return nil, eris.Wrapf(err, "vintage: shapefile %s row %d field %q", path, row, a.Column)
				}
				f.Attrs[a.Name] = n
			}
		}
		feats = append(feats, f)
	}

	if skipped > 0 {
		zap.L().Debug("vintage: skipped non-polygon shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return feats, nil
}

func dbfValue(reader *shp.Reader, idx int) string {
	val := strings.TrimRight(reader.Attribute(idx), "\x00")
	return strings.TrimSpace(val)
}

// polygonFromShape converts a shapefile polygon record, parts and all, to a
// ctessum geom polygon. Shapefile rings wind clockwise for outer rings with
// counterclockwise holes, the opposite of the geometry library's convention,
// so every ring is reversed; reversing all of them preserves the outer/hole
// distinction.
func polygonFromShape(p *shp.Polygon) geom.Polygonal {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	out := make(geom.Polygon, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		// Shapefile rings close explicitly; drop the duplicated end point.
		if p.Points[start] == p.Points[end-1] {
			end--
		}
		if end-start < 3 {
			continue
		}

		ring := make([]geom.Point, 0, end-start)
		for j := end - 1; j >= start; j-- {
			ring = append(ring, geom.Point{X: p.Points[j].X, Y: p.Points[j].Y})
		}
		out = append(out, ring)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
