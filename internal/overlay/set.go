// Package overlay implements the areal interpolation engine: it redistributes
// extensive (count) attributes from one polygon partition onto another,
// weighted by geometric overlap, and verifies that totals are conserved.
package overlay

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// Feature is one polygon with its identifier and, for sources, its extensive
// attribute values (counts that split proportionally by area).
type Feature struct {
	ID    string
	Geom  geom.Polygonal
	Attrs map[string]float64
}

type sourcePoly struct {
	id    string
	geom  geom.Polygonal
	area  float64
	attrs map[string]float64
}

type targetPoly struct {
	id   string
	geom geom.Polygonal
}

// SourceSet is an immutable, validated set of source polygons sharing one CRS.
type SourceSet struct {
	crs   string
	polys []sourcePoly
	attrs []string
}

// TargetSet is an immutable, validated set of target polygons sharing one CRS.
type TargetSet struct {
	crs   string
	polys []targetPoly
}

// NewSourceSet validates and builds a source set. attrs names the extensive
// attribute columns every feature must carry. Validation is eager: duplicate
// identifiers, degenerate geometry, and missing or negative attribute values
// are rejected here, before any overlay work begins.
func NewSourceSet(crs string, feats []Feature, attrs []string) (*SourceSet, error) {
	if len(attrs) == 0 {
		return nil, eris.New("overlay: source set needs at least one attribute")
	}
	s := &SourceSet{
		crs:   crs,
		polys: make([]sourcePoly, 0, len(feats)),
		attrs: append([]string(nil), attrs...),
	}
	seen := make(map[string]bool, len(feats))
	for _, f := range feats {
		if seen[f.ID] {
			return nil, eris.Wrapf(ErrDuplicateID, "source %q", f.ID)
		}
		seen[f.ID] = true

		area, err := polygonArea(f.ID, f.Geom)
		if err != nil {
			return nil, err
		}

		vals := make(map[string]float64, len(attrs))
		for _, a := range attrs {
			v, ok := f.Attrs[a]
			if !ok {
				return nil, eris.Wrapf(ErrMissingAttribute, "source %q attribute %q", f.ID, a)
			}
			if v < 0 {
				return nil, eris.Wrapf(ErrNegativeAttribute, "source %q attribute %q = %v", f.ID, a, v)
			}
			vals[a] = v
		}

		s.polys = append(s.polys, sourcePoly{id: f.ID, geom: f.Geom, area: area, attrs: vals})
	}
	return s, nil
}

// NewTargetSet validates and builds a target set. Targets carry no attributes;
// they are the fixed partition the sources are interpolated onto.
func NewTargetSet(crs string, feats []Feature) (*TargetSet, error) {
	t := &TargetSet{crs: crs, polys: make([]targetPoly, 0, len(feats))}
	seen := make(map[string]bool, len(feats))
	for _, f := range feats {
		if seen[f.ID] {
			return nil, eris.Wrapf(ErrDuplicateID, "target %q", f.ID)
		}
		seen[f.ID] = true
		if _, err := polygonArea(f.ID, f.Geom); err != nil {
			return nil, err
		}
		t.polys = append(t.polys, targetPoly{id: f.ID, geom: f.Geom})
	}
	return t, nil
}

// CRS returns the coordinate reference system tag the set was built with.
func (s *SourceSet) CRS() string { return s.crs }

// Attributes returns the extensive attribute names in declaration order.
func (s *SourceSet) Attributes() []string { return append([]string(nil), s.attrs...) }

// Len returns the number of source polygons.
func (s *SourceSet) Len() int { return len(s.polys) }

// IDs returns the source identifiers in input order.
func (s *SourceSet) IDs() []string {
	ids := make([]string, len(s.polys))
	for i, p := range s.polys {
		ids[i] = p.id
	}
	return ids
}

// Attribute returns the value of attr on the identified source polygon.
func (s *SourceSet) Attribute(id, attr string) (float64, bool) {
	for _, p := range s.polys {
		if p.id == id {
			v, ok := p.attrs[attr]
			return v, ok
		}
	}
	return 0, false
}

// CRS returns the coordinate reference system tag the set was built with.
func (t *TargetSet) CRS() string { return t.crs }

// Features returns the target polygons with their identifiers, for callers
// that persist or display the geometry.
func (t *TargetSet) Features() []Feature {
	feats := make([]Feature, len(t.polys))
	for i, p := range t.polys {
		feats[i] = Feature{ID: p.id, Geom: p.geom}
	}
	return feats
}

// Len returns the number of target polygons.
func (t *TargetSet) Len() int { return len(t.polys) }

// IDs returns the target identifiers in input order.
func (t *TargetSet) IDs() []string {
	ids := make([]string, len(t.polys))
	for i, p := range t.polys {
		ids[i] = p.id
	}
	return ids
}

func polygonArea(id string, g geom.Polygonal) (float64, error) {
	if g == nil {
		return 0, eris.Wrapf(ErrEmptyGeometry, "polygon %q", id)
	}
	if len(g.Polygons()) == 0 {
		return 0, eris.Wrapf(ErrEmptyGeometry, "polygon %q", id)
	}
	area := g.Area()
	if area <= 0 {
		return 0, eris.Wrapf(ErrZeroAreaPolygon, "polygon %q", id)
	}
	return area, nil
}
