// Package vintage loads census-tract geometry and attribute tables for each
// decennial vintage, driven by a declarative manifest instead of per-decade
// code. Every vintage differs in identifier scheme and column naming; the
// manifest captures those differences as data.
package vintage

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest is the full ingestion configuration: one fixed neighborhood
// (target) geometry and one entry per tract vintage.
type Manifest struct {
	Target   TargetSpec `yaml:"target"`
	Vintages []Vintage  `yaml:"vintages"`
}

// TargetSpec describes the fixed neighborhood geometry every vintage is
// interpolated onto.
type TargetSpec struct {
	Shapefile string `yaml:"shapefile"`
	CRS       string `yaml:"crs"`
	IDField   string `yaml:"id_field"`
}

// AttrMap binds one source column to its canonical attribute name. Declared
// as a list so attribute order is stable across runs.
type AttrMap struct {
	Column string `yaml:"column"`
	Name   string `yaml:"name"`
}

// Vintage describes one census year's tract inputs: where the geometry
// lives, how to normalize its identifiers, and which columns carry the
// extensive counts.
type Vintage struct {
	Year         int      `yaml:"year"`
	Shapefile    string   `yaml:"shapefile"`
	CRS          string   `yaml:"crs"`
	IDField      string   `yaml:"id_field"`
	IDTransforms []string `yaml:"id_transforms"`

	// Attributes maps source columns to canonical names. When
	// AttributeTable is set the columns are read from that table, joined on
	// the transformed identifier; otherwise they come from the shapefile's
	// own attribute records.
	Attributes     []AttrMap `yaml:"attributes"`
	AttributeTable string    `yaml:"attribute_table"`
	TableIDColumn  string    `yaml:"table_id_column"`
	TableSheet     string    `yaml:"table_sheet"`

	// ExpectedShortfall declares known conservation gaps per canonical
	// attribute, for vintages whose tract geometry does not fully cover the
	// neighborhoods (see Note for the reason).
	ExpectedShortfall map[string]float64 `yaml:"expected_shortfall"`
	Note              string             `yaml:"note"`
}

// AttributeNames returns the canonical attribute names in declaration order.
func (v Vintage) AttributeNames() []string {
	names := make([]string, len(v.Attributes))
	for i, a := range v.Attributes {
		names[i] = a.Name
	}
	return names
}

// LoadManifest reads and validates a vintages manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "vintage: parse manifest %s", path)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Target.Shapefile == "" {
		return eris.New("vintage: manifest target.shapefile is required")
	}
	if m.Target.IDField == "" {
		return eris.New("vintage: manifest target.id_field is required")
	}
	if len(m.Vintages) == 0 {
		return eris.New("vintage: manifest has no vintages")
	}

	years := make(map[int]bool, len(m.Vintages))
	for _, v := range m.Vintages {
		if v.Year == 0 {
			return eris.New("vintage: vintage year is required")
		}
		if years[v.Year] {
			return eris.Errorf("vintage: duplicate vintage year %d", v.Year)
		}
		years[v.Year] = true

		if v.Shapefile == "" {
			return eris.Errorf("vintage %d: shapefile is required", v.Year)
		}
		if v.IDField == "" {
			return eris.Errorf("vintage %d: id_field is required", v.Year)
		}
		if len(v.Attributes) == 0 {
			return eris.Errorf("vintage %d: at least one attribute is required", v.Year)
		}
		seen := make(map[string]bool, len(v.Attributes))
		for _, a := range v.Attributes {
			if a.Column == "" || a.Name == "" {
				return eris.Errorf("vintage %d: attribute needs both column and name", v.Year)
			}
			if seen[a.Name] {
				return eris.Errorf("vintage %d: duplicate attribute name %q", v.Year, a.Name)
			}
			seen[a.Name] = true
		}
		if v.AttributeTable != "" && v.TableIDColumn == "" {
			return eris.Errorf("vintage %d: table_id_column is required with attribute_table", v.Year)
		}
		for _, tr := range v.IDTransforms {
			if err := checkTransform(tr); err != nil {
				return eris.Wrapf(err, "vintage %d", v.Year)
			}
		}
		for name := range v.ExpectedShortfall {
			if !seen[name] {
				return eris.Errorf("vintage %d: expected_shortfall for unknown attribute %q", v.Year, name)
			}
		}
	}
	return nil
}
