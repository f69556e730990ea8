package vintage

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tracthist/internal/overlay"
)

// Loader resolves manifest paths against a base directory and builds
// validated overlay sets.
type Loader struct {
	baseDir string
}

// NewLoader creates a Loader. Relative manifest paths resolve against dir.
func NewLoader(dir string) *Loader {
	return &Loader{baseDir: dir}
}

func (l *Loader) resolve(path string) string {
	if filepath.IsAbs(path) || l.baseDir == "" {
		return path
	}
	return filepath.Join(l.baseDir, path)
}

// Targets loads the fixed neighborhood geometry.
func (l *Loader) Targets(spec TargetSpec) (*overlay.TargetSet, error) {
	feats, err := ReadPolygons(l.resolve(spec.Shapefile), spec.IDField, nil, nil)
	if err != nil {
		return nil, err
	}
	tgt, err := overlay.NewTargetSet(spec.CRS, feats)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("vintage: targets loaded",
		zap.String("shapefile", spec.Shapefile),
		zap.Int("neighborhoods", tgt.Len()),
	)
	return tgt, nil
}

// Sources loads one vintage's tract polygons and attributes. When the
// vintage names a separate attribute table, the table is joined onto the
// geometry by transformed identifier; tracts absent from the table are an
// error, since silently zeroing them would fake a conservation pass.
func (l *Loader) Sources(ctx context.Context, v Vintage) (*overlay.SourceSet, error) {
	var (
		feats []overlay.Feature
		err   error
	)

	if v.AttributeTable == "" {
		feats, err = ReadPolygons(l.resolve(v.Shapefile), v.IDField, v.IDTransforms, v.Attributes)
		if err != nil {
			return nil, err
		}
	} else {
		feats, err = ReadPolygons(l.resolve(v.Shapefile), v.IDField, v.IDTransforms, nil)
		if err != nil {
			return nil, err
		}
		table, err := l.readTable(ctx, v)
		if err != nil {
			return nil, err
		}
		for i := range feats {
			attrs, ok := table[feats[i].ID]
			if !ok {
				return nil, eris.Errorf("vintage %d: tract %q has geometry but no row in %s",
					v.Year, feats[i].ID, v.AttributeTable)
			}
			feats[i].Attrs = attrs
		}
	}

	src, err := overlay.NewSourceSet(v.CRS, feats, v.AttributeNames())
	if err != nil {
		return nil, eris.Wrapf(err, "vintage %d", v.Year)
	}
	zap.L().Debug("vintage: sources loaded",
		zap.Int("year", v.Year),
		zap.Int("tracts", src.Len()),
		zap.Strings("attributes", src.Attributes()),
	)
	return src, nil
}

func (l *Loader) readTable(ctx context.Context, v Vintage) (map[string]map[string]float64, error) {
	path := l.resolve(v.AttributeTable)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadAttributeCSV(ctx, path, v.TableIDColumn, v.IDTransforms, v.Attributes)
	case ".xlsx":
		return ReadAttributeXLSX(ctx, path, v.TableSheet, v.TableIDColumn, v.IDTransforms, v.Attributes)
	default:
		return nil, eris.Errorf("vintage %d: unsupported attribute table format %q", v.Year, filepath.Ext(path))
	}
}
