package vintage

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ReadAttributeCSV reads a tract attribute table from a CSV file keyed by
// idColumn. Identifiers are NFC-normalized and run through transforms so
// they join against the shapefile's transformed IDs. cols selects and renames
// the attribute columns; blank cells read as zero.
func ReadAttributeCSV(ctx context.Context, path, idColumn string, transforms []string, cols []AttrMap) (map[string]map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: open attribute table %s", path)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: read header of %s", path)
	}
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	idIdx, ok := colIdx[strings.ToLower(idColumn)]
	if !ok {
		return nil, eris.Errorf("vintage: table %s has no column %q", path, idColumn)
	}
	attrIdx := make([]int, len(cols))
	for i, a := range cols {
		idx, ok := colIdx[strings.ToLower(a.Column)]
		if !ok {
			return nil, eris.Errorf("vintage: table %s has no column %q", path, a.Column)
		}
		attrIdx[i] = idx
	}

	out := make(map[string]map[string]float64)
	row := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vintage: attribute table read cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "vintage: read %s row %d", path, row)
		}
		row++

		vals, id, err := parseAttributeRow(record, idIdx, attrIdx, transforms, cols)
		if err != nil {
			return nil, eris.Wrapf(err, "vintage: %s row %d", path, row)
		}
		if id == "" {
			continue
		}
		if _, dup := out[id]; dup {
			return nil, eris.Errorf("vintage: %s row %d: duplicate identifier %q", path, row, id)
		}
		out[id] = vals
	}
	return out, nil
}

// parseAttributeRow extracts the transformed ID and attribute values from one
// record; shared by the CSV and XLSX readers.
func parseAttributeRow(record []string, idIdx int, attrIdx []int, transforms []string, cols []AttrMap) (map[string]float64, string, error) {
	if idIdx >= len(record) {
		return nil, "", nil
	}
	rawID := norm.NFC.String(strings.TrimSpace(record[idIdx]))
	if rawID == "" {
		return nil, "", nil
	}
	id, err := ApplyTransforms(transforms, rawID)
	if err != nil {
		return nil, "", err
	}

	vals := make(map[string]float64, len(cols))
	for i, a := range cols {
		var cell string
		if attrIdx[i] < len(record) {
			cell = strings.TrimSpace(record[attrIdx[i]])
		}
		if cell == "" {
			vals[a.Name] = 0
			continue
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
		if err != nil {
			return nil, "", eris.Wrapf(err, "column %q", a.Column)
		}
		vals[a.Name] = n
	}
	return vals, id, nil
}
