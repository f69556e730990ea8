package vintage

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadAttributeXLSX reads a tract attribute table from a workbook. The first
// row of the selected sheet is the header; sheet selects by name, defaulting
// to the first sheet. Semantics otherwise match ReadAttributeCSV.
func ReadAttributeXLSX(ctx context.Context, path, sheet, idColumn string, transforms []string, cols []AttrMap) (map[string]map[string]float64, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "vintage: open workbook %s", path)
	}

	sh, err := getSheet(f, path, sheet)
	if err != nil {
		return nil, err
	}
	if len(sh.Rows) == 0 {
		return nil, eris.Errorf("vintage: workbook %s sheet %q is empty", path, sh.Name)
	}

	header := rowToStrings(sh.Rows[0])
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	idIdx, ok := colIdx[strings.ToLower(idColumn)]
	if !ok {
		return nil, eris.Errorf("vintage: workbook %s has no column %q", path, idColumn)
	}
	attrIdx := make([]int, len(cols))
	for i, a := range cols {
		idx, ok := colIdx[strings.ToLower(a.Column)]
		if !ok {
			return nil, eris.Errorf("vintage: workbook %s has no column %q", path, a.Column)
		}
		attrIdx[i] = idx
	}

	out := make(map[string]map[string]float64)
	for r, row := range sh.Rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vintage: workbook read cancelled")
		}
		record := rowToStrings(row)

		vals, id, err := parseAttributeRow(record, idIdx, attrIdx, transforms, cols)
		if err != nil {
			return nil, eris.Wrapf(err, "vintage: %s row %d", path, r+2)
		}
		if id == "" {
			continue
		}
		if _, dup := out[id]; dup {
			return nil, eris.Errorf("vintage: %s row %d: duplicate identifier %q", path, r+2, id)
		}
		out[id] = vals
	}
	return out, nil
}

func getSheet(f *xlsx.File, path, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sh, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("vintage: workbook %s has no sheet %q", path, name)
		}
		return sh, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("vintage: workbook %s has no sheets", path)
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
