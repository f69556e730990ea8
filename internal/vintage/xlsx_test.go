package vintage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeXLSX(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sh.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "attrs.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadAttributeXLSX(t *testing.T) {
	path := writeXLSX(t, "1950", [][]string{
		{"GISJOIN", "POP_TOTAL", "POP_BLACK"},
		{"42", "1200", "300"},
		{"7", "450", ""},
	})
	cols := []AttrMap{
		{Column: "POP_TOTAL", Name: "pop"},
		{Column: "POP_BLACK", Name: "black"},
	}

	table, err := ReadAttributeXLSX(context.Background(), path, "1950", "GISJOIN", []string{"pad:6"}, cols)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, 1200.0, table["000042"]["pop"])
	assert.Equal(t, 0.0, table["000007"]["black"])
}

func TestReadAttributeXLSX_DefaultSheet(t *testing.T) {
	path := writeXLSX(t, "anything", [][]string{
		{"ID", "POP"},
		{"a", "10"},
	})
	table, err := ReadAttributeXLSX(context.Background(), path, "", "ID", nil, []AttrMap{{Column: "POP", Name: "pop"}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, table["a"]["pop"])
}

func TestReadAttributeXLSX_Errors(t *testing.T) {
	cols := []AttrMap{{Column: "POP", Name: "pop"}}

	t.Run("missing sheet", func(t *testing.T) {
		path := writeXLSX(t, "data", [][]string{{"ID", "POP"}})
		_, err := ReadAttributeXLSX(context.Background(), path, "other", "ID", nil, cols)
		assert.Error(t, err)
	})

	t.Run("missing id column", func(t *testing.T) {
		path := writeXLSX(t, "data", [][]string{{"A", "POP"}, {"x", "1"}})
		_, err := ReadAttributeXLSX(context.Background(), path, "", "ID", nil, cols)
		assert.Error(t, err)
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		path := writeXLSX(t, "data", [][]string{{"ID", "POP"}, {"x", "1"}, {"x", "2"}})
		_, err := ReadAttributeXLSX(context.Background(), path, "", "ID", nil, cols)
		assert.Error(t, err)
	})

	t.Run("file missing", func(t *testing.T) {
		_, err := ReadAttributeXLSX(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"), "", "ID", nil, cols)
		assert.Error(t, err)
	})
}
