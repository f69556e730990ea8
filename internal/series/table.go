// Package series assembles per-year interpolation results into neighborhood
// time-series tables. Each yearly table is an immutable value; assembly is a
// join over those values rather than accumulation into a shared workspace.
package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tracthist/internal/overlay"
)

// Table is one census year's interpolated neighborhood values.
type Table struct {
	Year   int
	attrs  []string
	ids    []string
	values map[string]map[string]float64
}

// FromResult captures an interpolation result as a yearly table.
func FromResult(year int, res *overlay.ResultTable) Table {
	t := Table{
		Year:   year,
		attrs:  res.Attributes(),
		ids:    res.TargetIDs(),
		values: make(map[string]map[string]float64),
	}
	for _, id := range t.ids {
		row := make(map[string]float64, len(t.attrs))
		for _, a := range t.attrs {
			row[a] = res.Value(id, a)
		}
		t.values[id] = row
	}
	return t
}

// Attributes returns the attribute names in declaration order.
func (t Table) Attributes() []string { return append([]string(nil), t.attrs...) }

// IDs returns the neighborhood identifiers.
func (t Table) IDs() []string { return append([]string(nil), t.ids...) }

// Value returns one cell; ok is false when the neighborhood is absent.
func (t Table) Value(id, attr string) (float64, bool) {
	row, found := t.values[id]
	if !found {
		return 0, false
	}
	v, found := row[attr]
	return v, found
}

// Column identifies one joined column: an attribute in a given year.
type Column struct {
	Attr string
	Year int
}

// Name returns the column header, e.g. "pop_1940".
func (c Column) Name() string { return fmt.Sprintf("%s_%d", c.Attr, c.Year) }

// Joined is the outer join of yearly tables on neighborhood identifier.
type Joined struct {
	ids    []string
	cols   []Column
	values map[string]map[Column]float64
}

// OuterJoin merges yearly tables, keyed by neighborhood ID. Every
// neighborhood appearing in any year gets a row; cells for years that do not
// know the neighborhood stay absent rather than reading as zero. Tables must
// have distinct years; rows are ordered by identifier, columns by year then
// by each table's attribute order.
func OuterJoin(tables []Table) (*Joined, error) {
	sorted := append([]Table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	years := make(map[int]bool, len(sorted))
	j := &Joined{values: make(map[string]map[Column]float64)}
	idSet := make(map[string]bool)

	for _, t := range sorted {
		if years[t.Year] {
			return nil, eris.Errorf("series: duplicate year %d in join", t.Year)
		}
		years[t.Year] = true

		for _, a := range t.attrs {
			j.cols = append(j.cols, Column{Attr: a, Year: t.Year})
		}
		for _, id := range t.ids {
			if !idSet[id] {
				idSet[id] = true
				j.ids = append(j.ids, id)
			}
			row := j.values[id]
			if row == nil {
				row = make(map[Column]float64)
				j.values[id] = row
			}
			for _, a := range t.attrs {
				row[Column{Attr: a, Year: t.Year}] = t.values[id][a]
			}
		}
	}
	sort.Strings(j.ids)
	return j, nil
}

// IDs returns the joined row identifiers in output order.
func (j *Joined) IDs() []string { return append([]string(nil), j.ids...) }

// Columns returns the joined columns in output order.
func (j *Joined) Columns() []Column { return append([]Column(nil), j.cols...) }

// Value returns one joined cell; ok is false for neighborhoods a year never
// produced.
func (j *Joined) Value(id string, col Column) (float64, bool) {
	row, found := j.values[id]
	if !found {
		return 0, false
	}
	v, found := row[col]
	return v, found
}

// WriteCSV writes the joined table, one row per neighborhood. Absent cells
// are written empty, distinguishing "not covered that year" from a genuine
// zero estimate.
func (j *Joined) WriteCSV(w io.Writer, idHeader string) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(j.cols)+1)
	header = append(header, idHeader)
	for _, c := range j.cols {
		header = append(header, c.Name())
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "series: write csv header")
	}

	for _, id := range j.ids {
		record := make([]string, 0, len(j.cols)+1)
		record = append(record, id)
		for _, c := range j.cols {
			if v, ok := j.Value(id, c); ok {
				record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "series: write csv row %s", id)
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "series: flush csv")
}
