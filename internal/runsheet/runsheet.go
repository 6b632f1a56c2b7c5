// Package runsheet reads and writes runsheets stored as XLSX workbooks: a
// header row naming the columns, then one row per instrument.
package runsheet

import (
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/docuflow/intake-service/internal/merge"
)

// DefaultSheet is the sheet name used when a workbook is created.
const DefaultSheet = "Runsheet"

// Sheet is a runsheet in memory.
type Sheet struct {
	Name    string
	Columns []string
	Rows    merge.Dataset
}

// New returns an empty runsheet with the given columns.
func New(columns []string) *Sheet {
	return &Sheet{Name: DefaultSheet, Columns: slices.Clone(columns), Rows: merge.Dataset{}}
}

// Load reads the named sheet, or the first sheet when name is empty. Header
// cells that are blank or repeated are skipped along with their column.
// Every row carries every column; trailing blank rows are dropped.
func Load(path, name string) (*Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "runsheet: open file")
	}

	sheet, err := pickSheet(f, name)
	if err != nil {
		return nil, err
	}

	out := &Sheet{Name: sheet.Name, Rows: merge.Dataset{}}
	if len(sheet.Rows) == 0 {
		return out, nil
	}

	header := sheet.Rows[0]
	index := make(map[int]string, len(header.Cells))
	for i, cell := range header.Cells {
		col := strings.TrimSpace(cell.String())
		if col == "" || slices.Contains(out.Columns, col) {
			continue
		}
		index[i] = col
		out.Columns = append(out.Columns, col)
	}

	for _, r := range sheet.Rows[1:] {
		row := make(merge.Row, len(out.Columns))
		for _, col := range out.Columns {
			row[col] = ""
		}
		if r != nil {
			for i, cell := range r.Cells {
				if col, ok := index[i]; ok {
					row[col] = cell.String()
				}
			}
		}
		out.Rows = append(out.Rows, row)
	}
	for len(out.Rows) > 0 && merge.IsEmptyRow(out.Rows[len(out.Rows)-1], out.Columns) {
		out.Rows = out.Rows[:len(out.Rows)-1]
	}
	return out, nil
}

// Save writes the runsheet to a new workbook at path. Row keys that are not
// columns are appended as extra columns in name order.
func (s *Sheet) Save(path string) error {
	columns := s.AllColumns()

	name := s.Name
	if name == "" {
		name = DefaultSheet
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrap(err, "runsheet: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range columns {
		header.AddCell().SetString(col)
	}
	for _, r := range s.Rows {
		row := sheet.AddRow()
		for _, col := range columns {
			row.AddCell().SetString(r[col])
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "runsheet: save file")
	}
	return nil
}

// AllColumns returns Columns followed by any other keys present in rows.
func (s *Sheet) AllColumns() []string {
	columns := slices.Clone(s.Columns)
	var extra []string
	for _, r := range s.Rows {
		for k := range r {
			if !slices.Contains(columns, k) && !slices.Contains(extra, k) {
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("runsheet: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("runsheet: workbook has no sheets")
	}
	return f.Sheets[0], nil
}
