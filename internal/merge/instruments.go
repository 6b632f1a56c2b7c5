package merge

import (
	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/segment"
)

// SelectInstruments turns chosen instruments into rows to append, in the
// order selected. A nil selection means all instruments; out-of-range and
// repeated indexes are skipped.
func SelectInstruments(analysis segment.Analysis, selected []int, columns []string) []OrderedFields {
	if selected == nil {
		selected = make([]int, len(analysis.Instruments))
		for i := range selected {
			selected[i] = i
		}
	}

	seen := make(map[int]bool, len(selected))
	var rows []OrderedFields
	for _, i := range selected {
		if i < 0 || i >= len(analysis.Instruments) || seen[i] {
			continue
		}
		seen[i] = true
		data := make(map[string]string, len(analysis.Instruments[i].ExtractedData))
		for k, v := range analysis.Instruments[i].ExtractedData {
			data[k] = extraction.Stringify(v)
		}
		rows = append(rows, FieldsFromMap(data, columns))
	}
	return rows
}

// Placement records where one row was written and what it overrode.
type Placement struct {
	RowIndex  int        `json:"rowIndex"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// PlaceAll writes each row to the next empty row (or appends) with res.
// Every row gets its own index: a row written earlier in the same call is
// never chosen again, even when the values written to it were all empty.
func PlaceAll(dataset Dataset, columns []string, rows []OrderedFields, res Resolution) (Dataset, []Placement) {
	placements := make([]Placement, 0, len(rows))
	written := make(map[int]bool, len(rows))
	for _, fields := range rows {
		idx := nextUnwritten(dataset, columns, written)
		conflicts := DetectConflicts(dataset, idx, fields)
		_, dataset = Merge(dataset, idx, fields, res)
		written[idx] = true
		placements = append(placements, Placement{RowIndex: idx, Conflicts: conflicts})
	}
	return dataset, placements
}

func nextUnwritten(dataset Dataset, columns []string, written map[int]bool) int {
	for i, row := range dataset {
		if !written[i] && IsEmptyRow(row, columns) {
			return i
		}
	}
	return len(dataset)
}
