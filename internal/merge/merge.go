package merge

import (
	"maps"
	"strings"
)

// Conflict is a field where both the target row and the extraction have a
// value.
type Conflict struct {
	Field         string `json:"field"`
	ExistingValue string `json:"existingValue"`
	NewValue      string `json:"newValue"`
}

// Policy selects how extracted values are written.
type Policy int

const (
	// ReplaceAll writes every extracted field.
	ReplaceAll Policy = iota
	// KeepExistingFillEmpty only fills cells that are empty.
	KeepExistingFillEmpty
	// Selective replaces conflicting fields marked in Resolution.Replace and
	// keeps the rest of the conflicts. Other fields are written.
	Selective
)

func (p Policy) String() string {
	switch p {
	case ReplaceAll:
		return "replace_all"
	case KeepExistingFillEmpty:
		return "keep_existing"
	case Selective:
		return "selective"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts the names returned by Policy.String.
func ParsePolicy(s string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace_all", "replace-all", "replace":
		return ReplaceAll, true
	case "keep_existing", "keep-existing", "keep", "fill_empty":
		return KeepExistingFillEmpty, true
	case "selective":
		return Selective, true
	}
	return 0, false
}

// Resolution is the caller's merge decision.
type Resolution struct {
	Policy  Policy
	Replace map[string]bool
}

// IsEmptyValue reports whether a cell counts as empty: blank after trimming
// or "n/a" in any case.
func IsEmptyValue(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "n/a")
}

// IsEmptyRow reports whether every column value in row is empty. With no
// columns, every key of the row is checked.
func IsEmptyRow(row Row, columns []string) bool {
	if len(columns) == 0 {
		for _, v := range row {
			if !IsEmptyValue(v) {
				return false
			}
		}
		return true
	}
	for _, col := range columns {
		if !IsEmptyValue(row[col]) {
			return false
		}
	}
	return true
}

// ComputeTarget returns the row to write to: explicit when given and not
// negative, else the first empty row, else len(dataset).
func ComputeTarget(dataset Dataset, columns []string, explicit *int) int {
	if explicit != nil && *explicit >= 0 {
		return *explicit
	}
	for i, row := range dataset {
		if IsEmptyRow(row, columns) {
			return i
		}
	}
	return len(dataset)
}

// DetectConflicts lists, in extracted order, every field where both the
// existing cell at rowIndex and the extracted value are non-empty.
func DetectConflicts(dataset Dataset, rowIndex int, extracted OrderedFields) []Conflict {
	row := rowAt(dataset, rowIndex)
	var conflicts []Conflict
	for _, f := range extracted {
		existing := row[f.Name]
		if IsEmptyValue(existing) || IsEmptyValue(f.Value) {
			continue
		}
		conflicts = append(conflicts, Conflict{Field: f.Name, ExistingValue: existing, NewValue: f.Value})
	}
	return conflicts
}

// Merge applies extracted to the row at rowIndex and returns the merged row
// and a new dataset. dataset is not modified. Only extracted keys change,
// only the target row changes, and a rowIndex past the end extends the
// dataset with empty rows.
func Merge(dataset Dataset, rowIndex int, extracted OrderedFields, res Resolution) (Row, Dataset) {
	if rowIndex < 0 {
		rowIndex = len(dataset)
	}
	out := make(Dataset, max(len(dataset), rowIndex+1))
	for i, row := range dataset {
		out[i] = maps.Clone(row)
	}
	for i := len(dataset); i < len(out); i++ {
		out[i] = Row{}
	}

	existing := out[rowIndex]
	merged := maps.Clone(existing)
	if merged == nil {
		merged = Row{}
	}
	for _, f := range extracted {
		current := existing[f.Name]
		switch res.Policy {
		case KeepExistingFillEmpty:
			if IsEmptyValue(current) {
				merged[f.Name] = f.Value
			}
		case Selective:
			conflict := !IsEmptyValue(current) && !IsEmptyValue(f.Value)
			if !conflict || res.Replace[f.Name] {
				merged[f.Name] = f.Value
			}
		default:
			merged[f.Name] = f.Value
		}
	}
	out[rowIndex] = merged
	return maps.Clone(merged), out
}

func rowAt(dataset Dataset, i int) Row {
	if i < 0 || i >= len(dataset) {
		return nil
	}
	return dataset[i]
}
