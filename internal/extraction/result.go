// Package extraction turns a document image and a column schema into
// structured field values using a hosted vision model.
package extraction

import "strings"

// Result is the structured output of one analysis call.
type Result struct {
	ExtractedData    map[string]string  `json:"extracted_data"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	DocumentType     string             `json:"document_type"`
	ProcessingNotes  string             `json:"processing_notes"`
}

// EmptyResult returns a result with every column mapped to "".
func EmptyResult(columns []string) Result {
	data := make(map[string]string, len(columns))
	for _, col := range columns {
		data[col] = ""
	}
	return Result{
		ExtractedData:    data,
		ConfidenceScores: map[string]float64{},
	}
}

// UniqueColumns trims names and drops blanks and duplicates, keeping order.
func UniqueColumns(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		col = strings.TrimSpace(col)
		if col == "" || seen[col] {
			continue
		}
		seen[col] = true
		out = append(out, col)
	}
	return out
}
