package segment

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/docuflow/intake-service/internal/extraction"
)

// ParseResponse interprets the provider's segmentation answer. It never
// fails: an unusable answer becomes a single Unknown Document instrument.
// The returned bool reports whether the fallback was used.
func ParseResponse(text string, columns []string, detectedPages int) (Analysis, bool) {
	obj, _, err := extraction.DecodeObject(text)
	if err == nil {
		var raw []any
		raw, err = instrumentList(obj)
		if err == nil {
			return normalize(obj, raw, columns, detectedPages)
		}
	}
	return Fallback(columns, detectedPages, err), true
}

// Fallback treats the whole upload as one instrument needing review.
func Fallback(columns []string, detectedPages int, cause error) Analysis {
	total := detectedPages
	if total < 1 {
		total = 1
	}
	return Analysis{
		Success:             true,
		InstrumentsDetected: 1,
		TotalPages:          total,
		Instruments: []Instrument{{
			InstrumentType: UnknownDocument,
			InstrumentName: UnknownDocument,
			PageStart:      1,
			PageEnd:        1,
			Confidence:     50,
			KeyIdentifiers: []string{},
			ExtractedData:  emptyFields(columns),
		}},
		ProcessingNotes: []string{
			fmt.Sprintf("Multi-instrument analysis could not be parsed (%v); treating the upload as a single document.", cause),
		},
	}
}

func instrumentList(obj map[string]any) ([]any, error) {
	v, ok := obj["instruments"]
	if !ok {
		return nil, eris.New("response has no instruments field")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, eris.Errorf("instruments is %T, not a list", v)
	}
	if len(list) == 0 {
		return nil, eris.New("response lists no instruments")
	}
	return list, nil
}

func normalize(obj map[string]any, raw []any, columns []string, detectedPages int) (Analysis, bool) {
	notes := stringList(obj["processingNotes"])

	instruments := make([]Instrument, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("Skipped instrument %d: not an object.", i+1))
			continue
		}
		instruments = append(instruments, normalizeInstrument(m, columns))
	}
	if len(instruments) == 0 {
		return Fallback(columns, detectedPages, eris.New("no instrument entries were objects")), true
	}
	sort.SliceStable(instruments, func(i, j int) bool {
		return instruments[i].PageStart < instruments[j].PageStart
	})

	total := detectedPages
	if total <= 0 {
		if n, ok := toNumber(obj["totalPages"]); ok && n > 0 {
			total = int(n)
		}
	}
	if total <= 0 {
		for _, inst := range instruments {
			total = max(total, inst.PageEnd)
		}
	}

	return Analysis{
		Success:             true,
		InstrumentsDetected: len(instruments),
		TotalPages:          total,
		Instruments:         instruments,
		ProcessingNotes:     append(notes, PageCoverageNotes(instruments, total)...),
	}, false
}

func normalizeInstrument(m map[string]any, columns []string) Instrument {
	inst := Instrument{
		InstrumentType: strings.TrimSpace(extraction.Stringify(m["instrumentType"])),
		InstrumentName: strings.TrimSpace(extraction.Stringify(m["instrumentName"])),
		PageStart:      1,
		Confidence:     50,
		KeyIdentifiers: stringList(m["keyIdentifiers"]),
	}
	if inst.InstrumentType == "" {
		inst.InstrumentType = UnknownDocument
	}
	if inst.InstrumentName == "" {
		inst.InstrumentName = inst.InstrumentType
	}

	if n, ok := toNumber(m["pageStart"]); ok && n >= 1 {
		inst.PageStart = int(n)
	}
	inst.PageEnd = inst.PageStart
	if n, ok := toNumber(m["pageEnd"]); ok && int(n) > inst.PageStart {
		inst.PageEnd = int(n)
	}
	if n, ok := toNumber(m["confidence"]); ok {
		inst.Confidence = int(math.Round(math.Max(0, math.Min(100, n))))
	}

	data, _ := m["extractedData"].(map[string]any)
	inst.ExtractedData = emptyFields(columns)
	if len(columns) == 0 {
		for k, v := range data {
			inst.ExtractedData[k] = extraction.Stringify(v)
		}
	}
	for _, col := range columns {
		if v, ok := data[col]; ok {
			inst.ExtractedData[col] = extraction.Stringify(v)
		}
	}
	return inst
}

// PageCoverageNotes describes gaps and overlaps between instruments sorted by
// PageStart. They are advisory; nothing is rejected.
func PageCoverageNotes(instruments []Instrument, totalPages int) []string {
	var notes []string
	next := 1
	for i, inst := range instruments {
		switch {
		case inst.PageStart > next:
			notes = append(notes, unassigned(next, inst.PageStart-1))
		case i > 0 && inst.PageStart < next:
			prev := instruments[i-1]
			notes = append(notes, fmt.Sprintf("%q (pages %s) overlaps %q (pages %s).",
				inst.InstrumentName, pageRange(inst.PageStart, inst.PageEnd),
				prev.InstrumentName, pageRange(prev.PageStart, prev.PageEnd)))
		}
		next = max(next, inst.PageEnd+1)
	}
	if totalPages > 0 && next <= totalPages {
		notes = append(notes, unassigned(next, totalPages))
	}
	if totalPages > 0 && next-1 > totalPages {
		notes = append(notes, fmt.Sprintf("Instrument page ranges extend to page %d but the document has %d page(s).", next-1, totalPages))
	}
	return notes
}

func unassigned(from, to int) string {
	if from == to {
		return fmt.Sprintf("Page %d is not assigned to any instrument.", from)
	}
	return fmt.Sprintf("Pages %d-%d are not assigned to any instrument.", from, to)
}

func pageRange(from, to int) string {
	if from == to {
		return fmt.Sprintf("%d", from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

func emptyFields(columns []string) map[string]any {
	out := make(map[string]any, len(columns))
	for _, col := range columns {
		out[col] = ""
	}
	return out
}

func stringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := strings.TrimSpace(extraction.Stringify(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
