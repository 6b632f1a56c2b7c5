package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Outcome describes how a provider response was interpreted.
type Outcome string

const (
	OutcomeParsed    Outcome = "parsed"
	OutcomeRecovered Outcome = "recovered"
	OutcomeDegraded  Outcome = "degraded"
)

// ParseResponse interprets provider text as an extraction for columns. It
// never fails: unparseable text yields an all-empty result with a note.
func ParseResponse(text string, columns []string) (Result, Outcome) {
	obj, outcome, err := DecodeObject(text)
	if err != nil {
		res := EmptyResult(columns)
		res.ProcessingNotes = fmt.Sprintf(
			"Could not parse the provider response as JSON (%v). Fields were left empty for manual entry.", err)
		return res, OutcomeDegraded
	}
	return normalize(obj, columns), outcome
}

// DecodeObject parses text as a JSON object. Code fences are stripped first.
// When that fails, the first balanced {...} span is extracted and parsed.
func DecodeObject(text string) (map[string]any, Outcome, error) {
	cleaned := CleanMarkdownFences(text)
	if cleaned == "" {
		return nil, OutcomeDegraded, eris.New("empty response")
	}

	var obj map[string]any
	firstErr := json.Unmarshal([]byte(cleaned), &obj)
	if firstErr == nil && obj != nil {
		return obj, OutcomeParsed, nil
	}
	if firstErr == nil {
		firstErr = eris.New("response is not a JSON object")
	}

	span, ok := FirstObjectSpan(text)
	if !ok {
		return nil, OutcomeDegraded, eris.Wrap(firstErr, "no JSON object found")
	}
	obj = nil
	if err := json.Unmarshal([]byte(span), &obj); err != nil {
		return nil, OutcomeDegraded, eris.Wrap(err, "recovered JSON object is invalid")
	}
	return obj, OutcomeRecovered, nil
}

// CleanMarkdownFences strips a surrounding ``` or ```json fence.
func CleanMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[7:]
	} else if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FirstObjectSpan returns the first balanced top-level {...} in s. Braces
// inside JSON strings are ignored.
func FirstObjectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func normalize(obj map[string]any, columns []string) Result {
	res := EmptyResult(columns)

	data, ok := obj["extracted_data"].(map[string]any)
	if !ok {
		// Some models answer with one key per column at the top level.
		data = obj
	}
	for _, col := range columns {
		if v, present := data[col]; present {
			res.ExtractedData[col] = Stringify(v)
		}
	}

	if scores, ok := obj["confidence_scores"].(map[string]any); ok {
		for _, col := range columns {
			if v, present := scores[col]; present {
				if f, ok := toFloat(v); ok {
					res.ConfidenceScores[col] = ClampConfidence(f)
				}
			}
		}
	}

	res.DocumentType = strings.TrimSpace(Stringify(obj["document_type"]))
	res.ProcessingNotes = strings.TrimSpace(notesString(obj["processing_notes"]))
	return res
}

// Stringify renders a loosely typed JSON value as a field string.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func notesString(v any) string {
	if items, ok := v.([]any); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := Stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return Stringify(v)
}

// ClampConfidence maps a provider confidence into [0,1]. Values in (1,100]
// are read as percentages.
func ClampConfidence(f float64) float64 {
	switch {
	case math.IsNaN(f) || f <= 0:
		return 0
	case f <= 1:
		return f
	case f <= 100:
		return f / 100
	default:
		return 1
	}
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(val), "%")
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
