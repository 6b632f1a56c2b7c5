package extraction

import (
	"fmt"
	"strings"
)

const extractionPromptHeader = `You are a data entry assistant for land and title records (deeds, mortgages, leases, assignments, releases, affidavits).

Read the attached document image and extract the value for each field listed below.

Fields to extract:
`

const extractionPromptRules = `
Rules:
- Copy values exactly as written (names, legal descriptions, book/page and instrument numbers).
- Write dates as they appear on the document unless a field instruction says otherwise.
- If a field is not present or not legible, use an empty string "". Never guess.
- Give each field a confidence between 0 and 1 for how sure you are of the value.
- Classify the document (for example "Warranty Deed", "Oil and Gas Lease", "Mortgage").
- Use processing_notes for anything the reviewer should know (illegible areas, handwriting, stamps).

Respond with ONLY a JSON object, no markdown and no commentary, in exactly this shape:
`

// BuildPrompt renders the extraction prompt for the given column schema.
// Instructions for columns not in the schema are ignored.
func BuildPrompt(columns []string, instructions map[string]string) string {
	var b strings.Builder
	b.WriteString(extractionPromptHeader)
	for _, col := range columns {
		fmt.Fprintf(&b, "- %q", col)
		if hint := strings.TrimSpace(instructions[col]); hint != "" {
			fmt.Fprintf(&b, ": %s", hint)
		}
		b.WriteByte('\n')
	}
	b.WriteString(extractionPromptRules)
	b.WriteString(responseShape(columns))
	return b.String()
}

func responseShape(columns []string) string {
	data := make([]string, len(columns))
	scores := make([]string, len(columns))
	for i, col := range columns {
		data[i] = fmt.Sprintf("    %q: \"\"", col)
		scores[i] = fmt.Sprintf("    %q: 0.0", col)
	}
	return "{\n" +
		"  \"extracted_data\": {\n" + strings.Join(data, ",\n") + "\n  },\n" +
		"  \"confidence_scores\": {\n" + strings.Join(scores, ",\n") + "\n  },\n" +
		"  \"document_type\": \"\",\n" +
		"  \"processing_notes\": \"\"\n" +
		"}\n"
}
