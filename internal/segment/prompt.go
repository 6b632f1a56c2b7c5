package segment

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the segmentation prompt. totalPages is 0 when unknown.
func BuildPrompt(columns []string, instructions map[string]string, totalPages int) string {
	var b strings.Builder
	b.WriteString("You are reviewing a recorded document packet that may contain several distinct legal instruments ")
	b.WriteString("(deeds, mortgages, releases, assignments, affidavits, leases, exhibits).\n\n")
	if totalPages > 0 {
		fmt.Fprintf(&b, "The attached document has %d page(s).\n\n", totalPages)
	}
	b.WriteString(`Tasks:
1. Identify every distinct instrument. Each instrument covers a contiguous page range; the next instrument starts on the page after the previous one ends.
2. Classify each instrument by its own title or purpose. Use whatever type name fits; there is no fixed list.
3. Give each boundary a confidence from 0 to 100:
   - 90-100: clear boundary (new title, recording stamp, signature block ends the prior instrument)
   - 70-89: probable boundary
   - 50-69: needs human review
   - below 50: uncertain, flag for manual review
4. List the key identifiers that told you where the instrument starts (titles, recording numbers, stamps).
5. Extract every field below independently for each instrument. Use "" when a field is not present.

Fields:
`)
	for _, col := range columns {
		fmt.Fprintf(&b, "- %q", col)
		if hint := strings.TrimSpace(instructions[col]); hint != "" {
			fmt.Fprintf(&b, ": %s", hint)
		}
		b.WriteByte('\n')
	}

	fields := make([]string, len(columns))
	for i, col := range columns {
		fields[i] = fmt.Sprintf("%q: \"\"", col)
	}
	b.WriteString(`
Respond with ONLY a JSON object, no markdown and no commentary:
{
  "success": true,
  "instrumentsDetected": 0,
  "totalPages": 0,
  "instruments": [
    {
      "instrumentType": "",
      "instrumentName": "",
      "pageStart": 1,
      "pageEnd": 1,
      "confidence": 0,
      "keyIdentifiers": [],
      "extractedData": {` + strings.Join(fields, ", ") + `}
    }
  ],
  "processingNotes": []
}
`)
	return b.String()
}
