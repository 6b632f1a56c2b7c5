package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deedColumns = []string{"Grantor", "Grantee", "Recording Date", "Book/Page"}

func TestParseResponse_CleanJSON(t *testing.T) {
	text := `{
		"extracted_data": {"Grantor": "John Smith", "Grantee": "Jane Doe", "Unexpected": "drop me"},
		"confidence_scores": {"Grantor": 0.95, "Grantee": 92, "Book/Page": "0.4"},
		"document_type": "Warranty Deed",
		"processing_notes": "Stamp partially illegible"
	}`

	res, outcome := ParseResponse(text, deedColumns)

	assert.Equal(t, OutcomeParsed, outcome)
	assert.Equal(t, map[string]string{
		"Grantor":        "John Smith",
		"Grantee":        "Jane Doe",
		"Recording Date": "",
		"Book/Page":      "",
	}, res.ExtractedData)
	assert.InDelta(t, 0.95, res.ConfidenceScores["Grantor"], 1e-9)
	assert.InDelta(t, 0.92, res.ConfidenceScores["Grantee"], 1e-9)
	assert.InDelta(t, 0.4, res.ConfidenceScores["Book/Page"], 1e-9)
	assert.Equal(t, "Warranty Deed", res.DocumentType)
	assert.Equal(t, "Stamp partially illegible", res.ProcessingNotes)
}

func TestParseResponse_CodeFence(t *testing.T) {
	text := "```json\n{\"extracted_data\": {\"Grantor\": \"A\"}, \"document_type\": \"Deed\"}\n```"

	res, outcome := ParseResponse(text, deedColumns)

	assert.Equal(t, OutcomeParsed, outcome)
	assert.Equal(t, "A", res.ExtractedData["Grantor"])
	assert.Equal(t, "Deed", res.DocumentType)
}

func TestParseResponse_RecoversFromProse(t *testing.T) {
	text := `Here is the data you asked for:
{"extracted_data": {"Grantor": "Smith {Trustee}", "Grantee": "Quote \" and } brace"}, "document_type": "Deed"}
Let me know if you need anything else. {not json}`

	res, outcome := ParseResponse(text, deedColumns)

	assert.Equal(t, OutcomeRecovered, outcome)
	assert.Equal(t, "Smith {Trustee}", res.ExtractedData["Grantor"])
	assert.Equal(t, `Quote " and } brace`, res.ExtractedData["Grantee"])
}

func TestParseResponse_Degraded(t *testing.T) {
	for _, text := range []string{
		"I'm sorry, I can't read this document.",
		"",
		`{"extracted_data": {"Grantor": "unterminated`,
		`[1, 2, 3]`,
	} {
		res, outcome := ParseResponse(text, deedColumns)

		assert.Equal(t, OutcomeDegraded, outcome, text)
		require.Len(t, res.ExtractedData, len(deedColumns))
		for _, col := range deedColumns {
			assert.Equal(t, "", res.ExtractedData[col])
		}
		assert.Contains(t, res.ProcessingNotes, "Could not parse")
	}
}

func TestParseResponse_TopLevelColumns(t *testing.T) {
	text := `{"Grantor": "A", "Recording Date": "01/02/2020", "document_type": "Lease"}`

	res, _ := ParseResponse(text, deedColumns)

	assert.Equal(t, "A", res.ExtractedData["Grantor"])
	assert.Equal(t, "01/02/2020", res.ExtractedData["Recording Date"])
	assert.Equal(t, "Lease", res.DocumentType)
}

func TestParseResponse_NonStringValues(t *testing.T) {
	text := `{"extracted_data": {"Grantor": ["A", "B"], "Grantee": null, "Book/Page": 123.5, "Recording Date": {"y": 2020}},
		"processing_notes": ["faded", "handwritten margin"]}`

	res, _ := ParseResponse(text, deedColumns)

	assert.Equal(t, "A, B", res.ExtractedData["Grantor"])
	assert.Equal(t, "", res.ExtractedData["Grantee"])
	assert.Equal(t, "123.5", res.ExtractedData["Book/Page"])
	assert.Equal(t, `{"y":2020}`, res.ExtractedData["Recording Date"])
	assert.Equal(t, "faded; handwritten margin", res.ProcessingNotes)
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-3))
	assert.Equal(t, 0.5, ClampConfidence(0.5))
	assert.Equal(t, 1.0, ClampConfidence(1))
	assert.Equal(t, 0.85, ClampConfidence(85))
	assert.Equal(t, 1.0, ClampConfidence(250))
}

func TestFirstObjectSpan(t *testing.T) {
	span, ok := FirstObjectSpan(`noise {"a": {"b": "}"}} tail {"c": 1}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": "}"}}`, span)

	_, ok = FirstObjectSpan(`{"a": 1`)
	assert.False(t, ok)

	_, ok = FirstObjectSpan("no braces")
	assert.False(t, ok)
}

func TestCleanMarkdownFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanMarkdownFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanMarkdownFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanMarkdownFences(`  {"a":1}  `))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]string{"Grantor", "Legal Description"}, map[string]string{
		"Legal Description": "Include section, township and range",
		"Ignored":           "not a column",
	})

	assert.Contains(t, prompt, `- "Grantor"`)
	assert.Contains(t, prompt, `- "Legal Description": Include section, township and range`)
	assert.NotContains(t, prompt, "not a column")
	assert.Contains(t, prompt, `"extracted_data"`)
	assert.Contains(t, prompt, `"confidence_scores"`)
	assert.Contains(t, prompt, "ONLY a JSON object")
}
