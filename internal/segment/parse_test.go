package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"Grantor", "Grantee", "Instrument Number"}

func TestParseResponse_ProseFallsBack(t *testing.T) {
	analysis, fellBack := ParseResponse("This packet appears to contain a deed and a release.", columns, 4)

	require.True(t, fellBack)
	assert.True(t, analysis.Success)
	assert.Equal(t, 1, analysis.InstrumentsDetected)
	assert.Equal(t, 4, analysis.TotalPages)
	require.Len(t, analysis.Instruments, 1)
	inst := analysis.Instruments[0]
	assert.Equal(t, 1, inst.PageStart)
	assert.Equal(t, 1, inst.PageEnd)
	assert.Equal(t, 50, inst.Confidence)
	assert.Equal(t, UnknownDocument, inst.InstrumentType)
	assert.Equal(t, map[string]any{"Grantor": "", "Grantee": "", "Instrument Number": ""}, inst.ExtractedData)
	require.NotEmpty(t, analysis.ProcessingNotes)
	assert.Contains(t, analysis.ProcessingNotes[0], "could not be parsed")
}

func TestParseResponse_MissingInstrumentsFallsBack(t *testing.T) {
	for _, text := range []string{
		`{"success": true, "totalPages": 2}`,
		`{"instruments": []}`,
		`{"instruments": "deed"}`,
		`{"instruments": [1, 2]}`,
	} {
		analysis, fellBack := ParseResponse(text, columns, 0)
		assert.True(t, fellBack, text)
		assert.Equal(t, 1, analysis.InstrumentsDetected, text)
		assert.Equal(t, 1, analysis.TotalPages, text)
	}
}

func TestParseResponse_Normalizes(t *testing.T) {
	text := "```json\n" + `{
		"success": true,
		"instrumentsDetected": 7,
		"totalPages": 99,
		"instruments": [
			{"instrumentType": "Release of Lien", "pageStart": 3, "pageEnd": 2, "confidence": 140,
			 "keyIdentifiers": "RELEASE", "extractedData": {"Grantor": "First Bank", "Extra": "x"}},
			{"instrumentType": "Warranty Deed", "instrumentName": "Smith to Doe", "pageStart": 1, "pageEnd": 2,
			 "confidence": 92.6, "keyIdentifiers": ["WARRANTY DEED", "Doc #2020-123"],
			 "extractedData": {"Grantor": "John Smith", "Instrument Number": 20200123}}
		],
		"processingNotes": ["Page 3 is faint"]
	}` + "\n```"

	analysis, fellBack := ParseResponse(text, columns, 3)

	require.False(t, fellBack)
	assert.Equal(t, 2, analysis.InstrumentsDetected)
	assert.Equal(t, 3, analysis.TotalPages)

	deed := analysis.Instruments[0]
	assert.Equal(t, "Warranty Deed", deed.InstrumentType)
	assert.Equal(t, "Smith to Doe", deed.InstrumentName)
	assert.Equal(t, 93, deed.Confidence)
	assert.Equal(t, []string{"WARRANTY DEED", "Doc #2020-123"}, deed.KeyIdentifiers)
	assert.Equal(t, map[string]any{"Grantor": "John Smith", "Grantee": "", "Instrument Number": "20200123"}, deed.ExtractedData)

	release := analysis.Instruments[1]
	assert.Equal(t, 3, release.PageStart)
	assert.Equal(t, 3, release.PageEnd)
	assert.Equal(t, 100, release.Confidence)
	assert.Equal(t, "Release of Lien", release.InstrumentName)
	assert.Equal(t, []string{"RELEASE"}, release.KeyIdentifiers)
	assert.NotContains(t, release.ExtractedData, "Extra")

	assert.Equal(t, []string{"Page 3 is faint"}, analysis.ProcessingNotes)
}

func TestParseResponse_TotalPagesFromProvider(t *testing.T) {
	text := `{"totalPages": 5, "instruments": [{"instrumentType": "Deed", "pageStart": 1, "pageEnd": 5, "confidence": 95}]}`

	analysis, _ := ParseResponse(text, columns, 0)
	assert.Equal(t, 5, analysis.TotalPages)
	assert.Empty(t, analysis.ProcessingNotes)
}

func TestPageCoverageNotes(t *testing.T) {
	insts := []Instrument{
		{InstrumentName: "Deed", PageStart: 2, PageEnd: 3},
		{InstrumentName: "Mortgage", PageStart: 3, PageEnd: 5},
		{InstrumentName: "Release", PageStart: 8, PageEnd: 8},
	}

	notes := PageCoverageNotes(insts, 10)

	assert.Equal(t, []string{
		"Page 1 is not assigned to any instrument.",
		`"Mortgage" (pages 3-5) overlaps "Deed" (pages 2-3).`,
		"Pages 6-7 are not assigned to any instrument.",
		"Pages 9-10 are not assigned to any instrument.",
	}, notes)
}

func TestPageCoverageNotes_Contiguous(t *testing.T) {
	insts := []Instrument{
		{PageStart: 1, PageEnd: 2},
		{PageStart: 3, PageEnd: 3},
	}
	assert.Empty(t, PageCoverageNotes(insts, 3))
	assert.Len(t, PageCoverageNotes(insts, 2), 1)
}

func TestConfidenceBand(t *testing.T) {
	assert.Equal(t, "clear", ConfidenceBand(90))
	assert.Equal(t, "probable", ConfidenceBand(89))
	assert.Equal(t, "review", ConfidenceBand(50))
	assert.Equal(t, "uncertain", ConfidenceBand(49))
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(columns, map[string]string{"Grantor": "Seller"}, 6)
	assert.Contains(t, prompt, "6 page(s)")
	assert.Contains(t, prompt, `- "Grantor": Seller`)
	assert.Contains(t, prompt, `"Instrument Number": ""`)
	assert.Contains(t, prompt, "90-100")
}
