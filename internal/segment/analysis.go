// Package segment splits a multi-instrument upload (for example a recorded
// packet holding a deed, a release and an affidavit) into instrument
// boundaries with per-instrument field extraction.
package segment

// UnknownDocument is the instrument type used when the provider's answer
// cannot be interpreted.
const UnknownDocument = "Unknown Document"

// Instrument is one legal instrument detected in the upload.
type Instrument struct {
	InstrumentType string         `json:"instrumentType"`
	InstrumentName string         `json:"instrumentName"`
	PageStart      int            `json:"pageStart"`
	PageEnd        int            `json:"pageEnd"`
	Confidence     int            `json:"confidence"`
	KeyIdentifiers []string       `json:"keyIdentifiers"`
	ExtractedData  map[string]any `json:"extractedData"`
}

// Analysis is the segmentation of one upload.
type Analysis struct {
	Success             bool         `json:"success"`
	InstrumentsDetected int          `json:"instrumentsDetected"`
	TotalPages          int          `json:"totalPages"`
	Instruments         []Instrument `json:"instruments"`
	ProcessingNotes     []string     `json:"processingNotes"`
}

// ConfidenceBand is the advisory reading of an instrument confidence.
func ConfidenceBand(confidence int) string {
	switch {
	case confidence >= 90:
		return "clear"
	case confidence >= 70:
		return "probable"
	case confidence >= 50:
		return "review"
	default:
		return "uncertain"
	}
}
