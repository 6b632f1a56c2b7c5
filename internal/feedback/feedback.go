// Package feedback records user corrections to extractions and learns from
// them: improved prompts, field suggestions and per-user quality analytics.
package feedback

import (
	"context"
	"time"
)

// Record is one confirmed extraction and the corrections the user made.
// Records are immutable once saved.
type Record struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	DocumentType       string             `json:"document_type"`
	OriginalExtraction map[string]any     `json:"original_extraction"`
	UserCorrections    map[string]any     `json:"user_corrections"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores"`
	ExtractionPrompt   string             `json:"extraction_prompt"`
	SuccessRate        float64            `json:"success_rate"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Repository stores feedback records. List methods return newest first.
type Repository interface {
	SaveFeedback(ctx context.Context, rec Record) error
	// ListByDocumentType returns records whose type equals docType exactly.
	ListByDocumentType(ctx context.Context, userID, docType string, minSuccessRate float64) ([]Record, error)
	// ListMatchingType returns records whose type contains docType or is
	// contained in it, ignoring case. Callers re-check the match.
	ListMatchingType(ctx context.Context, userID, docType string, minSuccessRate float64) ([]Record, error)
	ListSince(ctx context.Context, userID string, since time.Time) ([]Record, error)
}

// SuccessRate is the share of original fields the user did not correct.
// An extraction with no fields scores 1.
func SuccessRate(original, corrections map[string]any) float64 {
	total := len(original)
	if total == 0 {
		return 1
	}
	rate := float64(total-len(corrections)) / float64(total)
	if rate < 0 {
		return 0
	}
	return rate
}
