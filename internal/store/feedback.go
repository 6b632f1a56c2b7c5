package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/docuflow/intake-service/internal/db"
	"github.com/docuflow/intake-service/internal/feedback"
)

const feedbackColumns = `id, user_id, document_type, original_extraction, user_corrections,
	confidence_scores, extraction_prompt, success_rate, created_at`

// FeedbackRepository stores feedback records in extraction_feedback.
type FeedbackRepository struct {
	db db.DB
}

// NewFeedbackRepository creates a FeedbackRepository.
func NewFeedbackRepository(d db.DB) *FeedbackRepository {
	return &FeedbackRepository{db: d}
}

// SaveFeedback inserts one record.
func (r *FeedbackRepository) SaveFeedback(ctx context.Context, rec feedback.Record) error {
	original, err := encodeJSON(rec.OriginalExtraction, "{}")
	if err != nil {
		return eris.Wrap(err, "encode original extraction")
	}
	corrections, err := encodeJSON(rec.UserCorrections, "{}")
	if err != nil {
		return eris.Wrap(err, "encode user corrections")
	}
	scores, err := encodeJSON(rec.ConfidenceScores, "{}")
	if err != nil {
		return eris.Wrap(err, "encode confidence scores")
	}

	err = r.db.Exec(ctx, `INSERT INTO extraction_feedback (`+feedbackColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.DocumentType, original, corrections,
		scores, rec.ExtractionPrompt, rec.SuccessRate, rec.CreatedAt,
	)
	return eris.Wrap(err, "insert extraction feedback")
}

// ListByDocumentType returns the user's records of exactly docType.
func (r *FeedbackRepository) ListByDocumentType(ctx context.Context, userID, docType string, minSuccessRate float64) ([]feedback.Record, error) {
	return r.list(ctx, `SELECT `+feedbackColumns+` FROM extraction_feedback
		WHERE user_id = $1 AND document_type = $2 AND success_rate >= $3
		ORDER BY created_at DESC LIMIT $4`,
		userID, docType, minSuccessRate, historyLimit)
}

// ListMatchingType returns the user's records whose document type contains
// docType or is contained in it, case-insensitively. The filter runs in SQL
// so the history limit applies to matching records only. LIKE wildcards in
// docType can only widen the result.
func (r *FeedbackRepository) ListMatchingType(ctx context.Context, userID, docType string, minSuccessRate float64) ([]feedback.Record, error) {
	query := strings.ToLower(strings.TrimSpace(docType))
	return r.list(ctx, `SELECT `+feedbackColumns+` FROM extraction_feedback
		WHERE user_id = $1 AND success_rate >= $3
		  AND (lower(document_type) LIKE $2 OR $5 LIKE '%' || lower(document_type) || '%')
		ORDER BY created_at DESC LIMIT $4`,
		userID, "%"+query+"%", minSuccessRate, historyLimit, query)
}

// ListSince returns the user's records created at or after since.
func (r *FeedbackRepository) ListSince(ctx context.Context, userID string, since time.Time) ([]feedback.Record, error) {
	return r.list(ctx, `SELECT `+feedbackColumns+` FROM extraction_feedback
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		userID, since.UTC())
}

func (r *FeedbackRepository) list(ctx context.Context, sql string, args ...any) ([]feedback.Record, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "query extraction feedback")
	}

	records := make([]feedback.Record, 0, len(rows))
	for _, row := range rows {
		rec := feedback.Record{
			ID:               asString(row["id"]),
			UserID:           asString(row["user_id"]),
			DocumentType:     asString(row["document_type"]),
			ExtractionPrompt: asString(row["extraction_prompt"]),
			SuccessRate:      asFloat(row["success_rate"]),
			CreatedAt:        asTime(row["created_at"]),
		}
		if err := decodeJSON(row["original_extraction"], &rec.OriginalExtraction); err != nil {
			return nil, eris.Wrapf(err, "decode original extraction of %s", rec.ID)
		}
		if err := decodeJSON(row["user_corrections"], &rec.UserCorrections); err != nil {
			return nil, eris.Wrapf(err, "decode user corrections of %s", rec.ID)
		}
		if err := decodeJSON(row["confidence_scores"], &rec.ConfidenceScores); err != nil {
			return nil, eris.Wrapf(err, "decode confidence scores of %s", rec.ID)
		}
		records = append(records, rec)
	}
	return records, nil
}
