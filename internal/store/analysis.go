package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/docuflow/intake-service/internal/db"
	"github.com/docuflow/intake-service/internal/segment"
)

// AnalysisRepository stores multi-instrument analyses in
// document_analysis_jobs.
type AnalysisRepository struct {
	db db.DB
}

// NewAnalysisRepository creates an AnalysisRepository.
func NewAnalysisRepository(d db.DB) *AnalysisRepository {
	return &AnalysisRepository{db: d}
}

// SaveAnalysis inserts one analysis record and returns the id it was
// stored under.
func (r *AnalysisRepository) SaveAnalysis(ctx context.Context, rec segment.Record) (string, error) {
	notes, err := encodeJSON(rec.ProcessingNotes, "[]")
	if err != nil {
		return "", eris.Wrap(err, "encode processing notes")
	}
	analysis := string(rec.Analysis)
	if analysis == "" {
		analysis = "{}"
	}

	id, err := r.db.Insert(ctx, `INSERT INTO document_analysis_jobs
		(id, runsheet_id, original_document_id, user_id, file_name,
		 instruments_detected, status, analysis, processing_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		rec.ID, rec.RunsheetID, rec.OriginalDocumentID, rec.UserID, rec.FileName,
		rec.InstrumentsDetected, rec.Status, analysis, notes, rec.CreatedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "insert document analysis")
	}
	return id, nil
}

// ListForDocument returns the analyses of one uploaded document, newest first.
func (r *AnalysisRepository) ListForDocument(ctx context.Context, userID, runsheetID, documentID string) ([]segment.Record, error) {
	rows, err := r.db.Query(ctx, `SELECT id, runsheet_id, original_document_id, user_id, file_name,
		instruments_detected, status, analysis, processing_notes, created_at
		FROM document_analysis_jobs
		WHERE user_id = $1 AND runsheet_id = $2 AND original_document_id = $3
		ORDER BY created_at DESC`,
		userID, runsheetID, documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "query document analyses")
	}

	records := make([]segment.Record, 0, len(rows))
	for _, row := range rows {
		var analysis any
		if err := decodeJSON(row["analysis"], &analysis); err != nil {
			return nil, eris.Wrap(err, "decode analysis")
		}
		raw, err := json.Marshal(analysis)
		if err != nil {
			return nil, eris.Wrap(err, "encode analysis")
		}
		var notes []string
		if err := decodeJSON(row["processing_notes"], &notes); err != nil {
			return nil, eris.Wrap(err, "decode processing notes")
		}
		records = append(records, segment.Record{
			ID:                  asString(row["id"]),
			RunsheetID:          asString(row["runsheet_id"]),
			OriginalDocumentID:  asString(row["original_document_id"]),
			UserID:              asString(row["user_id"]),
			FileName:            asString(row["file_name"]),
			InstrumentsDetected: asInt(row["instruments_detected"]),
			Status:              asString(row["status"]),
			Analysis:            raw,
			ProcessingNotes:     notes,
			CreatedAt:           asTime(row["created_at"]),
		})
	}
	return records, nil
}
