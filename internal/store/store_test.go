package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/intake-service/internal/db"
	"github.com/docuflow/intake-service/internal/feedback"
	"github.com/docuflow/intake-service/internal/segment"
)

type mockDB struct {
	queryFn  func(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	insertFn func(ctx context.Context, sql string, args ...any) (string, error)
	execFn   func(ctx context.Context, sql string, args ...any) error
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return nil, nil
}

func (m *mockDB) Insert(ctx context.Context, sql string, args ...any) (string, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, sql, args...)
	}
	return "test-id", nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) error {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return nil
}

func (m *mockDB) Close() {}

func openSQLite(t *testing.T) *db.SQLiteDB {
	t.Helper()
	d, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestSaveAnalysis_Args(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	repo := NewAnalysisRepository(&mockDB{insertFn: func(ctx context.Context, sql string, args ...any) (string, error) {
		gotSQL, gotArgs = sql, args
		return "an-1", nil
	}})

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	id, err := repo.SaveAnalysis(context.Background(), segment.Record{
		ID:                  "an-1",
		RunsheetID:          "rs-1",
		OriginalDocumentID:  "doc-1",
		UserID:              "user-1",
		FileName:            "deeds.pdf",
		InstrumentsDetected: 2,
		Status:              segment.StatusCompleted,
		Analysis:            json.RawMessage(`{"success":true}`),
		CreatedAt:           created,
	})
	require.NoError(t, err)
	assert.Equal(t, "an-1", id)

	assert.Contains(t, gotSQL, "INSERT INTO document_analysis_jobs")
	assert.Contains(t, gotSQL, "RETURNING id")
	require.Len(t, gotArgs, 10)
	assert.Equal(t, "an-1", gotArgs[0])
	assert.Equal(t, 2, gotArgs[5])
	assert.Equal(t, `{"success":true}`, gotArgs[7])
	assert.Equal(t, "[]", gotArgs[8])
	assert.Equal(t, created, gotArgs[9])
}

func TestSaveAnalysis_Error(t *testing.T) {
	repo := NewAnalysisRepository(&mockDB{insertFn: func(ctx context.Context, sql string, args ...any) (string, error) {
		return "", errors.New("db down")
	}})

	id, err := repo.SaveAnalysis(context.Background(), segment.Record{ID: "x"})
	require.Error(t, err)
	assert.Empty(t, id)
	assert.Contains(t, err.Error(), "db down")
}

func TestAnalysisRepository_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAnalysisRepository(openSQLite(t))

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	for _, rec := range []segment.Record{
		{ID: "a-old", RunsheetID: "rs", OriginalDocumentID: "doc", UserID: "u", Status: segment.StatusFallback,
			Analysis: json.RawMessage(`{"instrumentsDetected":1}`), ProcessingNotes: []string{"fell back"}, CreatedAt: older},
		{ID: "a-new", RunsheetID: "rs", OriginalDocumentID: "doc", UserID: "u", Status: segment.StatusCompleted,
			InstrumentsDetected: 3, Analysis: json.RawMessage(`{"instrumentsDetected":3}`), CreatedAt: newer},
		{ID: "a-other", RunsheetID: "rs", OriginalDocumentID: "doc", UserID: "someone-else", Status: segment.StatusCompleted,
			Analysis: json.RawMessage(`{}`), CreatedAt: newer},
	} {
		id, err := repo.SaveAnalysis(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, id)
	}

	got, err := repo.ListForDocument(ctx, "u", "rs", "doc")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a-new", got[0].ID)
	assert.Equal(t, 3, got[0].InstrumentsDetected)
	assert.JSONEq(t, `{"instrumentsDetected":3}`, string(got[0].Analysis))
	assert.True(t, newer.Equal(got[0].CreatedAt))
	assert.Equal(t, []string{"fell back"}, got[1].ProcessingNotes)
	assert.Equal(t, segment.StatusFallback, got[1].Status)
}

func TestSaveFeedback_Args(t *testing.T) {
	var gotArgs []any
	repo := NewFeedbackRepository(&mockDB{execFn: func(ctx context.Context, sql string, args ...any) error {
		gotArgs = args
		return nil
	}})

	err := repo.SaveFeedback(context.Background(), feedback.Record{
		ID:                 "fb-1",
		UserID:             "user-1",
		DocumentType:       "Deed",
		OriginalExtraction: map[string]any{"Grantor": "A"},
		SuccessRate:        1,
	})
	require.NoError(t, err)
	require.Len(t, gotArgs, 9)
	assert.Equal(t, `{"Grantor":"A"}`, gotArgs[3])
	assert.Equal(t, "{}", gotArgs[4])
	assert.Equal(t, "{}", gotArgs[5])
}

func TestFeedbackList_DecodesPgxValues(t *testing.T) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := NewFeedbackRepository(&mockDB{queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
		assert.True(t, strings.Contains(sql, "document_type = $2"))
		assert.Equal(t, []any{"user-1", "Deed", 0.8, historyLimit}, args)
		return []map[string]any{{
			"id":                  [16]byte{1},
			"user_id":             "user-1",
			"document_type":       "Deed",
			"original_extraction": map[string]any{"Grantor": "A", "Book": float64(12)},
			"user_corrections":    map[string]any{},
			"confidence_scores":   map[string]any{"Grantor": 0.9},
			"extraction_prompt":   "p",
			"success_rate":        float64(1),
			"created_at":          created,
		}}, nil
	}})

	got, err := repo.ListByDocumentType(context.Background(), "user-1", "Deed", 0.8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "01000000-0000-0000-0000-000000000000", got[0].ID)
	assert.Equal(t, "A", got[0].OriginalExtraction["Grantor"])
	assert.Equal(t, 0.9, got[0].ConfidenceScores["Grantor"])
	assert.Equal(t, created, got[0].CreatedAt)
}

func TestFeedbackList_QueryError(t *testing.T) {
	repo := NewFeedbackRepository(&mockDB{queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
		return nil, errors.New("timeout")
	}})

	_, err := repo.ListMatchingType(context.Background(), "user-1", "deed", 0.7)
	assert.Error(t, err)
}

func TestFeedbackRepository_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedbackRepository(openSQLite(t))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []feedback.Record{
		{ID: "1", UserID: "u", DocumentType: "Deed", SuccessRate: 1.0, CreatedAt: now.Add(-time.Hour),
			OriginalExtraction: map[string]any{"Grantor": "Newer"}},
		{ID: "2", UserID: "u", DocumentType: "Deed", SuccessRate: 0.9, CreatedAt: now.Add(-2 * time.Hour),
			OriginalExtraction: map[string]any{"Grantor": "Older"}, UserCorrections: map[string]any{}},
		{ID: "3", UserID: "u", DocumentType: "Deed", SuccessRate: 0.5, CreatedAt: now.Add(-40 * 24 * time.Hour),
			OriginalExtraction: map[string]any{"Grantor": "Old"}, UserCorrections: map[string]any{"Grantor": "Fixed"}},
		{ID: "4", UserID: "v", DocumentType: "Deed", SuccessRate: 1.0, CreatedAt: now},
	}
	for _, rec := range records {
		require.NoError(t, repo.SaveFeedback(ctx, rec))
	}

	byType, err := repo.ListByDocumentType(ctx, "u", "Deed", 0.8)
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, "1", byType[0].ID)
	assert.Equal(t, "Newer", byType[0].OriginalExtraction["Grantor"])

	all, err := repo.ListMatchingType(ctx, "u", "DEED", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "Fixed", all[2].UserCorrections["Grantor"])

	recent, err := repo.ListSince(ctx, "u", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestListMatchingType_FiltersInQuery(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	repo := NewFeedbackRepository(&mockDB{queryFn: func(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
		gotSQL, gotArgs = sql, args
		return nil, nil
	}})

	_, err := repo.ListMatchingType(context.Background(), "user-1", " Warranty Deed ", 0.7)
	require.NoError(t, err)

	assert.Contains(t, gotSQL, "lower(document_type) LIKE $2")
	assert.Contains(t, gotSQL, "LIMIT $4")
	assert.Equal(t, []any{"user-1", "%warranty deed%", 0.7, historyLimit, "warranty deed"}, gotArgs)
}

func TestListMatchingType_OlderMatchesSurviveOtherTypes(t *testing.T) {
	ctx := context.Background()
	repo := NewFeedbackRepository(openSQLite(t))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveFeedback(ctx, feedback.Record{
		ID: "old-deed", UserID: "u", DocumentType: "Warranty Deed", SuccessRate: 1, CreatedAt: base,
		OriginalExtraction: map[string]any{"Grantor": "Acme"},
	}))
	for i := 0; i < historyLimit+5; i++ {
		require.NoError(t, repo.SaveFeedback(ctx, feedback.Record{
			ID: fmt.Sprintf("lease-%d", i), UserID: "u", DocumentType: "Oil and Gas Lease", SuccessRate: 1,
			CreatedAt: base.Add(time.Duration(i+1) * time.Minute),
		}))
	}

	got, err := repo.ListMatchingType(ctx, "u", "deed", 0.7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old-deed", got[0].ID)

	wider, err := repo.ListMatchingType(ctx, "u", "special warranty deed of trust", 0.7)
	require.NoError(t, err)
	require.Len(t, wider, 1)
	assert.Equal(t, "old-deed", wider[0].ID)
}

func TestFeedbackRepository_ServiceIntegration(t *testing.T) {
	ctx := context.Background()
	svc := feedback.NewService(NewFeedbackRepository(openSQLite(t)))

	out, err := svc.RecordFeedback(ctx, "u", feedback.Input{
		OriginalExtraction: map[string]any{"Grantor": "Acme", "Grantee": "Beta", "Date": "", "Book": "1", "Page": "2"},
		UserCorrections:    map[string]any{"Date": "2024-01-01", "Page": "3"},
		DocumentType:       "Deed",
	})
	require.NoError(t, err)
	assert.True(t, out.Persisted)
	assert.InDelta(t, 0.6, out.Record.SuccessRate, 1e-9)

	suggestions, err := svc.FieldSuggestions(ctx, "u", "deed", "")
	require.NoError(t, err)
	assert.Empty(t, suggestions)

	patterns, err := svc.AnalyzePatterns(ctx, "u", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, patterns.RecordsAnalyzed)
	assert.Equal(t, 2, len(patterns.CommonFailures))
}
