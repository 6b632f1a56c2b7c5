package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/models"
	"github.com/docuflow/intake-service/internal/resilience"
)

type analyzeRequest struct {
	DocumentData          string `json:"document_data"`
	DocumentName          string `json:"document_name"`
	ExtractionPreferences struct {
		Columns            []string          `json:"columns"`
		ColumnInstructions map[string]string `json:"column_instructions"`
		UseVision          bool              `json:"use_vision"`
	} `json:"extraction_preferences"`
}

func (h *Handler) handleAnalyze(ctx context.Context, userID string, body []byte) (events.APIGatewayProxyResponse, error) {
	if h.extractor == nil {
		return models.ErrorResponse(http.StatusServiceUnavailable, "document analysis is not configured")
	}

	var req analyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return models.ErrorResponse(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentData == "" {
		return models.ErrorResponse(http.StatusBadRequest, "document_data is required")
	}

	prefs := req.ExtractionPreferences
	call := extraction.Request{
		DataURL:            req.DocumentData,
		DocumentName:       req.DocumentName,
		Columns:            prefs.Columns,
		ColumnInstructions: prefs.ColumnInstructions,
		UseVision:          prefs.UseVision,
		UserID:             userID,
	}
	result, err := resilience.DoVal(ctx, h.retryConfig("extraction", extraction.FunctionName),
		func(ctx context.Context) (extraction.Result, error) {
			return h.extractor.Analyze(ctx, call)
		})
	if err != nil {
		return analysisError(err, prefs.UseVision)
	}

	return models.APIResponse(http.StatusOK, map[string]any{
		"success":  true,
		"analysis": result,
	})
}
