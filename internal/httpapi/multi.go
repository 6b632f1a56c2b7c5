package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/docuflow/intake-service/internal/models"
	"github.com/docuflow/intake-service/internal/resilience"
	"github.com/docuflow/intake-service/internal/segment"
)

type multiInstrumentRequest struct {
	DocumentData       string            `json:"documentData"`
	FileName           string            `json:"fileName"`
	RunsheetID         string            `json:"runsheetId"`
	AvailableColumns   []string          `json:"availableColumns"`
	ColumnInstructions map[string]string `json:"columnInstructions"`
	DocumentID         string            `json:"documentId"`
}

func (h *Handler) handleMultiInstrument(ctx context.Context, userID string, body []byte) (events.APIGatewayProxyResponse, error) {
	if h.segmenter == nil {
		return models.ErrorResponse(http.StatusServiceUnavailable, "multi-instrument analysis is not configured")
	}

	var req multiInstrumentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return models.ErrorResponse(http.StatusBadRequest, "invalid request body")
	}
	if req.DocumentData == "" {
		return models.ErrorResponse(http.StatusBadRequest, "documentData is required")
	}

	call := segment.Request{
		DataURL:            req.DocumentData,
		FileName:           req.FileName,
		RunsheetID:         req.RunsheetID,
		DocumentID:         req.DocumentID,
		Columns:            req.AvailableColumns,
		ColumnInstructions: req.ColumnInstructions,
		UserID:             userID,
	}
	result, err := resilience.DoVal(ctx, h.retryConfig("segmentation", segment.FunctionName),
		func(ctx context.Context) (segment.Result, error) {
			return h.segmenter.Segment(ctx, call)
		})
	if err != nil {
		return analysisError(err, true)
	}

	resp := map[string]any{
		"success":  true,
		"analysis": result.Analysis,
	}
	if result.AnalysisID != "" {
		resp["analysisId"] = result.AnalysisID
	}
	return models.APIResponse(http.StatusOK, resp)
}
