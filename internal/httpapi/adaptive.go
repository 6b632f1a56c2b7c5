package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/feedback"
	"github.com/docuflow/intake-service/internal/models"
)

type adaptiveRequest struct {
	Action             string         `json:"action"`
	OriginalExtraction map[string]any `json:"original_extraction"`
	UserCorrections    map[string]any `json:"user_corrections"`
	DocumentType       string         `json:"document_type"`
	ConfidenceScores   map[string]any `json:"confidence_scores"`
	ExtractionPrompt   string         `json:"extraction_prompt"`
	CurrentPrompt      string         `json:"current_prompt"`
	TargetFields       []string       `json:"target_fields"`
	Context            string         `json:"context"`
}

func (h *Handler) handleAdaptive(ctx context.Context, userID string, body []byte) (events.APIGatewayProxyResponse, error) {
	if h.learner == nil {
		return models.ErrorResponse(http.StatusServiceUnavailable, "adaptive extraction is not configured")
	}

	var req adaptiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return models.ErrorResponse(http.StatusBadRequest, "invalid request body")
	}

	switch req.Action {
	case "record_feedback":
		return h.recordFeedback(ctx, userID, req)
	case "get_improved_prompt":
		return h.improvedPrompt(ctx, userID, req)
	case "analyze_patterns":
		return h.analyzePatterns(ctx, userID)
	case "get_field_suggestions":
		return h.fieldSuggestions(ctx, userID, req)
	case "":
		return models.ErrorResponse(http.StatusBadRequest, "action is required")
	default:
		return models.ErrorResponse(http.StatusBadRequest, "Unknown action: "+req.Action)
	}
}

func (h *Handler) recordFeedback(ctx context.Context, userID string, req adaptiveRequest) (events.APIGatewayProxyResponse, error) {
	out, err := h.learner.RecordFeedback(ctx, userID, feedback.Input{
		OriginalExtraction: req.OriginalExtraction,
		UserCorrections:    req.UserCorrections,
		DocumentType:       req.DocumentType,
		ConfidenceScores:   scores(req.ConfidenceScores),
		ExtractionPrompt:   req.ExtractionPrompt,
	})
	if err != nil {
		return models.ErrorResponse(http.StatusBadRequest, err.Error())
	}

	recs := out.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return models.APIResponse(http.StatusOK, map[string]any{
		"success":            out.Persisted,
		"success_rate":       out.Record.SuccessRate,
		"insights_generated": len(out.Recommendations) > 0 || len(out.CorrectedFields) > 0,
		"corrected_fields":   out.CorrectedFields,
		"recommendations":    recs,
	})
}

func (h *Handler) improvedPrompt(ctx context.Context, userID string, req adaptiveRequest) (events.APIGatewayProxyResponse, error) {
	prompt := req.CurrentPrompt
	if prompt == "" {
		prompt = req.ExtractionPrompt
	}
	out, err := h.learner.ImprovedPrompt(ctx, userID, req.DocumentType, prompt, req.TargetFields)
	if err != nil {
		return learnerError("get_improved_prompt", err)
	}

	resp := map[string]any{
		"success":             true,
		"improved_prompt":     out.Prompt,
		"improvement_applied": out.Applied,
	}
	if out.DataPoints > 0 {
		resp["learning_data_points"] = out.DataPoints
	}
	if len(out.KeyImprovements) > 0 {
		resp["key_improvements"] = out.KeyImprovements
	}
	return models.APIResponse(http.StatusOK, resp)
}

func (h *Handler) analyzePatterns(ctx context.Context, userID string) (events.APIGatewayProxyResponse, error) {
	p, err := h.learner.AnalyzePatterns(ctx, userID, h.now())
	if err != nil {
		return learnerError("analyze_patterns", err)
	}
	return models.APIResponse(http.StatusOK, map[string]any{
		"success":         true,
		"patterns":        p,
		"recommendations": p.Recommendations,
	})
}

func (h *Handler) fieldSuggestions(ctx context.Context, userID string, req adaptiveRequest) (events.APIGatewayProxyResponse, error) {
	suggestions, err := h.learner.FieldSuggestions(ctx, userID, req.DocumentType, req.Context)
	if err != nil {
		return learnerError("get_field_suggestions", err)
	}
	return models.APIResponse(http.StatusOK, map[string]any{
		"success":          true,
		"suggested_fields": suggestions,
	})
}

func learnerError(action string, err error) (events.APIGatewayProxyResponse, error) {
	zap.L().Error("adaptive extraction failed", zap.String("action", action), zap.Error(err))
	return models.ErrorResponse(http.StatusInternalServerError, "Failed to "+strings.ReplaceAll(action, "_", " "))
}

// scores keeps the numeric confidence values of a loosely typed map.
func scores(raw map[string]any) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case float64:
			out[k] = val
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				out[k] = f
			}
		}
	}
	return out
}
