// Package httpapi serves the analysis and learning endpoints, both as an
// API Gateway Lambda handler and as a chi router.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/feedback"
	"github.com/docuflow/intake-service/internal/models"
	"github.com/docuflow/intake-service/internal/resilience"
	"github.com/docuflow/intake-service/internal/segment"
	"github.com/docuflow/intake-service/internal/vision"
)

// WarmerSource marks EventBridge keep-warm events.
const WarmerSource = "docuflow.warmer"

// Extractor analyzes single documents.
type Extractor interface {
	Analyze(ctx context.Context, req extraction.Request) (extraction.Result, error)
}

// Segmenter splits documents into instruments.
type Segmenter interface {
	Segment(ctx context.Context, req segment.Request) (segment.Result, error)
}

// Learner is the feedback store.
type Learner interface {
	RecordFeedback(ctx context.Context, userID string, in feedback.Input) (feedback.RecordOutcome, error)
	ImprovedPrompt(ctx context.Context, userID, docType, currentPrompt string, targetFields []string) (feedback.PromptImprovement, error)
	FieldSuggestions(ctx context.Context, userID, docType, hint string) ([]feedback.FieldSuggestion, error)
	AnalyzePatterns(ctx context.Context, userID string, now time.Time) (feedback.Patterns, error)
}

// Authenticator resolves an Authorization header to a user id.
type Authenticator interface {
	UserID(authorization string) (string, error)
}

// Handler holds dependencies for the three endpoints. A nil dependency
// makes its endpoint answer 503.
type Handler struct {
	auth      Authenticator
	extractor Extractor
	segmenter Segmenter
	learner   Learner
	retry     resilience.RetryConfig
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithExtractor enables the single-document endpoint.
func WithExtractor(e Extractor) Option {
	return func(h *Handler) { h.extractor = e }
}

// WithSegmenter enables the multi-instrument endpoint.
func WithSegmenter(s Segmenter) Option {
	return func(h *Handler) { h.segmenter = s }
}

// WithLearner enables the adaptive extraction endpoint.
func WithLearner(l Learner) Option {
	return func(h *Handler) { h.learner = l }
}

// WithRetry sets the retry policy for provider calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(h *Handler) { h.retry = cfg }
}

// New creates a Handler.
func New(auth Authenticator, opts ...Option) *Handler {
	h := &Handler{
		auth:  auth,
		retry: resilience.DefaultRetryConfig(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type endpoint func(ctx context.Context, userID string, body []byte) (events.APIGatewayProxyResponse, error)

// Handle is the Lambda entry point. It accepts API Gateway proxy events and
// EventBridge warmer pings.
func (h *Handler) Handle(ctx context.Context, rawEvent json.RawMessage) (events.APIGatewayProxyResponse, error) {
	var warmer struct {
		Source string `json:"source"`
	}
	if json.Unmarshal(rawEvent, &warmer) == nil && warmer.Source == WarmerSource {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "warm"}, nil
	}

	var event events.APIGatewayProxyRequest
	if err := json.Unmarshal(rawEvent, &event); err != nil {
		return models.ErrorResponse(http.StatusBadRequest, "invalid request")
	}
	return h.Route(ctx, event)
}

// Route dispatches a proxy request by path.
func (h *Handler) Route(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if event.HTTPMethod == http.MethodOptions {
		return models.Preflight(), nil
	}

	path := event.Resource
	if path == "" {
		path = event.Path
	}
	path = strings.TrimRight(path, "/")

	var ep endpoint
	switch {
	case strings.HasSuffix(path, "/analyze-multi-instrument"):
		ep = h.handleMultiInstrument
	case strings.HasSuffix(path, "/analyze"), strings.HasSuffix(path, "/analyze-document"):
		ep = h.handleAnalyze
	case strings.HasSuffix(path, "/adaptive-extraction"):
		ep = h.handleAdaptive
	default:
		return models.ErrorResponse(http.StatusNotFound, "Not found")
	}
	if event.HTTPMethod != http.MethodPost {
		return models.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed")
	}

	userID, err := h.auth.UserID(header(event, "Authorization"))
	if err != nil {
		zap.L().Info("rejected unauthenticated request", zap.String("path", path), zap.Error(err))
		return models.ErrorResponse(http.StatusUnauthorized, "Unauthorized")
	}

	body, err := requestBody(event)
	if err != nil {
		return models.ErrorResponse(http.StatusBadRequest, "invalid request body")
	}
	return ep(ctx, userID, body)
}

func header(event events.APIGatewayProxyRequest, name string) string {
	for k, v := range event.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	for k, v := range event.MultiValueHeaders {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func requestBody(event events.APIGatewayProxyRequest) ([]byte, error) {
	if event.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(event.Body)
	}
	return []byte(event.Body), nil
}

// analysisError maps analysis failures to responses. Input format problems
// are the caller's to fix; provider failures carry a retry hint.
func analysisError(err error, useVision bool) (events.APIGatewayProxyResponse, error) {
	var formatErr *extraction.InputFormatError
	if errors.As(err, &formatErr) {
		return models.APIResponse(http.StatusBadRequest, map[string]any{
			"success":          false,
			"error":            formatErr.Hint,
			"fileType":         formatErr.FileType,
			"supportedFormats": formatErr.SupportedFormats,
		})
	}
	if errors.Is(err, extraction.ErrNoColumns) {
		return models.ErrorResponse(http.StatusBadRequest, err.Error())
	}

	var providerErr *vision.ProviderError
	if errors.As(err, &providerErr) {
		zap.L().Error("vision provider failed",
			zap.String("provider", providerErr.Provider),
			zap.Int("status", providerErr.StatusCode),
			zap.Error(err))
		body := map[string]any{
			"success":   false,
			"error":     "The document analysis service is unavailable. Please try again.",
			"retryable": providerErr.Retryable,
		}
		if providerErr.Retryable && !useVision {
			body["hint"] = "If this keeps happening, retry with use_vision enabled."
		}
		return models.APIResponse(http.StatusInternalServerError, body)
	}

	zap.L().Error("document analysis failed", zap.Error(err))
	return models.ErrorResponse(http.StatusInternalServerError, "Document analysis failed")
}

func (h *Handler) retryConfig(provider, operation string) resilience.RetryConfig {
	cfg := h.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(provider, operation)
	}
	return cfg
}
