// Package gemini provides a Gemini vision client for document extraction.
package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/docuflow/intake-service/internal/vision"
)

const providerName = "gemini"

// ModelsAPI is the subset of the genai Models service we use.
type ModelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements vision.Provider on the Gemini API. Gemini accepts PDFs
// inline, so multi-page documents can be sent without rasterizing.
type Client struct {
	models ModelsAPI
}

// New creates a Gemini Client using the provided API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, vision.NewProviderError(providerName, 0, err)
	}
	return &Client{models: client.Models}, nil
}

// NewWithAPI wraps an existing Models implementation.
func NewWithAPI(models ModelsAPI) *Client {
	return &Client{models: models}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Generate(ctx context.Context, req vision.Request) (vision.Response, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, a := range req.Attachments {
		parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Seed != nil {
		genConfig.Seed = genai.Ptr(int32(*req.Seed))
	}
	if req.JSON {
		genConfig.ResponseMIMEType = "application/json"
	}
	if req.HighDetail {
		genConfig.MediaResolution = genai.MediaResolutionHigh
	}

	resp, err := c.models.GenerateContent(ctx, req.Model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, genConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return vision.Response{}, vision.NewProviderError(providerName, apiErr.Code, err)
		}
		return vision.Response{}, vision.NewProviderError(providerName, 0, err)
	}

	out := vision.Response{Model: req.Model}
	if resp == nil {
		return out, nil
	}
	out.Text = resp.Text()
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	return out, nil
}
