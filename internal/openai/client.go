// Package openai provides a GPT-4 class vision client for document extraction.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/docuflow/intake-service/internal/vision"
)

const providerName = "openai"

// ChatAPI is the subset of the go-openai client we use.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client implements vision.Provider on the chat completions API.
type Client struct {
	api ChatAPI
}

// New creates a Client using the provided API key. baseURL may be empty.
func New(apiKey, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg)}
}

// NewWithAPI wraps an existing chat API implementation.
func NewWithAPI(api ChatAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Generate(ctx context.Context, req vision.Request) (vision.Response, error) {
	detail := openai.ImageURLDetailAuto
	if req.HighDetail {
		detail = openai.ImageURLDetailHigh
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
	}
	for _, a := range req.Attachments {
		if !strings.HasPrefix(a.MIMEType, "image/") {
			return vision.Response{}, vision.NewProviderError(providerName, 400,
				eris.Errorf("chat completions accept image attachments only, got %s", a.MIMEType))
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(a),
				Detail: detail,
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		Temperature: temperature(req.Temperature),
		Seed:        req.Seed,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return vision.Response{}, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return vision.Response{}, vision.NewProviderError(providerName, 0, errors.New("empty choices in response"))
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return vision.Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// temperature maps zero to the smallest positive float: go-openai drops a
// literal 0 from the payload, which the API then reads as its default of 1.
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func dataURL(a vision.Attachment) string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, base64.StdEncoding.EncodeToString(a.Data))
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return vision.NewProviderError(providerName, apiErr.HTTPStatusCode, errors.New(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return vision.NewProviderError(providerName, reqErr.HTTPStatusCode, reqErr.Err)
	}
	return vision.NewProviderError(providerName, 0, err)
}
