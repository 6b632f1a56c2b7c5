// Package anthropic provides a Claude vision client for document extraction.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/docuflow/intake-service/internal/vision"
)

const providerName = "anthropic"

// MessagesAPI is the subset of the Claude Messages service we use.
type MessagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client implements vision.Provider on the Claude Messages API.
type Client struct {
	messages MessagesAPI
}

// New creates a Claude Client using the provided API key.
func New(apiKey string) *Client {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{messages: &client.Messages}
}

// NewWithAPI wraps an existing Messages implementation.
func NewWithAPI(messages MessagesAPI) *Client {
	return &Client{messages: messages}
}

func (c *Client) Name() string { return providerName }

func (c *Client) Generate(ctx context.Context, req vision.Request) (vision.Response, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, a := range req.Attachments {
		encoded := base64.StdEncoding.EncodeToString(a.Data)
		if a.MIMEType == "application/pdf" {
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: encoded}))
			continue
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(a.MIMEType, encoded))
	}
	// Claude reads attachments best when they precede the instructions.
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return vision.Response{}, vision.NewProviderError(providerName, apiErr.StatusCode, err)
		}
		return vision.Response{}, vision.NewProviderError(providerName, 0, err)
	}

	out := vision.Response{
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.Text = block.Text
			break
		}
	}
	return out, nil
}
