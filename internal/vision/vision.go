// Package vision defines the provider-neutral request/response types used to
// send document images to a hosted vision model.
package vision

import (
	"context"
	"errors"
	"fmt"
)

// Attachment is a document payload sent alongside the prompt.
type Attachment struct {
	Data     []byte
	MIMEType string
}

// Request is a single vision completion request.
type Request struct {
	Prompt      string
	Attachments []Attachment
	Model       string
	MaxTokens   int
	Temperature float32
	// Seed is forwarded to providers that support deterministic sampling.
	Seed *int
	// HighDetail asks the provider for its higher-fidelity image path.
	HighDetail bool
	// JSON requests a JSON-only response where the provider supports it.
	JSON bool
}

// Response is the provider's text answer plus token usage.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is a hosted vision model.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// ProviderError reports a transport, auth, or rate-limit failure from a
// vision provider. The analysis core never retries these itself.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies a provider failure. Status 0 means the request
// never got an HTTP answer (network failure).
func NewProviderError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Retryable:  statusCode == 0 || isTransientStatus(statusCode),
		Err:        err,
	}
}

// IsRetryable reports whether err carries a ProviderError worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func isTransientStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
