// Package usage records AI provider usage (tokens, estimated cost, outcome)
// to an external collaborator. Recording never fails an analysis call.
package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/awsutil"
)

// Record is one provider call.
type Record struct {
	UserID        string    `json:"user_id"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Function      string    `json:"function"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Tracker receives usage records.
type Tracker interface {
	Track(ctx context.Context, rec Record) error
}

// SQSTracker publishes records to a queue consumed by the billing pipeline.
type SQSTracker struct {
	client   awsutil.SQSClient
	queueURL string
}

// NewSQSTracker creates a tracker publishing to queueURL.
func NewSQSTracker(client awsutil.SQSClient, queueURL string) *SQSTracker {
	return &SQSTracker{client: client, queueURL: queueURL}
}

func (t *SQSTracker) Track(ctx context.Context, rec Record) error {
	return t.client.SendJSON(ctx, t.queueURL, "ai_usage", rec)
}

// NopTracker drops records. Used when no queue is configured.
type NopTracker struct{}

func (NopTracker) Track(context.Context, Record) error { return nil }

// trackTimeout bounds one send so a slow queue adds little to request latency.
var trackTimeout = 2 * time.Second

// Emit stamps and sends rec, logging and swallowing any tracker error. The
// send gets its own deadline and still happens when ctx is already
// cancelled, so failed calls are recorded too.
func Emit(ctx context.Context, tracker Tracker, rec Record) {
	if tracker == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), trackTimeout)
	defer cancel()
	if err := tracker.Track(ctx, rec); err != nil {
		zap.L().Warn("failed to record usage",
			zap.String("function", rec.Function),
			zap.String("provider", rec.Provider),
			zap.Error(err),
		)
	}
}
