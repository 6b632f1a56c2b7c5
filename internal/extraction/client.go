package extraction

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/metrics"
	"github.com/docuflow/intake-service/internal/usage"
	"github.com/docuflow/intake-service/internal/vision"
)

// FunctionName labels usage records and metrics for single-document analysis.
const FunctionName = "analyze-document"

// ErrNoColumns is returned when the request names no columns to extract.
var ErrNoColumns = eris.New("at least one column is required")

// Request is one analysis call. Exactly one of Document or DataURL is used;
// Document wins when both are set.
type Request struct {
	Document           []byte
	DataURL            string
	DocumentName       string
	Columns            []string
	ColumnInstructions map[string]string
	// UseVision selects the higher-fidelity (and costlier) analysis path.
	UseVision bool
	UserID    string
}

// Config selects models and decoding settings.
type Config struct {
	FastModel   string
	VisionModel string
	MaxTokens   int
	Seed        int
}

// DefaultConfig returns the OpenAI models used in production.
func DefaultConfig() Config {
	return Config{
		FastModel:   "gpt-4o-mini",
		VisionModel: "gpt-4o",
		MaxTokens:   2000,
		Seed:        42,
	}
}

// Client analyzes single documents.
type Client struct {
	provider vision.Provider
	tracker  usage.Tracker
	costs    *usage.Calculator
	cfg      Config
}

// NewClient creates a Client. A nil tracker disables usage recording.
func NewClient(provider vision.Provider, tracker usage.Tracker, costs *usage.Calculator, cfg Config) *Client {
	if tracker == nil {
		tracker = usage.NopTracker{}
	}
	if costs == nil {
		costs = usage.NewCalculator(nil)
	}
	def := DefaultConfig()
	if cfg.FastModel == "" {
		cfg.FastModel = def.FastModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = def.VisionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	return &Client{provider: provider, tracker: tracker, costs: costs, cfg: cfg}
}

// Analyze extracts every column from the document. Unsupported encodings
// fail with *InputFormatError before the provider is called; provider
// failures come back as *vision.ProviderError and are not retried here.
// An unparseable provider answer is not an error: the result is degraded.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	columns := UniqueColumns(req.Columns)
	if len(columns) == 0 {
		return Result{}, ErrNoColumns
	}

	doc := Document{Data: req.Document}
	if len(doc.Data) == 0 {
		parsed, err := ParseDataURL(req.DataURL)
		if err != nil {
			return Result{}, err
		}
		doc = parsed
	}
	mimeType, err := ValidateImage(doc)
	if err != nil {
		return Result{}, err
	}

	model := c.cfg.FastModel
	if req.UseVision {
		model = c.cfg.VisionModel
	}
	seed := c.cfg.Seed

	started := time.Now()
	resp, err := c.provider.Generate(ctx, vision.Request{
		Prompt:      BuildPrompt(columns, req.ColumnInstructions),
		Attachments: []vision.Attachment{{Data: doc.Data, MIMEType: mimeType}},
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0,
		Seed:        &seed,
		HighDetail:  req.UseVision,
		JSON:        true,
	})
	metrics.ObserveProviderCall(c.provider.Name(), FunctionName, started, resp.InputTokens, resp.OutputTokens, err)

	rec := usage.Record{
		UserID:       req.UserID,
		Provider:     c.provider.Name(),
		Model:        model,
		Function:     FunctionName,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if resp.Model != "" {
		rec.Model = resp.Model
	}
	rec.EstimatedCost = c.costs.Estimate(rec.Model, rec.InputTokens, rec.OutputTokens)

	if err != nil {
		rec.Error = err.Error()
		usage.Emit(ctx, c.tracker, rec)
		zap.L().Warn("document analysis failed",
			zap.String("document", req.DocumentName),
			zap.String("provider", c.provider.Name()),
			zap.Bool("use_vision", req.UseVision),
			zap.Error(err),
		)
		return Result{}, err
	}

	rec.Success = true
	usage.Emit(ctx, c.tracker, rec)

	result, outcome := ParseResponse(resp.Text, columns)
	metrics.ObserveParse(FunctionName, string(outcome))
	zap.L().Info("document analyzed",
		zap.String("document", req.DocumentName),
		zap.String("model", rec.Model),
		zap.String("outcome", string(outcome)),
		zap.String("document_type", result.DocumentType),
		zap.Int("input_tokens", rec.InputTokens),
		zap.Int("output_tokens", rec.OutputTokens),
	)
	return result, nil
}
