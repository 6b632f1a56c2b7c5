package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/awsutil"
	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/metrics"
	"github.com/docuflow/intake-service/internal/usage"
	"github.com/docuflow/intake-service/internal/vision"
)

// FunctionName labels usage records and metrics for segmentation.
const FunctionName = "analyze-multi-instrument"

// Status values stored with an analysis record.
const (
	StatusCompleted = "completed"
	StatusFallback  = "fallback"
)

// Request is one segmentation call. Document wins over DataURL when both
// are set.
type Request struct {
	Document           []byte
	DataURL            string
	FileName           string
	RunsheetID         string
	DocumentID         string
	Columns            []string
	ColumnInstructions map[string]string
	UserID             string
}

// Result is the analysis plus the id it was stored under. AnalysisID is
// empty when persistence failed or is not configured.
type Result struct {
	Analysis   Analysis
	AnalysisID string
}

// Record is the audit row written for every segmentation.
type Record struct {
	ID                  string
	RunsheetID          string
	OriginalDocumentID  string
	UserID              string
	FileName            string
	InstrumentsDetected int
	Status              string
	Analysis            json.RawMessage
	ProcessingNotes     []string
	CreatedAt           time.Time
}

// AnalysisStore persists segmentation records. SaveAnalysis returns the id
// the record was stored under.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec Record) (string, error)
}

// Config selects the model and decoding settings.
type Config struct {
	Model     string
	MaxTokens int
	Seed      int
}

// Segmenter detects instrument boundaries.
type Segmenter struct {
	provider vision.Provider
	tracker  usage.Tracker
	costs    *usage.Calculator
	store    AnalysisStore
	archive  awsutil.DocumentArchive
	cfg      Config

	countPages func([]byte) (int, error)
	newID      func() string
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithStore persists every analysis.
func WithStore(store AnalysisStore) Option {
	return func(s *Segmenter) { s.store = store }
}

// WithArchive copies the original upload to the document archive.
func WithArchive(archive awsutil.DocumentArchive) Option {
	return func(s *Segmenter) { s.archive = archive }
}

// WithUsage records provider usage and estimated cost.
func WithUsage(tracker usage.Tracker, costs *usage.Calculator) Option {
	return func(s *Segmenter) {
		if tracker != nil {
			s.tracker = tracker
		}
		if costs != nil {
			s.costs = costs
		}
	}
}

// New creates a Segmenter.
func New(provider vision.Provider, cfg Config, opts ...Option) *Segmenter {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	s := &Segmenter{
		provider:   provider,
		tracker:    usage.NopTracker{},
		costs:      usage.NewCalculator(nil),
		cfg:        cfg,
		countPages: PDFPageCount,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment analyzes an upload. Raster images and PDFs are accepted; any
// other encoding fails with *extraction.InputFormatError. Provider failures
// are returned as is. Nothing after the provider call can fail it: an
// unusable answer falls back to one instrument and storage problems are
// only logged.
func (s *Segmenter) Segment(ctx context.Context, req Request) (Result, error) {
	columns := extraction.UniqueColumns(req.Columns)

	doc := extraction.Document{Data: req.Document}
	if len(doc.Data) == 0 {
		parsed, err := extraction.ParseDataURL(req.DataURL)
		if err != nil {
			return Result{}, err
		}
		doc = parsed
	}

	var mimeType string
	pages := 1
	if extraction.IsPDF(doc.Data) {
		mimeType = "application/pdf"
		n, err := s.countPages(doc.Data)
		if err != nil {
			zap.L().Warn("could not read pdf page count",
				zap.String("file", req.FileName), zap.Error(err))
			n = 0
		}
		pages = n
	} else {
		m, err := extraction.ValidateImage(doc)
		if err != nil {
			return Result{}, err
		}
		mimeType = m
	}

	seed := s.cfg.Seed
	started := time.Now()
	resp, err := s.provider.Generate(ctx, vision.Request{
		Prompt:      BuildPrompt(columns, req.ColumnInstructions, pages),
		Attachments: []vision.Attachment{{Data: doc.Data, MIMEType: mimeType}},
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: 0,
		Seed:        &seed,
		HighDetail:  true,
		JSON:        true,
	})
	metrics.ObserveProviderCall(s.provider.Name(), FunctionName, started, resp.InputTokens, resp.OutputTokens, err)

	rec := usage.Record{
		UserID:       req.UserID,
		Provider:     s.provider.Name(),
		Model:        s.cfg.Model,
		Function:     FunctionName,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if resp.Model != "" {
		rec.Model = resp.Model
	}
	rec.EstimatedCost = s.costs.Estimate(rec.Model, rec.InputTokens, rec.OutputTokens)
	if err != nil {
		rec.Error = err.Error()
		usage.Emit(ctx, s.tracker, rec)
		return Result{}, err
	}
	rec.Success = true
	usage.Emit(ctx, s.tracker, rec)

	analysis, fellBack := ParseResponse(resp.Text, columns, pages)
	status := StatusCompleted
	if fellBack {
		status = StatusFallback
		metrics.ObserveParse(FunctionName, "fallback")
	} else {
		metrics.ObserveParse(FunctionName, "parsed")
	}

	analysisID := s.persist(ctx, s.newID(), status, req, analysis)
	s.archiveDocument(ctx, req, analysisID, mimeType, doc.Data)

	zap.L().Info("multi-instrument analysis complete",
		zap.String("file", req.FileName),
		zap.String("runsheet_id", req.RunsheetID),
		zap.String("status", status),
		zap.Int("instruments", analysis.InstrumentsDetected),
		zap.Int("pages", analysis.TotalPages),
	)
	return Result{Analysis: analysis, AnalysisID: analysisID}, nil
}

// persist stores the analysis and returns its stored id, or "" when it was
// not stored.
func (s *Segmenter) persist(ctx context.Context, id, status string, req Request, analysis Analysis) string {
	if s.store == nil {
		return ""
	}
	payload, err := json.Marshal(analysis)
	if err != nil {
		zap.L().Warn("failed to encode analysis", zap.Error(err))
		return ""
	}
	storedID, err := s.store.SaveAnalysis(ctx, Record{
		ID:                  id,
		RunsheetID:          req.RunsheetID,
		OriginalDocumentID:  req.DocumentID,
		UserID:              req.UserID,
		FileName:            req.FileName,
		InstrumentsDetected: analysis.InstrumentsDetected,
		Status:              status,
		Analysis:            payload,
		ProcessingNotes:     analysis.ProcessingNotes,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		zap.L().Warn("failed to persist multi-instrument analysis",
			zap.String("runsheet_id", req.RunsheetID),
			zap.Error(err))
		return ""
	}
	return storedID
}

func (s *Segmenter) archiveDocument(ctx context.Context, req Request, analysisID, mimeType string, data []byte) {
	if s.archive == nil {
		return
	}
	if analysisID == "" {
		analysisID = "unsaved-" + s.newID()
	}
	key := ArchiveKey(req.RunsheetID, analysisID, req.FileName)
	if err := s.archive.PutDocument(ctx, key, mimeType, data); err != nil {
		zap.L().Warn("failed to archive original document", zap.String("key", key), zap.Error(err))
	}
}

// ArchiveKey is the object key of an archived upload.
func ArchiveKey(runsheetID, analysisID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "document"
	}
	if runsheetID == "" {
		runsheetID = "unassigned"
	}
	return fmt.Sprintf("documents/%s/%s/%s", runsheetID, analysisID, name)
}
