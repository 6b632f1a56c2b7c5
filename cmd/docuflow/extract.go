package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docuflow/intake-service/internal/bootstrap"
	"github.com/docuflow/intake-service/internal/convert"
	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/httpapi"
	"github.com/docuflow/intake-service/internal/resilience"
)

var (
	extractColumns      string
	extractInstructions string
	extractVision       bool
	extractConvert      bool
	extractConcurrency  int
	extractOut          string
)

// Formats convert.ToJPEG can turn into something the providers accept.
var convertible = map[string]bool{"bmp": true, "tiff": true, "heic": true}

type fileResult struct {
	File     string             `json:"file"`
	Analysis *extraction.Result `json:"analysis,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type extractOptions struct {
	columns      []string
	instructions map[string]string
	useVision    bool
	convert      bool
	concurrency  int
	retry        resilience.RetryConfig
}

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Extract runsheet fields from one or more document images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		instructions, err := readInstructions(extractInstructions)
		if err != nil {
			return err
		}

		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Extraction: true})
		if err != nil {
			return err
		}
		defer app.Close()

		results, err := extractFiles(ctx, app.Extractor, args, extractOptions{
			columns:      splitList(extractColumns),
			instructions: instructions,
			useVision:    extractVision,
			convert:      extractConvert,
			concurrency:  extractConcurrency,
			retry:        resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff),
		})
		if err != nil {
			return err
		}

		if extractOut == "" {
			return writeJSON(cmd.OutOrStdout(), results)
		}
		f, err := os.Create(extractOut)
		if err != nil {
			return eris.Wrap(err, "create output")
		}
		defer f.Close()
		return writeJSON(f, results)
	},
}

// extractFiles analyzes files concurrently. A failed file is reported in its
// result and does not stop the batch. Results keep the order of files.
func extractFiles(ctx context.Context, extractor httpapi.Extractor, files []string, opts extractOptions) ([]fileResult, error) {
	if len(opts.columns) == 0 {
		return nil, extraction.ErrNoColumns
	}
	if opts.concurrency <= 0 {
		opts.concurrency = 1
	}

	results := make([]fileResult, len(files))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)

	for i, path := range files {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))
			results[i].File = path

			res, err := extractFile(gctx, extractor, path, opts)
			if err != nil {
				failed.Add(1)
				log.Error("extraction failed", zap.Error(err))
				results[i].Error = err.Error()
				return nil // don't abort batch on individual failure
			}
			results[i].Analysis = &res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch extraction")
	}

	zap.L().Info("extraction complete",
		zap.Int("files", len(files)),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

func extractFile(ctx context.Context, extractor httpapi.Extractor, path string, opts extractOptions) (extraction.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extraction.Result{}, eris.Wrap(err, "read file")
	}

	if opts.convert {
		_, err := extraction.ValidateImage(extraction.Document{Data: data})
		var formatErr *extraction.InputFormatError
		if errors.As(err, &formatErr) && convertible[formatErr.FileType] {
			converted, convErr := convert.ToJPEG(data)
			if convErr != nil {
				return extraction.Result{}, convErr
			}
			zap.L().Info("converted document to jpeg",
				zap.String("file", path), zap.String("from", formatErr.FileType))
			data = converted
		}
	}

	req := extraction.Request{
		Document:           data,
		DocumentName:       filepath.Base(path),
		Columns:            opts.columns,
		ColumnInstructions: opts.instructions,
		UseVision:          opts.useVision,
	}
	return resilience.DoVal(ctx, opts.retry, func(ctx context.Context) (extraction.Result, error) {
		return extractor.Analyze(ctx, req)
	})
}

func init() {
	extractCmd.Flags().StringVar(&extractColumns, "columns", "", "comma-separated runsheet columns to extract (required)")
	extractCmd.Flags().StringVar(&extractInstructions, "instructions", "", "JSON file mapping column names to extraction instructions")
	extractCmd.Flags().BoolVar(&extractVision, "vision", false, "use the higher-fidelity vision model")
	extractCmd.Flags().BoolVar(&extractConvert, "convert", false, "convert BMP, TIFF, and HEIC images to JPEG before upload")
	extractCmd.Flags().IntVar(&extractConcurrency, "concurrency", 4, "number of documents analyzed at once")
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "write results to this file instead of stdout")
	_ = extractCmd.MarkFlagRequired("columns")
	rootCmd.AddCommand(extractCmd)
}
