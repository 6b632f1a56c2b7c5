package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/docuflow/intake-service/internal/bootstrap"
	"github.com/docuflow/intake-service/internal/resilience"
	"github.com/docuflow/intake-service/internal/segment"
)

var (
	segmentColumns      string
	segmentInstructions string
	segmentRunsheetID   string
	segmentDocumentID   string
	segmentUser         string
)

var segmentCmd = &cobra.Command{
	Use:   "segment [file]",
	Short: "Detect the instruments in a multi-instrument upload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		instructions, err := readInstructions(segmentInstructions)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read file")
		}

		// Storage is optional here; the analysis is printed either way.
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Segmentation: true, Optional: true})
		if err != nil {
			return err
		}
		defer app.Close()
		if app.Segmenter == nil {
			return eris.Errorf("segmentation provider %q is not configured", cfg.Provider.Segmentation)
		}

		req := segment.Request{
			Document:           data,
			FileName:           filepath.Base(args[0]),
			RunsheetID:         segmentRunsheetID,
			DocumentID:         segmentDocumentID,
			Columns:            splitList(segmentColumns),
			ColumnInstructions: instructions,
			UserID:             segmentUser,
		}
		retry := resilience.FromSettings(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff)
		result, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (segment.Result, error) {
			return app.Segmenter.Segment(ctx, req)
		})
		if err != nil {
			return err
		}

		out := map[string]any{"success": true, "analysis": result.Analysis}
		if result.AnalysisID != "" {
			out["analysisId"] = result.AnalysisID
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	segmentCmd.Flags().StringVar(&segmentColumns, "columns", "", "comma-separated runsheet columns to extract per instrument")
	segmentCmd.Flags().StringVar(&segmentInstructions, "instructions", "", "JSON file mapping column names to extraction instructions")
	segmentCmd.Flags().StringVar(&segmentRunsheetID, "runsheet-id", "", "runsheet the upload belongs to")
	segmentCmd.Flags().StringVar(&segmentDocumentID, "document-id", "", "id of the uploaded document")
	segmentCmd.Flags().StringVar(&segmentUser, "user", "cli", "user id recorded with the analysis")
	rootCmd.AddCommand(segmentCmd)
}
