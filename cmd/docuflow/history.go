package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/docuflow/intake-service/internal/bootstrap"
	"github.com/docuflow/intake-service/internal/segment"
)

var (
	historyUser       string
	historyRunsheetID string
	historyDocumentID string
)

type historyEntry struct {
	ID                  string          `json:"id"`
	FileName            string          `json:"fileName"`
	Status              string          `json:"status"`
	InstrumentsDetected int             `json:"instrumentsDetected"`
	ProcessingNotes     []string        `json:"processingNotes"`
	Analysis            json.RawMessage `json:"analysis,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored multi-instrument analyses of a document, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Segmentation: true, Optional: true})
		if err != nil {
			return err
		}
		defer app.Close()
		if app.Analyses == nil {
			return eris.New("no database configured")
		}

		recs, err := app.Analyses.ListForDocument(ctx, historyUser, historyRunsheetID, historyDocumentID)
		if err != nil {
			return eris.Wrap(err, "list analyses")
		}
		return writeJSON(cmd.OutOrStdout(), historyEntries(recs))
	},
}

func historyEntries(recs []segment.Record) []historyEntry {
	out := make([]historyEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, historyEntry{
			ID:                  r.ID,
			FileName:            r.FileName,
			Status:              r.Status,
			InstrumentsDetected: r.InstrumentsDetected,
			ProcessingNotes:     r.ProcessingNotes,
			Analysis:            r.Analysis,
			CreatedAt:           r.CreatedAt,
		})
	}
	return out
}

func init() {
	historyCmd.Flags().StringVar(&historyUser, "user", "", "user id (required)")
	historyCmd.Flags().StringVar(&historyRunsheetID, "runsheet-id", "", "runsheet id (required)")
	historyCmd.Flags().StringVar(&historyDocumentID, "document-id", "", "original document id (required)")
	_ = historyCmd.MarkFlagRequired("user")
	_ = historyCmd.MarkFlagRequired("runsheet-id")
	_ = historyCmd.MarkFlagRequired("document-id")
	rootCmd.AddCommand(historyCmd)
}
