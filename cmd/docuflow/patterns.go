package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/docuflow/intake-service/internal/bootstrap"
)

var patternsUser string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Summarize a user's correction feedback from the last 30 days",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Feedback: true})
		if err != nil {
			return err
		}
		defer app.Close()

		p, err := app.Feedback.AnalyzePatterns(ctx, patternsUser, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "analyze patterns")
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"patterns":        p,
			"recommendations": p.Recommendations,
		})
	},
}

func init() {
	patternsCmd.Flags().StringVar(&patternsUser, "user", "", "user id (required)")
	_ = patternsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(patternsCmd)
}
