package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/merge"
	"github.com/docuflow/intake-service/internal/runsheet"
	"github.com/docuflow/intake-service/internal/segment"
)

var (
	mergeRunsheet    string
	mergeSheet       string
	mergeExtraction  string
	mergeRow         int
	mergePolicy      string
	mergeReplace     string
	mergeInstruments string
	mergeDryRun      bool
)

type mergeOptions struct {
	runsheetPath string
	sheet        string
	input        []byte
	row          int
	resolution   merge.Resolution
	// instruments selects analysis instruments by index; nil means all.
	instruments []int
	dryRun      bool
}

type mergeReport struct {
	Policy     string            `json:"policy"`
	Placements []merge.Placement `json:"placements"`
	Rows       int               `json:"rows"`
	Saved      bool              `json:"saved"`
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge an extraction or multi-instrument analysis into an XLSX runsheet",
	Long:  "Reads the output of extract, segment, or the HTTP API and writes it into a runsheet, reporting every cell whose existing value conflicted with the extracted one.",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, ok := merge.ParsePolicy(mergePolicy)
		if !ok {
			return eris.Errorf("unknown policy %q (want replace_all, keep_existing, or selective)", mergePolicy)
		}
		input, err := os.ReadFile(mergeExtraction)
		if err != nil {
			return eris.Wrap(err, "read extraction")
		}
		instruments, err := parseIndexes(mergeInstruments)
		if err != nil {
			return err
		}

		replace := map[string]bool{}
		for _, f := range splitList(mergeReplace) {
			replace[f] = true
		}

		report, err := mergeIntoRunsheet(mergeOptions{
			runsheetPath: mergeRunsheet,
			sheet:        mergeSheet,
			input:        input,
			row:          mergeRow,
			resolution:   merge.Resolution{Policy: policy, Replace: replace},
			instruments:  instruments,
			dryRun:       mergeDryRun,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

// mergeIntoRunsheet applies one extraction result or the selected
// instruments of an analysis to the runsheet. A missing runsheet file is
// created with the extracted columns.
func mergeIntoRunsheet(opts mergeOptions) (mergeReport, error) {
	single, analysis, err := decodeMergeInput(opts.input)
	if err != nil {
		return mergeReport{}, err
	}

	sheet, err := openRunsheet(opts.runsheetPath, opts.sheet, single, analysis)
	if err != nil {
		return mergeReport{}, err
	}

	var placements []merge.Placement
	if analysis != nil {
		rows := merge.SelectInstruments(*analysis, opts.instruments, sheet.Columns)
		sheet.Rows, placements = merge.PlaceAll(sheet.Rows, sheet.Columns, rows, opts.resolution)
	} else {
		fields := merge.FieldsFromMap(single.ExtractedData, sheet.Columns)
		idx := merge.ComputeTarget(sheet.Rows, sheet.Columns, &opts.row)
		conflicts := merge.DetectConflicts(sheet.Rows, idx, fields)
		_, sheet.Rows = merge.Merge(sheet.Rows, idx, fields, opts.resolution)
		placements = []merge.Placement{{RowIndex: idx, Conflicts: conflicts}}
	}

	report := mergeReport{
		Policy:     opts.resolution.Policy.String(),
		Placements: placements,
		Rows:       len(sheet.Rows),
	}
	if opts.dryRun {
		return report, nil
	}
	if err := sheet.Save(opts.runsheetPath); err != nil {
		return mergeReport{}, err
	}
	report.Saved = true
	zap.L().Info("runsheet updated",
		zap.String("path", opts.runsheetPath),
		zap.Int("rows_written", len(placements)),
	)
	return report, nil
}

// decodeMergeInput accepts a bare extraction result, a bare analysis, an
// API response wrapping either in "analysis", or the array written by
// extract (its first successful entry is used).
func decodeMergeInput(data []byte) (*extraction.Result, *segment.Analysis, error) {
	var batch []struct {
		Analysis *extraction.Result `json:"analysis"`
	}
	if json.Unmarshal(data, &batch) == nil {
		for _, entry := range batch {
			if entry.Analysis != nil {
				return entry.Analysis, nil, nil
			}
		}
		return nil, nil, eris.New("extraction file has no successful result")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, eris.Wrap(err, "parse extraction file")
	}
	if inner, ok := raw["analysis"]; ok {
		return decodeMergeInput(inner)
	}
	if _, ok := raw["instruments"]; ok {
		var a segment.Analysis
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, nil, eris.Wrap(err, "parse analysis")
		}
		return nil, &a, nil
	}
	if _, ok := raw["extracted_data"]; ok {
		var r extraction.Result
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, nil, eris.Wrap(err, "parse extraction result")
		}
		return &r, nil, nil
	}
	return nil, nil, eris.New("extraction file has neither extracted_data nor instruments")
}

func openRunsheet(path, name string, single *extraction.Result, analysis *segment.Analysis) (*runsheet.Sheet, error) {
	if _, err := os.Stat(path); err == nil {
		return runsheet.Load(path, name)
	} else if !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "stat runsheet")
	}

	var columns []string
	seen := map[string]bool{}
	add := func(data map[string]string) {
		for _, f := range merge.FieldsFromMap(data, nil) {
			if !seen[f.Name] {
				seen[f.Name] = true
				columns = append(columns, f.Name)
			}
		}
	}
	if single != nil {
		add(single.ExtractedData)
	}
	if analysis != nil {
		for _, inst := range analysis.Instruments {
			data := make(map[string]string, len(inst.ExtractedData))
			for k, v := range inst.ExtractedData {
				data[k] = extraction.Stringify(v)
			}
			add(data)
		}
	}
	sheet := runsheet.New(columns)
	if name != "" {
		sheet.Name = name
	}
	return sheet, nil
}

func parseIndexes(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, eris.Errorf("invalid instrument index %q", p)
		}
		out = append(out, i)
	}
	return out, nil
}

func init() {
	mergeCmd.Flags().StringVar(&mergeRunsheet, "runsheet", "", "runsheet XLSX file (created if missing)")
	mergeCmd.Flags().StringVar(&mergeSheet, "sheet", "", "sheet name (default: first sheet)")
	mergeCmd.Flags().StringVar(&mergeExtraction, "extraction", "", "JSON output of extract, segment, or the HTTP API")
	mergeCmd.Flags().IntVar(&mergeRow, "row", -1, "target row index for a single extraction (default: first empty row)")
	mergeCmd.Flags().StringVar(&mergePolicy, "policy", "replace_all", "replace_all, keep_existing, or selective")
	mergeCmd.Flags().StringVar(&mergeReplace, "replace", "", "comma-separated conflicting fields to overwrite under the selective policy")
	mergeCmd.Flags().StringVar(&mergeInstruments, "instruments", "", "comma-separated instrument indexes to add (default: all)")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "report placements and conflicts without saving")
	_ = mergeCmd.MarkFlagRequired("runsheet")
	_ = mergeCmd.MarkFlagRequired("extraction")
	rootCmd.AddCommand(mergeCmd)
}
