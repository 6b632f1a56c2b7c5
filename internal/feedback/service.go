package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docuflow/intake-service/internal/extraction"
	"github.com/docuflow/intake-service/internal/merge"
)

const (
	improvedPromptMinRate   = 0.8
	suggestionMinRate       = 0.7
	reviewPromptBelow       = 0.7
	fieldAccuracyBelow      = 0.8
	maxExemplarsPerField    = 2
	maxSuggestions          = 10
	maxSuggestionExamples   = 3
	maxExampleLength        = 50
	maxCommonFailures       = 10
	patternWindow           = 30 * 24 * time.Hour
	lowConfidenceThreshold  = 0.7
	highConfidenceThreshold = 0.9
)

// Service implements the learning store operations.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

// NewService creates a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Input is the feedback for one confirmed extraction.
type Input struct {
	OriginalExtraction map[string]any     `json:"original_extraction"`
	UserCorrections    map[string]any     `json:"user_corrections"`
	DocumentType       string             `json:"document_type"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores"`
	ExtractionPrompt   string             `json:"extraction_prompt"`
}

// RecordOutcome is what RecordFeedback learned. Persisted is false when the
// record could not be stored; that is not an error.
type RecordOutcome struct {
	Record          Record
	Persisted       bool
	CorrectedFields []string
	Recommendations []string
}

// ErrNoUser is returned when feedback arrives without a user id.
var ErrNoUser = eris.New("user id is required")

// RecordFeedback scores and stores a confirmed extraction.
func (s *Service) RecordFeedback(ctx context.Context, userID string, in Input) (RecordOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return RecordOutcome{}, ErrNoUser
	}
	original := in.OriginalExtraction
	if original == nil {
		original = map[string]any{}
	}
	corrections := in.UserCorrections
	if corrections == nil {
		corrections = map[string]any{}
	}
	rec := Record{
		ID:                 s.newID(),
		UserID:             userID,
		DocumentType:       strings.TrimSpace(in.DocumentType),
		OriginalExtraction: original,
		UserCorrections:    corrections,
		ConfidenceScores:   in.ConfidenceScores,
		ExtractionPrompt:   in.ExtractionPrompt,
		SuccessRate:        SuccessRate(original, corrections),
		CreatedAt:          s.now(),
	}

	out := RecordOutcome{Record: rec, CorrectedFields: sortedKeys(corrections)}
	if err := s.repo.SaveFeedback(ctx, rec); err != nil {
		zap.L().Warn("failed to store extraction feedback",
			zap.String("document_type", rec.DocumentType),
			zap.Error(err))
	} else {
		out.Persisted = true
	}
	out.Recommendations = feedbackRecommendations(rec, out.CorrectedFields)
	return out, nil
}

func feedbackRecommendations(rec Record, corrected []string) []string {
	var recs []string
	if rec.SuccessRate < reviewPromptBelow {
		recs = append(recs, fmt.Sprintf(
			"Only %.0f%% of fields were accepted for %q; review the extraction prompt for this document type.",
			rec.SuccessRate*100, displayType(rec.DocumentType)))
	}

	var low, high []string
	for _, field := range corrected {
		score, ok := rec.ConfidenceScores[field]
		switch {
		case !ok:
		case score < lowConfidenceThreshold:
			low = append(low, field)
		case score >= highConfidenceThreshold:
			high = append(high, field)
		}
	}
	if len(low) > 0 {
		recs = append(recs, fmt.Sprintf(
			"Corrected fields that were extracted with low confidence: %s. Add column instructions describing where they appear.",
			strings.Join(low, ", ")))
	}
	if len(high) > 0 {
		recs = append(recs, fmt.Sprintf(
			"Corrected fields that were extracted with high confidence: %s. Check that the column names match the document's wording.",
			strings.Join(high, ", ")))
	}
	return recs
}

// PromptImprovement is the result of ImprovedPrompt.
type PromptImprovement struct {
	Prompt          string
	Applied         bool
	DataPoints      int
	KeyImprovements []string
}

// ImprovedPrompt appends exemplar values learned from well-scored history
// to currentPrompt. With no history, or no exemplar for any field, the
// prompt is returned unchanged and Applied is false. When targetFields is
// empty, every field seen in history is considered.
func (s *Service) ImprovedPrompt(ctx context.Context, userID, docType, currentPrompt string, targetFields []string) (PromptImprovement, error) {
	records, err := s.repo.ListByDocumentType(ctx, userID, strings.TrimSpace(docType), improvedPromptMinRate)
	if err != nil {
		return PromptImprovement{}, eris.Wrap(err, "load feedback history")
	}
	out := PromptImprovement{Prompt: currentPrompt, DataPoints: len(records)}
	if len(records) == 0 {
		return out, nil
	}

	fields := targetFields
	if len(fields) == 0 {
		fields = historyFields(records)
	}

	var block strings.Builder
	for _, field := range fields {
		exemplars := make([]string, 0, maxExemplarsPerField)
		for _, rec := range records {
			if _, corrected := rec.UserCorrections[field]; corrected {
				continue
			}
			v := strings.TrimSpace(extraction.Stringify(rec.OriginalExtraction[field]))
			if merge.IsEmptyValue(v) {
				continue
			}
			exemplars = append(exemplars, v)
			if len(exemplars) == maxExemplarsPerField {
				break
			}
		}
		if len(exemplars) == 0 {
			continue
		}
		quoted := make([]string, len(exemplars))
		for i, ex := range exemplars {
			quoted[i] = fmt.Sprintf("%q", ex)
		}
		fmt.Fprintf(&block, "For %q: look for patterns similar to: %s\n", field, strings.Join(quoted, ", "))
		out.KeyImprovements = append(out.KeyImprovements, field)
	}
	if block.Len() == 0 {
		return out, nil
	}

	out.Prompt = strings.TrimRight(currentPrompt, "\n") +
		"\n\nExamples from previously confirmed documents of this type:\n" + block.String()
	out.Applied = true
	return out, nil
}

// FieldSuggestion is a field the user commonly fills for a document type.
type FieldSuggestion struct {
	FieldName      string   `json:"field_name"`
	UsageFrequency int      `json:"usage_frequency"`
	Confidence     float64  `json:"confidence"`
	Examples       []string `json:"examples"`
}

// FieldSuggestions ranks the fields found in well-scored history for a
// document type. Types match exactly or by case-insensitive containment in
// either direction. Fields named in the free-text hint win ties.
func (s *Service) FieldSuggestions(ctx context.Context, userID, docType, hint string) ([]FieldSuggestion, error) {
	query := strings.ToLower(strings.TrimSpace(docType))
	records, err := s.repo.ListMatchingType(ctx, userID, query, suggestionMinRate)
	if err != nil {
		return nil, eris.Wrap(err, "load feedback history")
	}

	counts := map[string]int{}
	examples := map[string][]string{}
	matched := 0
	for _, rec := range records {
		if !typesMatch(query, strings.ToLower(rec.DocumentType)) {
			continue
		}
		matched++
		combined := make(map[string]any, len(rec.OriginalExtraction)+len(rec.UserCorrections))
		for k, v := range rec.OriginalExtraction {
			combined[k] = v
		}
		for k, v := range rec.UserCorrections {
			combined[k] = v
		}
		for field, v := range combined {
			value := strings.TrimSpace(extraction.Stringify(v))
			if merge.IsEmptyValue(value) {
				continue
			}
			counts[field]++
			if len(examples[field]) < maxSuggestionExamples && !contains(examples[field], truncate(value)) {
				examples[field] = append(examples[field], truncate(value))
			}
		}
	}
	if matched == 0 {
		return []FieldSuggestion{}, nil
	}

	hintLower := strings.ToLower(hint)
	mentioned := func(field string) bool {
		return hintLower != "" && strings.Contains(hintLower, strings.ToLower(field))
	}

	suggestions := make([]FieldSuggestion, 0, len(counts))
	for field, n := range counts {
		suggestions = append(suggestions, FieldSuggestion{
			FieldName:      field,
			UsageFrequency: n,
			Confidence:     float64(n) / float64(matched),
			Examples:       examples[field],
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.UsageFrequency != b.UsageFrequency {
			return a.UsageFrequency > b.UsageFrequency
		}
		if ma, mb := mentioned(a.FieldName), mentioned(b.FieldName); ma != mb {
			return ma
		}
		return a.FieldName < b.FieldName
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

// TypePerformance is the quality of one document type.
type TypePerformance struct {
	AverageSuccessRate float64 `json:"average_success_rate"`
	TotalExtractions   int     `json:"total_extractions"`
}

// FieldFailure counts corrections of one field.
type FieldFailure struct {
	Field       string `json:"field"`
	Corrections int    `json:"corrections"`
}

// Patterns summarizes the trailing window of feedback.
type Patterns struct {
	DocumentTypePerformance map[string]TypePerformance `json:"document_type_performance"`
	CommonFailures          []FieldFailure             `json:"common_failures"`
	FieldAccuracy           map[string]float64         `json:"field_accuracy"`
	Recommendations         []string                   `json:"-"`
	RecordsAnalyzed         int                        `json:"records_analyzed"`
}

// AnalyzePatterns aggregates the user's feedback from the 30 days before now.
func (s *Service) AnalyzePatterns(ctx context.Context, userID string, now time.Time) (Patterns, error) {
	records, err := s.repo.ListSince(ctx, userID, now.Add(-patternWindow))
	if err != nil {
		return Patterns{}, eris.Wrap(err, "load feedback history")
	}

	p := Patterns{
		DocumentTypePerformance: map[string]TypePerformance{},
		CommonFailures:          []FieldFailure{},
		FieldAccuracy:           map[string]float64{},
		RecordsAnalyzed:         len(records),
	}
	if len(records) == 0 {
		p.Recommendations = []string{"Not enough data yet. Confirm a few extractions to start seeing patterns."}
		return p, nil
	}

	rateSums := map[string]float64{}
	typeCounts := map[string]int{}
	seen := map[string]int{}
	corrected := map[string]int{}
	for _, rec := range records {
		docType := displayType(rec.DocumentType)
		rateSums[docType] += rec.SuccessRate
		typeCounts[docType]++

		fields := map[string]bool{}
		for f := range rec.OriginalExtraction {
			fields[f] = true
		}
		for f := range rec.UserCorrections {
			fields[f] = true
			corrected[f]++
		}
		for f := range fields {
			seen[f]++
		}
	}

	for docType, n := range typeCounts {
		p.DocumentTypePerformance[docType] = TypePerformance{
			AverageSuccessRate: rateSums[docType] / float64(n),
			TotalExtractions:   n,
		}
	}
	for field, total := range seen {
		p.FieldAccuracy[field] = float64(total-corrected[field]) / float64(total)
	}
	for field, n := range corrected {
		p.CommonFailures = append(p.CommonFailures, FieldFailure{Field: field, Corrections: n})
	}
	sort.Slice(p.CommonFailures, func(i, j int) bool {
		a, b := p.CommonFailures[i], p.CommonFailures[j]
		if a.Corrections != b.Corrections {
			return a.Corrections > b.Corrections
		}
		return a.Field < b.Field
	})
	if len(p.CommonFailures) > maxCommonFailures {
		p.CommonFailures = p.CommonFailures[:maxCommonFailures]
	}

	p.Recommendations = patternRecommendations(p)
	return p, nil
}

func patternRecommendations(p Patterns) []string {
	var recs []string
	for _, docType := range sortedKeys(p.DocumentTypePerformance) {
		perf := p.DocumentTypePerformance[docType]
		if perf.AverageSuccessRate < reviewPromptBelow {
			recs = append(recs, fmt.Sprintf(
				"Review the extraction prompt for %q: average success rate is %.0f%% over %d extraction(s).",
				docType, perf.AverageSuccessRate*100, perf.TotalExtractions))
		}
	}
	for _, field := range sortedKeys(p.FieldAccuracy) {
		if acc := p.FieldAccuracy[field]; acc < fieldAccuracyBelow {
			recs = append(recs, fmt.Sprintf(
				"Add column instructions for %q: it is accepted without correction %.0f%% of the time.",
				field, acc*100))
		}
	}
	if len(recs) == 0 {
		recs = append(recs, "Extraction quality looks good across recent documents.")
	}
	return recs
}

func typesMatch(query, candidate string) bool {
	if query == candidate {
		return true
	}
	if query == "" || candidate == "" {
		return false
	}
	return strings.Contains(candidate, query) || strings.Contains(query, candidate)
}

func historyFields(records []Record) []string {
	set := map[string]bool{}
	for _, rec := range records {
		for f := range rec.OriginalExtraction {
			set[f] = true
		}
	}
	return sortedKeys(set)
}

func displayType(docType string) string {
	if strings.TrimSpace(docType) == "" {
		return "unknown"
	}
	return docType
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxExampleLength {
		return s
	}
	r := []rune(s)
	return string(r[:maxExampleLength])
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
