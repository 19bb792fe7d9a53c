package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// requiredFields are the top-level keys the route contract checks after the
// model call. Anything deeper is taken as-is from the model.
var requiredFields = []string{"summary", "rubric_scores", "line_by_line"}

// ValidateResponse decodes a cleaned model response into an AnalysisResult.
// It checks only top-level field presence and array lengths; quote grounding
// is not verified. Missing timing fields are backfilled from the run's own
// metrics. Warnings flag repairs that did not fail the call.
func ValidateResponse(cleaned string, criteria []domain.Criterion, timing domain.TimingMetrics) (domain.AnalysisResult, []string, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return domain.AnalysisResult{}, nil, fmt.Errorf("%w: analysis response is not a JSON object: %v", domain.ErrSchemaInvalid, err)
	}
	for _, f := range requiredFields {
		if _, ok := probe[f]; !ok {
			return domain.AnalysisResult{}, nil, fmt.Errorf("%w: missing field %q", domain.ErrSchemaInvalid, f)
		}
	}

	var res domain.AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return domain.AnalysisResult{}, nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}

	var warnings []string
	if len(res.RubricScores) != len(criteria) {
		warnings = append(warnings, fmt.Sprintf("expected %d rubric scores, got %d", len(criteria), len(res.RubricScores)))
	}

	for i := range res.RubricScores {
		res.RubricScores[i].Score = clampScore(res.RubricScores[i].Score)
	}
	res.OverallScore = clampScore(res.OverallScore)
	if res.OverallScore == 0 && len(res.RubricScores) > 0 {
		res.OverallScore = weightedMean(res.RubricScores, criteria)
		warnings = append(warnings, "overall_score missing; derived from rubric scores")
	}

	if res.Timing.TargetSeconds == 0 {
		res.Timing.TargetSeconds = timing.TargetSeconds
	}
	if res.Timing.MaxSeconds == 0 {
		res.Timing.MaxSeconds = timing.MaxSeconds
	}
	if res.Timing.ActualSeconds == 0 {
		res.Timing.ActualSeconds = timing.ActualSeconds
	}
	if res.Timing.WordsPerMinute == 0 {
		res.Timing.WordsPerMinute = timing.WordsPerMinute
	}
	return res, warnings, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// weightedMean averages criterion scores using rubric weights, falling back
// to equal weights when the rubric carries none.
func weightedMean(scores []domain.CriterionScore, criteria []domain.Criterion) float64 {
	weights := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		if c.Weight > 0 {
			weights[c.Name] = c.Weight
		}
	}
	var sum, total float64
	for _, s := range scores {
		w := weights[s.Criterion]
		if w == 0 {
			w = 1
		}
		sum += s.Score * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return clampScore(sum / total)
}
