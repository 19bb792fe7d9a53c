package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pitchpractice/pitchpractice/internal/adapter/ai"
	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/analysis"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/pkg/textx"
)

// AnalyzeService produces rubric-scored feedback for a transcribed run.
type AnalyzeService struct {
	Runs        domain.RunRepository
	Rubrics     domain.RubricRepository
	AI          domain.AIClient
	Cleaner     *ai.ResponseCleaner
	TokenBudget int
	MaxTokens   int
}

// NewAnalyzeService constructs an AnalyzeService with its dependencies.
func NewAnalyzeService(runs domain.RunRepository, rubrics domain.RubricRepository, aicl domain.AIClient, tokenBudget, maxTokens int) AnalyzeService {
	return AnalyzeService{Runs: runs, Rubrics: rubrics, AI: aicl, Cleaner: ai.NewResponseCleaner(), TokenBudget: tokenBudget, MaxTokens: maxTokens}
}

// AnalyzeInput carries the per-request analysis knobs. RubricID and Criteria
// participate in rubric resolution; context and questions pass straight into
// the prompt.
type AnalyzeInput struct {
	RubricID         *string
	Criteria         []domain.Criterion
	PitchContext     string
	GuidingQuestions []string
}

// Analyze resolves a rubric, builds the prompt, calls the model, validates
// the response shape, and persists the result. Upstream or schema failures
// are terminal for the run: status moves to error with the message saved,
// and the caller sees an internal error. There is no deterministic fallback
// on this path.
func (s AnalyzeService) Analyze(ctx domain.Context, id domain.Identity, runID string, in AnalyzeInput) (domain.Run, error) {
	run, err := s.Runs.Get(ctx, runID)
	if err != nil {
		return domain.Run{}, err
	}
	if !id.Owns(run) {
		return domain.Run{}, fmt.Errorf("op=run.analyze: %w", domain.ErrForbidden)
	}
	if run.Transcript == "" {
		return domain.Run{}, fmt.Errorf("op=run.analyze: transcript required: %w", domain.ErrInvalidArgument)
	}

	rb, err := s.resolveRubric(ctx, run, in)
	if err != nil {
		return domain.Run{}, err
	}

	if err := s.Runs.UpdateStatus(ctx, run.ID, domain.RunAnalyzing, nil); err != nil {
		return domain.Run{}, err
	}
	observability.RunTransition(string(domain.RunAnalyzing))

	timing := domain.TimingMetrics{
		TargetSeconds:  rb.TargetDurationSeconds,
		MaxSeconds:     rb.MaxDurationSeconds,
		ActualSeconds:  run.DurationSeconds,
		WordsPerMinute: textx.WordsPerMinute(run.WordCount, run.DurationSeconds),
	}
	userPrompt := analysis.BuildUserPrompt(analysis.PromptInput{
		Transcript:       run.Transcript,
		Criteria:         rb.Criteria,
		PitchContext:     in.PitchContext,
		GuidingQuestions: in.GuidingQuestions,
		Timing:           timing,
		TokenBudget:      s.TokenBudget,
	})

	raw, err := s.AI.ChatJSON(ctx, analysis.SystemPrompt, userPrompt, s.MaxTokens)
	if err != nil {
		return domain.Run{}, s.fail(ctx, run.ID, err)
	}
	cleaned, err := s.Cleaner.CleanAndValidate(raw)
	if err != nil {
		return domain.Run{}, s.fail(ctx, run.ID, err)
	}
	result, warnings, err := analysis.ValidateResponse(cleaned, rb.Criteria, timing)
	if err != nil {
		return domain.Run{}, s.fail(ctx, run.ID, err)
	}
	for _, w := range warnings {
		slog.Warn("analysis response warning", slog.String("run_id", run.ID), slog.String("warning", w))
	}

	if err := s.Runs.SetAnalysis(ctx, run.ID, result); err != nil {
		return domain.Run{}, err
	}
	observability.RunTransition(string(domain.RunAnalyzed))
	observability.ObserveAnalysis(result.OverallScore)
	slog.Info("run analyzed", slog.String("run_id", run.ID), slog.Float64("overall_score", result.OverallScore))

	run.Status = domain.RunAnalyzed
	run.Analysis = &result
	run.Error = ""
	return run, nil
}

// resolveRubric picks the scoring basis in priority order: the run's frozen
// snapshot, an explicit rubric id (request over run), inline request
// criteria, then the earliest template. Only when no source yields a named
// criterion is the request invalid.
func (s AnalyzeService) resolveRubric(ctx domain.Context, run domain.Run, in AnalyzeInput) (domain.Rubric, error) {
	if run.RubricSnapshot != nil && run.RubricSnapshot.NamedCriteria() {
		return *run.RubricSnapshot, nil
	}
	for _, rid := range []*string{in.RubricID, run.RubricID} {
		if rid == nil || *rid == "" {
			continue
		}
		rb, err := s.Rubrics.Get(ctx, *rid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return domain.Rubric{}, err
		}
		if rb.NamedCriteria() {
			return rb, nil
		}
	}
	if adhoc := (domain.Rubric{Name: "Custom Rubric", Criteria: in.Criteria}); adhoc.NamedCriteria() {
		return adhoc, nil
	}
	rb, err := s.Rubrics.EarliestTemplate(ctx)
	if err == nil && rb.NamedCriteria() {
		return rb, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Rubric{}, err
	}
	return domain.Rubric{}, fmt.Errorf("op=run.analyze: no rubric with named criteria: %w", domain.ErrInvalidArgument)
}

func (s AnalyzeService) fail(ctx domain.Context, runID string, cause error) error {
	msg := fmt.Sprintf("analysis failed: %v", cause)
	if err := s.Runs.UpdateStatus(ctx, runID, domain.RunError, &msg); err != nil {
		slog.Error("failed to persist run error", slog.String("run_id", runID), slog.Any("error", err))
	}
	observability.RunTransition(string(domain.RunError))
	return fmt.Errorf("op=run.analyze: %w: %s", domain.ErrInternal, msg)
}
