package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

const analysisJSON = `{
	"summary": "Solid pitch with a vague ask.",
	"overall_score": 7,
	"rubric_scores": [{"criterion": "Clarity", "score": 7, "feedback": "ok", "evidence": ["we help clinics"]}],
	"line_by_line": []
}`

func seedTranscribedRun(t *testing.T, runs *memRunRepo, run domain.Run) string {
	t.Helper()
	if run.Status == "" {
		run.Status = domain.RunTranscribed
	}
	id, err := runs.Create(context.Background(), run)
	require.NoError(t, err)
	return id
}

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	aicl := &fakeAI{chatResp: analysisJSON}
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), aicl, 6000, 4000)

	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:       "sess-1",
		Transcript:      "we help clinics cut no-shows in half",
		WordCount:       7,
		DurationSeconds: 30,
		RubricSnapshot:  &domain.Rubric{Name: "Custom", Criteria: []domain.Criterion{{Name: "Clarity"}}},
	})

	run, err := svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.RunAnalyzed, run.Status)
	require.NotNil(t, run.Analysis)
	assert.Equal(t, 7.0, run.Analysis.OverallScore)

	stored, _ := runs.Get(ctx, runID)
	assert.Equal(t, domain.RunAnalyzed, stored.Status)
	require.NotNil(t, stored.Analysis)
}

func TestAnalyze_TranscriptRequired(t *testing.T) {
	t.Parallel()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{SessionID: "sess-1", Status: domain.RunUploaded})

	_, err := svc.Analyze(context.Background(), domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAnalyze_OwnershipEnforced(t *testing.T) {
	t.Parallel()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{SessionID: "sess-1", Transcript: "hello"})

	_, err := svc.Analyze(context.Background(), domain.Identity{SessionID: "sess-other"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAnalyze_SnapshotWinsOverRequestRubric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	rubrics := newMemRubricRepo()
	repoID, err := rubrics.Create(ctx, domain.Rubric{Name: "Repo Rubric", Criteria: []domain.Criterion{{Name: "RepoOnly"}}})
	require.NoError(t, err)

	aicl := &fakeAI{chatResp: analysisJSON}
	svc := usecase.NewAnalyzeService(runs, rubrics, aicl, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:      "sess-1",
		Transcript:     "hello investors",
		RubricSnapshot: &domain.Rubric{Name: "Frozen", Criteria: []domain.Criterion{{Name: "SnapshotCriterion"}}},
	})

	_, err = svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{RubricID: &repoID})
	require.NoError(t, err)
	assert.Contains(t, aicl.lastUser, "SnapshotCriterion")
	assert.NotContains(t, aicl.lastUser, "RepoOnly")
}

func TestAnalyze_RequestRubricBeatsRunRubric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	rubrics := newMemRubricRepo()
	runRubricID, err := rubrics.Create(ctx, domain.Rubric{Name: "Bound", Criteria: []domain.Criterion{{Name: "BoundCriterion"}}})
	require.NoError(t, err)
	reqRubricID, err := rubrics.Create(ctx, domain.Rubric{Name: "Requested", Criteria: []domain.Criterion{{Name: "RequestedCriterion"}}})
	require.NoError(t, err)

	aicl := &fakeAI{chatResp: analysisJSON}
	svc := usecase.NewAnalyzeService(runs, rubrics, aicl, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:  "sess-1",
		Transcript: "hello investors",
		RubricID:   &runRubricID,
	})

	_, err = svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{RubricID: &reqRubricID})
	require.NoError(t, err)
	assert.Contains(t, aicl.lastUser, "RequestedCriterion")
	assert.NotContains(t, aicl.lastUser, "BoundCriterion")
}

func TestAnalyze_InlineCriteria(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	aicl := &fakeAI{chatResp: analysisJSON}
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), aicl, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{SessionID: "sess-1", Transcript: "hello investors"})

	_, err := svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{
		Criteria: []domain.Criterion{{Name: "InlineCriterion"}},
	})
	require.NoError(t, err)
	assert.Contains(t, aicl.lastUser, "InlineCriterion")
}

func TestAnalyze_FallsBackToEarliestTemplate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	rubrics := newMemRubricRepo()
	_, err := rubrics.Create(ctx, domain.Rubric{
		Name:       "Newer Template",
		Criteria:   []domain.Criterion{{Name: "NewerCriterion"}},
		IsTemplate: true,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	_, err = rubrics.Create(ctx, domain.Rubric{
		Name:       "Oldest Template",
		Criteria:   []domain.Criterion{{Name: "OldestCriterion"}},
		IsTemplate: true,
		CreatedAt:  time.Now().Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	aicl := &fakeAI{chatResp: analysisJSON}
	svc := usecase.NewAnalyzeService(runs, rubrics, aicl, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{SessionID: "sess-1", Transcript: "hello investors"})

	_, err = svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.NoError(t, err)
	assert.Contains(t, aicl.lastUser, "OldestCriterion")
}

func TestAnalyze_NoRubricAnywhere(t *testing.T) {
	t.Parallel()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{chatResp: analysisJSON}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{SessionID: "sess-1", Transcript: "hello investors"})

	_, err := svc.Analyze(context.Background(), domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAnalyze_UpstreamFailureIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{chatErr: errUpstream}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:      "sess-1",
		Transcript:     "hello investors",
		RubricSnapshot: &domain.Rubric{Criteria: []domain.Criterion{{Name: "Clarity"}}},
	})

	_, err := svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrInternal)

	stored, _ := runs.Get(ctx, runID)
	assert.Equal(t, domain.RunError, stored.Status)
	assert.Contains(t, stored.Error, "analysis failed")
}

func TestAnalyze_MalformedModelResponseIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{chatResp: "sorry, no JSON today"}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:      "sess-1",
		Transcript:     "hello investors",
		RubricSnapshot: &domain.Rubric{Criteria: []domain.Criterion{{Name: "Clarity"}}},
	})

	_, err := svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrInternal)

	stored, _ := runs.Get(ctx, runID)
	assert.Equal(t, domain.RunError, stored.Status)
}

func TestAnalyze_MissingRequiredFieldIsTerminal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runs := newMemRunRepo()
	svc := usecase.NewAnalyzeService(runs, newMemRubricRepo(), &fakeAI{chatResp: `{"summary": "x"}`}, 6000, 4000)
	runID := seedTranscribedRun(t, runs, domain.Run{
		SessionID:      "sess-1",
		Transcript:     "hello investors",
		RubricSnapshot: &domain.Rubric{Criteria: []domain.Criterion{{Name: "Clarity"}}},
	})

	_, err := svc.Analyze(ctx, domain.Identity{SessionID: "sess-1"}, runID, usecase.AnalyzeInput{})
	require.ErrorIs(t, err, domain.ErrInternal)

	stored, _ := runs.Get(ctx, runID)
	assert.Equal(t, domain.RunError, stored.Status)
	assert.Contains(t, stored.Error, "missing field")
}
