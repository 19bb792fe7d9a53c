package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/usecase"
)

func threeCriteria() []domain.Criterion {
	return []domain.Criterion{{Name: "Clarity"}, {Name: "Structure"}, {Name: "Ask"}}
}

func TestRubricCreate_Valid(t *testing.T) {
	t.Parallel()
	repo := newMemRubricRepo()
	svc := usecase.NewRubricService(repo, &fakeAI{}, 4000)

	id, err := svc.Create(context.Background(), domain.Rubric{Name: "Demo Day", Criteria: threeCriteria()}, strptr("alice"))
	require.NoError(t, err)

	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Demo Day", stored.Name)
	require.NotNil(t, stored.OwnerID)
	assert.Equal(t, "alice", *stored.OwnerID)
	assert.False(t, stored.IsTemplate)
}

func TestRubricCreate_Validation(t *testing.T) {
	t.Parallel()
	svc := usecase.NewRubricService(newMemRubricRepo(), &fakeAI{}, 4000)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.Rubric{Name: "Too Few", Criteria: threeCriteria()[:2]}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "at least 3 criteria")

	unnamed := threeCriteria()
	unnamed[1].Name = ""
	_, err = svc.Create(ctx, domain.Rubric{Name: "Unnamed", Criteria: unnamed}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "criterion name")

	_, err = svc.Create(ctx, domain.Rubric{Criteria: threeCriteria()}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "rubric name")
}

func TestRubricGet_Visibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRubricRepo()
	svc := usecase.NewRubricService(repo, &fakeAI{}, 4000)

	templateID, err := repo.Create(ctx, domain.Rubric{Name: "Template", Criteria: threeCriteria(), IsTemplate: true})
	require.NoError(t, err)
	customID, err := svc.Create(ctx, domain.Rubric{Name: "Mine", Criteria: threeCriteria()}, strptr("alice"))
	require.NoError(t, err)

	// Templates are visible to everyone, including anonymous callers.
	_, err = svc.Get(ctx, domain.Identity{SessionID: "sess-1"}, templateID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, domain.Identity{UserID: strptr("alice")}, customID)
	require.NoError(t, err)

	// Someone else's custom rubric reads as absent, not forbidden.
	_, err = svc.Get(ctx, domain.Identity{UserID: strptr("bob")}, customID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(ctx, domain.Identity{SessionID: "sess-1"}, customID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRubricParseText_LLMPath(t *testing.T) {
	t.Parallel()
	aicl := &fakeAI{chatResp: "```json\n{\"name\": \"Model Rubric\", \"criteria\": [{\"name\": \"Clarity\"}, {\"name\": \"Ask\"}, {\"name\": \"Timing\"}]}\n```"}
	svc := usecase.NewRubricService(newMemRubricRepo(), aicl, 4000)

	rb, warnings := svc.ParseText(context.Background(), "some rubric text")
	assert.Equal(t, "Model Rubric", rb.Name)
	assert.Len(t, rb.Criteria, 3)
	assert.Empty(t, warnings)
}

func TestRubricParseText_FallsBackOnModelError(t *testing.T) {
	t.Parallel()
	aicl := &fakeAI{chatErr: errUpstream}
	svc := usecase.NewRubricService(newMemRubricRepo(), aicl, 4000)

	rb, warnings := svc.ParseText(context.Background(), "Criteria: Clarity - plain; Structure - ordered; Ask - concrete")
	require.Len(t, rb.Criteria, 3)
	assert.Equal(t, "Clarity", rb.Criteria[0].Name)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], "model parse unavailable")
}

func TestRubricParseText_FallsBackOnGarbageResponse(t *testing.T) {
	t.Parallel()
	aicl := &fakeAI{chatResp: "no JSON here, just vibes"}
	svc := usecase.NewRubricService(newMemRubricRepo(), aicl, 4000)

	rb, warnings := svc.ParseText(context.Background(), "1. Clarity - plain\n2. Structure - ordered\n3. Ask - concrete")
	require.Len(t, rb.Criteria, 3)
	assert.Contains(t, warnings[len(warnings)-1], "model parse unavailable")
}

func TestRubricParseJSON(t *testing.T) {
	t.Parallel()
	svc := usecase.NewRubricService(newMemRubricRepo(), &fakeAI{}, 4000)
	ctx := context.Background()

	rb, warnings, err := svc.ParseJSON(ctx, []byte(`{"title": "Uploaded", "items": ["Clarity", "Structure", "Ask"]}`))
	require.NoError(t, err)
	assert.Equal(t, "Uploaded", rb.Name)
	assert.Len(t, rb.Criteria, 3)
	assert.Empty(t, warnings)

	_, _, err = svc.ParseJSON(ctx, []byte("{broken"))
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRubricParseImage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	aicl := &fakeAI{imageResp: `{"name": "From Screenshot", "criteria": [{"name": "Clarity"}, {"name": "Ask"}, {"name": "Timing"}]}`}
	svc := usecase.NewRubricService(newMemRubricRepo(), aicl, 4000)
	rb, _, err := svc.ParseImage(ctx, "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "From Screenshot", rb.Name)

	svc = usecase.NewRubricService(newMemRubricRepo(), &fakeAI{imageErr: errUpstream}, 4000)
	_, _, err = svc.ParseImage(ctx, "image/png", []byte("png-bytes"))
	require.ErrorIs(t, err, errUpstream)

	svc = usecase.NewRubricService(newMemRubricRepo(), &fakeAI{imageResp: "not json"}, 4000)
	_, _, err = svc.ParseImage(ctx, "image/png", []byte("png-bytes"))
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestRubricList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newMemRubricRepo()
	svc := usecase.NewRubricService(repo, &fakeAI{}, 4000)

	_, err := repo.Create(ctx, domain.Rubric{Name: "Template", Criteria: threeCriteria(), IsTemplate: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.Rubric{Name: "Mine", Criteria: threeCriteria()}, strptr("alice"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.Rubric{Name: "Theirs", Criteria: threeCriteria()}, strptr("bob"))
	require.NoError(t, err)

	listed, err := svc.List(ctx, domain.Identity{UserID: strptr("alice")})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	anon, err := svc.List(ctx, domain.Identity{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, "Template", anon[0].Name)
}
