// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/adapter/ai"
	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/domain"
	"github.com/pitchpractice/pitchpractice/internal/rubric"
)

// RubricService manages custom rubrics and the three ingestion paths:
// free text, JSON, and rubric screenshots.
type RubricService struct {
	Rubrics   domain.RubricRepository
	AI        domain.AIClient
	Cleaner   *ai.ResponseCleaner
	MaxTokens int
}

// NewRubricService constructs a RubricService with its dependencies.
func NewRubricService(r domain.RubricRepository, aicl domain.AIClient, maxTokens int) RubricService {
	return RubricService{Rubrics: r, AI: aicl, Cleaner: ai.NewResponseCleaner(), MaxTokens: maxTokens}
}

// Create validates and stores a caller-authored rubric. Creation is stricter
// than parsing: at least 3 criteria, all named.
func (s RubricService) Create(ctx domain.Context, rb domain.Rubric, owner *string) (string, error) {
	if len(rb.Criteria) < 3 {
		return "", fmt.Errorf("%w: at least 3 criteria required", domain.ErrInvalidArgument)
	}
	for _, c := range rb.Criteria {
		if c.Name == "" {
			return "", fmt.Errorf("%w: criterion name required", domain.ErrInvalidArgument)
		}
	}
	if rb.Name == "" {
		return "", fmt.Errorf("%w: rubric name required", domain.ErrInvalidArgument)
	}
	rb.OwnerID = owner
	rb.IsTemplate = false
	rb.CreatedAt = time.Now().UTC()
	return s.Rubrics.Create(ctx, rb)
}

// Get loads a rubric visible to the identity: templates are public, custom
// rubrics belong to their owner. Hidden rubrics read as absent.
func (s RubricService) Get(ctx domain.Context, id domain.Identity, rubricID string) (domain.Rubric, error) {
	rb, err := s.Rubrics.Get(ctx, rubricID)
	if err != nil {
		return domain.Rubric{}, err
	}
	if !rb.IsTemplate && !sameOwner(rb.OwnerID, id.UserID) {
		return domain.Rubric{}, fmt.Errorf("op=rubric.get: %w", domain.ErrNotFound)
	}
	return rb, nil
}

// List returns templates plus the caller's own rubrics.
func (s RubricService) List(ctx domain.Context, id domain.Identity) ([]domain.Rubric, error) {
	return s.Rubrics.ListForOwner(ctx, id.UserID)
}

// ParseText extracts a rubric from free text. The LLM path runs first; any
// failure there degrades to the deterministic parser with a warning instead
// of surfacing an error.
func (s RubricService) ParseText(ctx domain.Context, text string) (domain.Rubric, []string) {
	raw, err := s.AI.ChatJSON(ctx, rubric.SchemaSystemPrompt, rubric.ParseUserPrompt(text), s.MaxTokens)
	if err == nil {
		cleaned, cerr := s.Cleaner.CleanAndValidate(raw)
		if cerr == nil {
			rb, warnings, jerr := rubric.CoerceJSON([]byte(cleaned))
			if jerr == nil {
				observability.RubricParseTotal.WithLabelValues("text", "llm").Inc()
				return rb, warnings
			}
			err = jerr
		} else {
			err = cerr
		}
	}
	slog.Warn("llm rubric parse failed; using deterministic parser", slog.Any("error", err))
	observability.RubricParseTotal.WithLabelValues("text", "fallback").Inc()
	rb, warnings := rubric.ParseText(text)
	warnings = append(warnings, "model parse unavailable; parsed deterministically")
	return rb, warnings
}

// ParseJSON coerces an uploaded JSON rubric. Only syntactically invalid JSON
// is a hard error.
func (s RubricService) ParseJSON(ctx domain.Context, raw []byte) (domain.Rubric, []string, error) {
	rb, warnings, err := rubric.CoerceJSON(raw)
	if err != nil {
		observability.RubricParseTotal.WithLabelValues("json", "invalid").Inc()
		return domain.Rubric{}, nil, fmt.Errorf("%w: invalid JSON rubric", domain.ErrInvalidArgument)
	}
	observability.RubricParseTotal.WithLabelValues("json", "ok").Inc()
	return rb, warnings, nil
}

// ParseImage extracts a rubric from a screenshot via the vision-capable chat
// endpoint. There is no deterministic fallback for images.
func (s RubricService) ParseImage(ctx domain.Context, imageMIME string, image []byte) (domain.Rubric, []string, error) {
	raw, err := s.AI.ChatJSONWithImage(ctx, rubric.SchemaSystemPrompt, "Extract the rubric from this image.", imageMIME, image, s.MaxTokens)
	if err != nil {
		observability.RubricParseTotal.WithLabelValues("image", "error").Inc()
		return domain.Rubric{}, nil, fmt.Errorf("op=rubric.parse_image: %w", err)
	}
	cleaned, err := s.Cleaner.CleanAndValidate(raw)
	if err != nil {
		observability.RubricParseTotal.WithLabelValues("image", "error").Inc()
		return domain.Rubric{}, nil, fmt.Errorf("op=rubric.parse_image: %w: %v", domain.ErrSchemaInvalid, err)
	}
	rb, warnings, err := rubric.CoerceJSON([]byte(cleaned))
	if err != nil {
		observability.RubricParseTotal.WithLabelValues("image", "error").Inc()
		return domain.Rubric{}, nil, fmt.Errorf("op=rubric.parse_image: %w: %v", domain.ErrSchemaInvalid, err)
	}
	observability.RubricParseTotal.WithLabelValues("image", "ok").Inc()
	return rb, warnings, nil
}

func sameOwner(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
