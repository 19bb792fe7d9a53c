// Package analysis builds the run-analysis prompt and validates the model's
// feedback document.
package analysis

import (
	"fmt"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// DefaultTranscriptTokenBudget caps how much transcript goes into the prompt.
const DefaultTranscriptTokenBudget = 6000

// PromptInput carries everything the prompt builder needs. Criteria must be
// resolved (snapshot, referenced rubric, or request-supplied) before calling.
type PromptInput struct {
	Transcript       string
	Criteria         []domain.Criterion
	PitchContext     string
	GuidingQuestions []string
	Timing           domain.TimingMetrics
	TokenBudget      int
}

// SystemPrompt encodes the output shape and the grounding rules. The quote
// constraint is requested here, not verified after the call.
const SystemPrompt = `You are an experienced pitch coach. Score the transcript against the rubric and produce actionable feedback.

CRITICAL: Respond with ONLY valid JSON following this structure:
{
  "summary": "3-5 sentence overall assessment",
  "overall_score": 7.5,
  "rubric_scores": [
    {"criterion": "Clarity", "score": 8.0, "feedback": "One short paragraph", "evidence": ["verbatim quote from the transcript"]}
  ],
  "timing": {"target_seconds": 90, "max_seconds": 120, "actual_seconds": 95.2, "words_per_minute": 148.0},
  "chunks": [{"idx": 0, "summary": "Segment assessment", "quote": "verbatim quote"}],
  "line_by_line": [{"line": 1, "quote": "verbatim quote", "comment": "Specific note", "severity": "minor"}],
  "cut_suggestions": [{"quote": "verbatim quote", "reason": "Why to cut it", "seconds_saved": 6.0}]
}

Rules:
- Score every rubric criterion exactly once, on a 0-10 scale.
- GROUNDING: every feedback claim, evidence entry, line note and cut suggestion MUST cite a verbatim transcript excerpt of at most 20 words. Never paraphrase inside a quote.
- Severity is one of "minor", "moderate", "major".
- NO markdown, NO explanations, NO chain-of-thought.`

// BuildUserPrompt deterministically assembles the evaluation request. The
// transcript is truncated to the token budget so long recordings cannot blow
// past the model's context window.
func BuildUserPrompt(in PromptInput) string {
	budget := in.TokenBudget
	if budget <= 0 {
		budget = DefaultTranscriptTokenBudget
	}
	var b strings.Builder

	b.WriteString("Rubric criteria:\n")
	for i, c := range in.Criteria {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Name)
		if c.Weight > 0 {
			fmt.Fprintf(&b, " (weight %.2g)", c.Weight)
		}
		if c.Description != "" {
			b.WriteString(": " + c.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTiming:\n")
	if in.Timing.TargetSeconds > 0 {
		fmt.Fprintf(&b, "- target duration: %d seconds\n", in.Timing.TargetSeconds)
	}
	if in.Timing.MaxSeconds > 0 {
		fmt.Fprintf(&b, "- maximum duration: %d seconds\n", in.Timing.MaxSeconds)
	}
	if in.Timing.ActualSeconds > 0 {
		fmt.Fprintf(&b, "- actual duration: %.1f seconds\n", in.Timing.ActualSeconds)
	}
	if in.Timing.WordsPerMinute > 0 {
		fmt.Fprintf(&b, "- words per minute: %.1f\n", in.Timing.WordsPerMinute)
	}

	if in.PitchContext != "" {
		b.WriteString("\nPitch context:\n" + in.PitchContext + "\n")
	}
	if len(in.GuidingQuestions) > 0 {
		b.WriteString("\nGuiding questions:\n")
		for _, q := range in.GuidingQuestions {
			b.WriteString("- " + q + "\n")
		}
	}

	b.WriteString("\nTranscript:\n")
	b.WriteString(truncateToTokens(in.Transcript, budget))
	return b.String()
}

// truncateToTokens cuts text to at most budget tokens (cl100k_base), adding a
// marker when anything was dropped. On encoder failure it falls back to a
// rough 4-chars-per-token estimate.
func truncateToTokens(text string, budget int) string {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if len(text) > budget*4 {
			return text[:budget*4] + "\n[transcript truncated]"
		}
		return text
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget]) + "\n[transcript truncated]"
}
