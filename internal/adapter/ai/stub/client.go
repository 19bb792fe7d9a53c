package stub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// Client is a fast, deterministic AI client for local development and tests.
type Client struct{}

func New() *Client { return &Client{} }

// ChatJSON returns a compact JSON string matching the expected schema of the
// caller. Coaching prompts get an analysis payload, everything else gets a
// rubric payload.
func (c *Client) ChatJSON(_ domain.Context, systemPrompt, _ string, _ int) (string, error) {
	// Simulate a tiny bit of processing latency to resemble real work
	time.Sleep(50 * time.Millisecond)
	if strings.Contains(systemPrompt, "pitch coach") {
		return analysisPayload()
	}
	return rubricPayload()
}

// ChatJSONWithImage behaves like ChatJSON for image-bearing prompts.
func (c *Client) ChatJSONWithImage(_ domain.Context, _ string, _ string, _ string, _ []byte, _ int) (string, error) {
	time.Sleep(50 * time.Millisecond)
	return rubricPayload()
}

// Transcribe returns a canned transcript sized to look like a short pitch.
func (c *Client) Transcribe(_ domain.Context, _ string, audio []byte) (domain.Transcription, error) {
	time.Sleep(50 * time.Millisecond)
	text := "Hi, I'm building a tool that helps founders rehearse their pitch. " +
		"We record the pitch, transcribe it, and score it against a rubric so " +
		"every practice run ends with concrete feedback."
	// Rough duration so timing metrics stay plausible across audio sizes.
	dur := float64(len(audio)) / 32000.0
	if dur < 5 {
		dur = 42.5
	}
	return domain.Transcription{Text: text, DurationSeconds: dur}, nil
}

// Check always reports healthy.
func (c *Client) Check(_ domain.Context) error { return nil }

func rubricPayload() (string, error) {
	payload := map[string]any{
		"name":        "Demo Day Rubric",
		"description": "Scoring guide for a three minute demo day pitch.",
		"criteria": []map[string]any{
			{"name": "Clarity", "description": "Is the problem stated plainly?", "weight": 2},
			{"name": "Structure", "description": "Problem, solution, ask in order.", "weight": 1},
			{"name": "Timing", "description": "Stays inside the allotted window.", "weight": 1},
		},
		"target_duration_seconds": 180,
		"max_duration_seconds":    240,
	}
	b, _ := json.Marshal(payload)
	return string(b), nil
}

func analysisPayload() (string, error) {
	payload := map[string]any{
		"summary":       "Clear problem statement with a confident delivery; the ask arrives late.",
		"overall_score": 7.4,
		"rubric_scores": []map[string]any{
			{"criterion": "Clarity", "score": 8, "feedback": "Problem is concrete from the first sentence.", "evidence": []string{"helps founders rehearse their pitch"}},
			{"criterion": "Structure", "score": 7, "feedback": "Solution before problem in the middle section.", "evidence": []string{"we record the pitch"}},
			{"criterion": "Timing", "score": 7, "feedback": "Slightly over pace for the target window.", "evidence": []string{"every practice run ends with concrete feedback"}},
		},
		"line_by_line": []map[string]any{
			{"line": 1, "quote": "helps founders rehearse their pitch", "comment": "Strong opener, keep it.", "severity": "minor"},
		},
		"cut_suggestions": []map[string]any{
			{"quote": "every practice run ends with concrete feedback", "reason": "Restates the previous sentence.", "seconds_saved": 4},
		},
	}
	b, _ := json.Marshal(payload)
	return string(b), nil
}
