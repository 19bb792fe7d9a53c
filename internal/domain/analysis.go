package domain

// AnalysisResult is the scored, quote-grounded feedback document produced for
// a run. Quote grounding (every claim cites a verbatim transcript excerpt of
// at most 20 words) is requested from the model via the prompt; it is not
// verified programmatically.
type AnalysisResult struct {
	Summary        string           `json:"summary"`
	OverallScore   float64          `json:"overall_score"`
	RubricScores   []CriterionScore `json:"rubric_scores"`
	Timing         TimingMetrics    `json:"timing"`
	Chunks         []ChunkFeedback  `json:"chunks,omitempty"`
	LineByLine     []LineNote       `json:"line_by_line"`
	CutSuggestions []CutSuggestion  `json:"cut_suggestions,omitempty"`
}

// CriterionScore scores one rubric criterion with supporting quotes.
type CriterionScore struct {
	Criterion string   `json:"criterion"`
	Score     float64  `json:"score"`
	Feedback  string   `json:"feedback,omitempty"`
	Evidence  []string `json:"evidence,omitempty"`
}

// TimingMetrics compares actual delivery against the rubric's targets.
type TimingMetrics struct {
	TargetSeconds  int     `json:"target_seconds,omitempty"`
	MaxSeconds     int     `json:"max_seconds,omitempty"`
	ActualSeconds  float64 `json:"actual_seconds,omitempty"`
	WordsPerMinute float64 `json:"words_per_minute,omitempty"`
}

// ChunkFeedback is per-segment feedback for tiered uploads.
type ChunkFeedback struct {
	Idx     int    `json:"idx"`
	Summary string `json:"summary"`
	Quote   string `json:"quote,omitempty"`
}

// LineNote is a line-level annotation anchored to a transcript quote.
type LineNote struct {
	Line     int    `json:"line"`
	Quote    string `json:"quote"`
	Comment  string `json:"comment"`
	Severity string `json:"severity,omitempty"`
}

// CutSuggestion proposes removing a passage to save time.
type CutSuggestion struct {
	Quote        string  `json:"quote"`
	Reason       string  `json:"reason"`
	SecondsSaved float64 `json:"seconds_saved,omitempty"`
}
