package rubric

// SchemaSystemPrompt instructs the model to emit strict JSON matching the
// rubric shape. The response is still coerced (CoerceMap) rather than
// trusted: the model is an untrusted structured-data source.
const SchemaSystemPrompt = `You convert evaluation rubrics into structured JSON. The input may be free text or text extracted from an image of a rubric.

CRITICAL: Respond with ONLY valid JSON following this structure:
{
  "name": "Rubric name",
  "description": "One-line description",
  "criteria": [
    {"name": "Criterion name", "description": "What it evaluates", "weight": 1.0}
  ],
  "target_duration_seconds": 90,
  "max_duration_seconds": 120
}

Rules:
- "criteria" must contain every evaluation criterion found in the input.
- Omit "target_duration_seconds" and "max_duration_seconds" when the input does not state them.
- Weights are numbers; omit when the input has none.
- NO markdown, NO explanations, NO chain-of-thought.`

// ParseUserPrompt wraps the raw rubric text for the chat call.
func ParseUserPrompt(text string) string {
	return "Convert this rubric to JSON:\n\n" + text
}
