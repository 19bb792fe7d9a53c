package rubric

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// CoerceJSON decodes arbitrary JSON (an upload or an LLM response) and
// coerces it into a rubric. The JSON must at least be syntactically valid;
// everything beyond that is tolerated.
func CoerceJSON(raw []byte) (domain.Rubric, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Rubric{}, nil, err
	}
	r, warnings := CoerceMap(m)
	return r, warnings, nil
}

// CoerceMap extracts a rubric from an untrusted JSON object by tolerant field
// lookup: multiple aliases per field, placeholder criteria when the criteria
// array is missing. Coercion is idempotent over already-valid rubrics.
func CoerceMap(m map[string]any) (domain.Rubric, []string) {
	r := domain.Rubric{
		Name:        stringField(m, "name", "title", "rubric_name"),
		Description: stringField(m, "description", "summary", "desc"),
	}
	if r.Name == "" {
		r.Name = DefaultName
	}
	r.TargetDurationSeconds = intField(m, "target_duration_seconds", "target_duration", "target_seconds")
	r.MaxDurationSeconds = intField(m, "max_duration_seconds", "max_duration", "max_seconds")

	r.Criteria = coerceCriteria(m)

	var warnings []string
	switch {
	case len(r.Criteria) == 0:
		r.Criteria = PlaceholderCriteria()
		warnings = append(warnings, warnPlaceholdersMsg)
	case len(r.Criteria) < 3:
		warnings = append(warnings, warnFewCriteria)
	}
	return r, warnings
}

func coerceCriteria(m map[string]any) []domain.Criterion {
	var items []any
	for _, key := range []string{"criteria", "items"} {
		if v, ok := m[key].([]any); ok {
			items = v
			break
		}
	}
	var out []domain.Criterion
	for _, it := range items {
		switch v := it.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, domain.Criterion{Name: s})
			}
		case map[string]any:
			c := domain.Criterion{
				Name:        stringField(v, "name", "label", "title", "key"),
				Description: stringField(v, "description", "desc", "details", "summary"),
				Weight:      floatField(v, "weight", "points"),
			}
			if c.Name != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func floatField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func intField(m map[string]any, keys ...string) int {
	if f := floatField(m, keys...); f > 0 {
		return int(f)
	}
	return 0
}
