// Package rubric turns free-form text and loose JSON into structured rubrics.
//
// Parsing never hard-fails: when nothing recognizable is found the result is
// a rubric with placeholder criteria plus warnings, trading strictness for
// availability.
package rubric

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

const (
	// DefaultName is used when no title line is present in the input.
	DefaultName = "Imported Rubric"

	warnFewCriteria     = "fewer than 3 criteria found"
	warnPlaceholdersMsg = "fewer than 3 criteria found; using placeholder criteria"
)

var (
	nameLabelRe = regexp.MustCompile(`(?im)^\s*(?:title|name|rubric)\s*[:\-]\s*(.+)$`)
	descLabelRe = regexp.MustCompile(`(?im)^\s*(?:description|summary)\s*[:\-]\s*(.+)$`)

	targetDurRe = regexp.MustCompile(`(?i)(?:target|duration|time)\D{0,40}?(\d+)\s*sec`)
	maxDurRe    = regexp.MustCompile(`(?i)max(?:imum)?\D{0,40}?(\d+)\s*sec`)

	criteriaLineRe = regexp.MustCompile(`(?im)^\s*criteria\s*:\s*(.+)$`)
	bulletRe       = regexp.MustCompile(`^\s*(?:\d+[.)]|[•*-])\s+(.+)$`)
	dashSepRe      = regexp.MustCompile(`\s+[-–—]\s+`)
	tableSepRe     = regexp.MustCompile(`^\s*[|\s:-]+$`)
)

// ParseText extracts a best-effort rubric from free-form text. It is a pure
// function: the same text always yields the same structure. The returned
// warnings flag degraded extractions (e.g. placeholder criteria).
func ParseText(text string) (domain.Rubric, []string) {
	r := domain.Rubric{Name: DefaultName}
	var warnings []string

	if m := nameLabelRe.FindStringSubmatch(text); m != nil {
		r.Name = strings.TrimSpace(m[1])
	}
	if m := descLabelRe.FindStringSubmatch(text); m != nil {
		r.Description = strings.TrimSpace(m[1])
	}
	r.TargetDurationSeconds, r.MaxDurationSeconds = parseDurations(text)

	r.Criteria = extractCriteria(text)
	switch {
	case len(r.Criteria) == 0:
		r.Criteria = PlaceholderCriteria()
		warnings = append(warnings, warnPlaceholdersMsg)
	case len(r.Criteria) < 3:
		warnings = append(warnings, warnFewCriteria)
	}
	return r, warnings
}

// extractCriteria tries patterns in priority order; the first that yields any
// criteria wins.
func extractCriteria(text string) []domain.Criterion {
	if cs := parseSemicolonCriteria(text); len(cs) > 0 {
		return cs
	}
	if cs := parseListCriteria(text); len(cs) > 0 {
		return cs
	}
	return parseTableCriteria(text)
}

// parseSemicolonCriteria handles "Criteria: Name - Description; ..." lines.
func parseSemicolonCriteria(text string) []domain.Criterion {
	m := criteriaLineRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	seg := m[1]
	if !strings.Contains(seg, ";") && !dashSepRe.MatchString(seg) {
		return nil
	}
	var out []domain.Criterion
	for _, part := range strings.Split(seg, ";") {
		if c, ok := splitNameDesc(part); ok {
			out = append(out, c)
		}
	}
	return out
}

// parseListCriteria handles numbered ("1. X") and bulleted ("• X") lines,
// splitting each entry on a dash into name and description.
func parseListCriteria(text string) []domain.Criterion {
	var out []domain.Criterion
	for _, line := range strings.Split(text, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if c, ok := splitNameDesc(m[1]); ok {
			out = append(out, c)
		}
	}
	return out
}

// parseTableCriteria handles pipe- or tab-delimited rows (name | description
// | weight). Header and separator rows are skipped.
func parseTableCriteria(text string) []domain.Criterion {
	var out []domain.Criterion
	for _, line := range strings.Split(text, "\n") {
		var fields []string
		switch {
		case strings.Contains(line, "|"):
			if tableSepRe.MatchString(line) {
				continue
			}
			fields = strings.Split(strings.Trim(strings.TrimSpace(line), "|"), "|")
		case strings.Contains(line, "\t"):
			fields = strings.Split(line, "\t")
		default:
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) == 0 || fields[0] == "" || isHeaderCell(fields[0]) {
			continue
		}
		c := domain.Criterion{Name: fields[0]}
		if len(fields) > 1 {
			c.Description = fields[1]
		}
		if len(fields) > 2 {
			if w, err := strconv.ParseFloat(fields[2], 64); err == nil {
				c.Weight = w
			}
		}
		out = append(out, c)
	}
	return out
}

func isHeaderCell(s string) bool {
	switch strings.ToLower(s) {
	case "name", "criterion", "criteria":
		return true
	}
	return false
}

// splitNameDesc splits "Name - Description" on the first dash separator.
func splitNameDesc(s string) (domain.Criterion, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Criterion{}, false
	}
	if loc := dashSepRe.FindStringIndex(s); loc != nil {
		name := strings.TrimSpace(s[:loc[0]])
		desc := strings.TrimSpace(s[loc[1]:])
		if name == "" {
			return domain.Criterion{}, false
		}
		return domain.Criterion{Name: name, Description: desc}, true
	}
	return domain.Criterion{Name: s}, true
}

// parseDurations scans per line so that "maximum time" lines are not
// mistaken for target durations.
func parseDurations(text string) (target, max int) {
	for _, line := range strings.Split(text, "\n") {
		if m := maxDurRe.FindStringSubmatch(line); m != nil {
			if max == 0 {
				max, _ = strconv.Atoi(m[1])
			}
			continue
		}
		if m := targetDurRe.FindStringSubmatch(line); m != nil && target == 0 {
			target, _ = strconv.Atoi(m[1])
		}
	}
	return target, max
}

// PlaceholderCriteria is the fallback when nothing could be extracted: the
// caller always gets a usable rubric skeleton.
func PlaceholderCriteria() []domain.Criterion {
	return []domain.Criterion{
		{Name: "Criterion 1", Description: "Describe what to evaluate"},
		{Name: "Criterion 2", Description: "Describe what to evaluate"},
		{Name: "Criterion 3", Description: "Describe what to evaluate"},
	}
}
