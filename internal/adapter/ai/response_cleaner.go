// Package ai provides response cleaning utilities for handling malformed LLM
// responses before they are coerced or validated.
package ai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResponseCleaner extracts a parseable JSON object from model output that may
// be wrapped in markdown fences or mixed with prose.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// Clean strips markdown fences, extracts the outermost JSON object, and fixes
// trailing commas. It never fails; validation is the caller's concern.
func (rc *ResponseCleaner) Clean(response string) string {
	response = rc.removeMarkdownBlocks(response)
	response = rc.extractJSON(response)
	if !rc.IsValidJSON(response) {
		response = trailingCommaRe.ReplaceAllString(response, "$1")
	}
	return response
}

func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSON returns the first brace-balanced object found in the input.
func (rc *ResponseCleaner) extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	var v any
	return json.Unmarshal([]byte(response), &v) == nil
}

// CleanAndValidate cleans a response and reports an error when the result is
// still not valid JSON.
func (rc *ResponseCleaner) CleanAndValidate(response string) (string, error) {
	cleaned := rc.Clean(response)
	if !rc.IsValidJSON(cleaned) {
		return "", &JSONValidationError{Original: response, Cleaned: cleaned, Message: "cleaned response is still not valid JSON"}
	}
	return cleaned, nil
}

// JSONValidationError reports a response that stayed unparseable after
// cleaning.
type JSONValidationError struct {
	Original string
	Cleaned  string
	Message  string
}

func (e *JSONValidationError) Error() string { return e.Message }
