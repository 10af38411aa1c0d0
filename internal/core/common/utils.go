package common

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseJSON extracts and unmarshals a JSON object from an oracle response
// into T. It tolerates the usual model quirks: surrounding prose, markdown
// code fences, and trailing commas.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	jsonStr := response
	if m := fencePattern.FindStringSubmatch(jsonStr); len(m) > 1 {
		jsonStr = m[1]
	}

	start := strings.Index(jsonStr, "{")
	end := strings.LastIndex(jsonStr, "}")
	if start == -1 || end == -1 || end < start {
		return zero, fmt.Errorf("no JSON object found in response")
	}
	jsonStr = trailingCommaPattern.ReplaceAllString(jsonStr[start:end+1], "$1")

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
