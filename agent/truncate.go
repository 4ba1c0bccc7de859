package agent

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// DefaultResultBudget bounds how many characters of a tool result re-enter
// the conversation
const DefaultResultBudget = 5000

// nested trim limits tried in order before giving up on structure
var trimPasses = []struct {
	maxString int
	maxArray  int
}{
	{500, 20},
	{100, 5},
}

// TruncateResult bounds a tool result to budget characters. JSON payloads
// keep their structure where possible: nested string and array values are
// trimmed first, and only if that is not enough is the whole payload cut
// down the middle like any other oversized text.
func TruncateResult(result string, budget int) string {
	if budget <= 0 {
		budget = DefaultResultBudget
	}
	if len(result) <= budget {
		return result
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(result), &parsed); err == nil {
		for _, pass := range trimPasses {
			trimmed := trimValue(parsed, pass.maxString, pass.maxArray)
			if b, err := json.Marshal(trimmed); err == nil && len(b) <= budget {
				return string(b)
			}
		}
	}

	// keep front and back, cut the middle
	half := budget / 2
	return result[:runeCut(result, half)] +
		fmt.Sprintf("\n[... %d bytes truncated ...]\n", len(result)-budget) +
		result[runeCut(result, len(result)-half):]
}

// runeCut backs i off to the nearest rune start so slicing never splits a
// multibyte sequence
func runeCut(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// trimValue walks a decoded JSON value, shortening strings and arrays
func trimValue(v interface{}, maxString, maxArray int) interface{} {
	switch t := v.(type) {
	case string:
		if len(t) > maxString {
			cut := runeCut(t, maxString)
			return t[:cut] + fmt.Sprintf("...[%d chars trimmed]", len(t)-cut)
		}
		return t
	case []interface{}:
		out := t
		trimmed := 0
		if len(out) > maxArray {
			trimmed = len(out) - maxArray
			out = out[:maxArray]
		}
		result := make([]interface{}, 0, len(out)+1)
		for _, item := range out {
			result = append(result, trimValue(item, maxString, maxArray))
		}
		if trimmed > 0 {
			result = append(result, fmt.Sprintf("[%d items trimmed]", trimmed))
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(t))
		for k, item := range t {
			result[k] = trimValue(item, maxString, maxArray)
		}
		return result
	default:
		return v
	}
}
