// Tool-call extraction: native structured calls and embedded markup both
// reduce to one canonical (name, arguments) form. Extraction never errors;
// anything unparseable is treated as plain text.
package agent

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/veribrand/brandgate/pkg/llm"
)

// Invocation is one extracted tool call ready for execution
type Invocation struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ExtractNative takes the first accumulated structured tool call. Malformed
// argument JSON falls back to an empty argument object rather than failing
// the turn.
func ExtractNative(calls []llm.ToolCall) *Invocation {
	if len(calls) == 0 {
		return nil
	}
	call := calls[0]
	if call.Name == "" {
		return nil
	}

	args := map[string]interface{}{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			log.Printf("[WARN] extract: bad tool arguments for %s, using empty args: %v", call.Name, err)
			args = map[string]interface{}{}
		}
	}
	return &Invocation{ID: call.ID, Name: call.Name, Args: args}
}

var (
	strictFencedRe  = regexp.MustCompile("(?s)```xml\\s*\\n(.*?)```")
	lenientFencedRe = regexp.MustCompile("(?s)```\\w*\\s*(.*?)```")
	openTagRe       = regexp.MustCompile(`<([a-zA-Z_]\w*)>`)
)

// ExtractMarkup recovers a tool call embedded as XML-like markup in plain
// text. Candidate fragments are tried in a fixed order and the first one
// that parses wins: a fenced block labeled xml, then a bare tag pair in
// the raw text, then any fenced block.
func ExtractMarkup(text string) *Invocation {
	if m := strictFencedRe.FindStringSubmatch(text); m != nil {
		if inv := parseTagFragment(m[1]); inv != nil {
			return inv
		}
	}
	if inv := parseTagFragment(text); inv != nil {
		return inv
	}
	if m := lenientFencedRe.FindStringSubmatch(text); m != nil {
		if inv := parseTagFragment(m[1]); inv != nil {
			return inv
		}
	}
	return nil
}

// findTag locates the first complete <tag>...</tag> pair, matching the
// closing tag non-greedily. Open tags with no closing counterpart are
// skipped so a stray preamble tag cannot mask a later complete pair.
// Returns the tag name, inner content, and the end offset of the pair
// within s.
func findTag(s string) (tag, inner string, end int, ok bool) {
	offset := 0
	for {
		loc := openTagRe.FindStringSubmatchIndex(s[offset:])
		if loc == nil {
			return "", "", 0, false
		}
		tag = s[offset+loc[2] : offset+loc[3]]
		bodyStart := offset + loc[1]
		closing := "</" + tag + ">"
		idx := strings.Index(s[bodyStart:], closing)
		if idx >= 0 {
			return tag, s[bodyStart : bodyStart+idx], bodyStart + idx + len(closing), true
		}
		offset = bodyStart
	}
}

// parseTagFragment parses one tag pair into an invocation. The root tag
// names the tool unless it is the generic "tool" wrapper, in which case a
// nested name element supplies it. Children become arguments; a parameters
// element holding a JSON object replaces them wholesale.
func parseTagFragment(s string) *Invocation {
	tag, inner, _, ok := findTag(s)
	if !ok {
		return nil
	}

	name := tag
	args := map[string]interface{}{}
	var paramArgs map[string]interface{}

	rest := inner
	for {
		childTag, childInner, end, ok := findTag(rest)
		if !ok {
			break
		}
		value := strings.TrimSpace(childInner)
		switch childTag {
		case "name":
			if value != "" {
				name = value
			}
		case "parameters", "arguments":
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(value), &parsed); err == nil {
				paramArgs = parsed
				if paramArgs == nil {
					paramArgs = map[string]interface{}{}
				}
			}
		default:
			args[childTag] = coerceValue(value)
		}
		rest = rest[end:]
	}

	if paramArgs != nil {
		args = paramArgs
	} else if len(args) == 0 {
		// root body may itself be a JSON object
		if trimmed := strings.TrimSpace(inner); strings.HasPrefix(trimmed, "{") {
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed != nil {
				args = parsed
			}
		}
	}

	if name == "" || name == "tool" {
		return nil
	}
	return &Invocation{Name: name, Args: args}
}

// coerceValue parses a scalar element body as JSON where possible so
// numbers and booleans survive the round trip through markup.
func coerceValue(s string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case float64, bool, map[string]interface{}, []interface{}:
			return v
		}
	}
	return s
}
