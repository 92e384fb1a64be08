package tools

import "strings"

// Tool-use directives are delimited by a literal tag pair in model output.
// Matching is plain string search, not parsing: an unbalanced or malformed
// tag simply never matches and its text is left untouched.
const (
	ToolUseOpenTag  = "<ToolUse>"
	ToolUseCloseTag = "</ToolUse>"
)

// ExtractToolUses returns the raw call texts of every directive in answer,
// in order of appearance.
func ExtractToolUses(answer string) []string {
	var calls []string

	rest := answer
	for {
		start := strings.Index(rest, ToolUseOpenTag)
		if start == -1 {
			break
		}
		rest = rest[start+len(ToolUseOpenTag):]

		end := strings.Index(rest, ToolUseCloseTag)
		if end == -1 {
			break
		}
		calls = append(calls, rest[:end])
		rest = rest[end+len(ToolUseCloseTag):]
	}

	return calls
}

// StripToolUses removes every directive, delimiters included, preserving the
// surrounding text. Text without directives comes back unchanged.
func StripToolUses(answer string) string {
	for _, call := range ExtractToolUses(answer) {
		answer = strings.Replace(answer, ToolUseOpenTag+call+ToolUseCloseTag, "", 1)
	}
	return answer
}
